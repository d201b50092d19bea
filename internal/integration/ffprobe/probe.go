//nolint:tagliatelle
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/peaq/internal/integration/binary"
)

var (
	ErrStreamNotFound    = errors.New("audio stream not found")
	ErrInvalidSampleRate = errors.New("invalid sample rate from probe")
	ErrInvalidChannels   = errors.New("invalid channel count from probe")
)

// Result contains the marshalled output of ffprobe.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream holds the stream properties a comparison cares about.
type Stream struct {
	Index            int    `json:"index"`
	CodecName        string `json:"codec_name"`                    // flac
	CodecType        string `json:"codec_type"`                    // audio
	SampleRate       string `json:"sample_rate,omitempty"`         // 44100
	Channels         int    `json:"channels,omitempty"`            // 2
	ChannelLayout    string `json:"channel_layout,omitempty"`      // stereo
	Duration         string `json:"duration,omitempty"`            // 310.666667
	BitsPerSample    int    `json:"bits_per_sample,omitempty"`     // WAV/AIFF report it
	BitsPerRawSample string `json:"bits_per_raw_sample,omitempty"` // FLAC/ALAC report it
	// Encoder delay added by lossy codecs (MP3, AAC, Opus). A decoded test signal is shifted by it.
	InitialPadding int `json:"initial_padding,omitempty"`
}

// Format is the container level information.
type Format struct {
	Filename   string `json:"filename"`
	NbStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"` // e.g. "wav", "flac", "mov,mp4,m4a,3gp,3g2,mj2"
	Duration   string `json:"duration,omitempty"`
	ProbeScore int    `json:"probe_score"`
}

// Audio returns the index-th audio stream (0-based, counting audio streams only).
func (r *Result) Audio(index int) (*Stream, error) {
	audioCount := 0

	for i := range r.Streams {
		if r.Streams[i].CodecType != "audio" {
			continue
		}

		if audioCount == index {
			return &r.Streams[i], nil
		}

		audioCount++
	}

	return nil, fmt.Errorf("%w: index %d (file has %d audio streams)", ErrStreamNotFound, index, audioCount)
}

// Rate parses the stream sample rate.
func (s *Stream) Rate() (int, error) {
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSampleRate, s.SampleRate)
	}

	return rate, nil
}

// ChannelCount validates the stream channel count.
func (s *Stream) ChannelCount() (uint, error) {
	if s.Channels <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannels, s.Channels)
	}

	return uint(s.Channels), nil
}

// Probe runs ffprobe on the given file path and returns parsed metadata.
// It requires ffprobe to be available in the system PATH.
func Probe(ctx context.Context, filePath string) (*Result, error) {
	slog.Debug("ffprobe.Probe", "file path", filePath, "stage", "start")

	ffprobePath, err := binary.Require(name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is intentionally user-provided input for probing media files
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Debug("ffprobe.Probe", "file path", filePath, "stage", "timeout")

			return nil, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		slog.Debug("ffprobe.Probe", "file path", filePath, "stage", "error")

		return nil, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	var result Result
	if err = json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	slog.Debug("ffprobe.Probe", "file path", filePath, "streams", len(result.Streams), "stage", "done")

	return &result, nil
}
