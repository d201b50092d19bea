// Package media opens audio files for comparison: 48 kHz wave files are decoded in process, everything else goes
// through ffprobe and ffmpeg and comes out as 32 bit PCM resampled to 48 kHz.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/farcloser/peaq"
	"github.com/farcloser/peaq/internal/integration/ffmpeg"
	"github.com/farcloser/peaq/internal/integration/ffprobe"
	"github.com/farcloser/peaq/internal/integration/wav"
	"github.com/farcloser/peaq/internal/pcm"
	"github.com/farcloser/peaq/internal/types"
)

var ErrChannelMismatch = errors.New("reference and test channel counts differ")

// Decoder names reported in Source.
const (
	DecoderWAV    = "wav"
	DecoderFFmpeg = "ffmpeg"
)

// Source is an opened audio stream ready to be compared.
type Source struct {
	peaq.SampleReader

	Path     string
	Channels int
	// Decoder is DecoderWAV or DecoderFFmpeg.
	Decoder string
	// Probe is set when the file went through ffprobe.
	Probe *ffprobe.Result

	closer io.Closer
}

// Close releases the underlying file, if any.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}

// Open opens the audio stream at streamIndex (0-based, audio streams only) of the file at path.
func Open(ctx context.Context, path string, streamIndex int) (*Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") && streamIndex == 0 {
		source, err := openWAV(path)
		if err == nil {
			return source, nil
		}

		// Anything go-wav does not take as is (other rates, extensible headers) is left to ffmpeg.
		slog.Debug("media.Open", "path", path, "error", err, "stage", "fallback")
	}

	return openFFmpeg(ctx, path, streamIndex)
}

// OpenPair opens a reference and a test file and checks they can be compared.
func OpenPair(ctx context.Context, reference, test string, streamIndex int) (*Source, *Source, error) {
	ref, err := Open(ctx, reference, streamIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", reference, err)
	}

	tst, err := Open(ctx, test, streamIndex)
	if err != nil {
		_ = ref.Close()

		return nil, nil, fmt.Errorf("%s: %w", test, err)
	}

	if ref.Channels != tst.Channels {
		_ = ref.Close()
		_ = tst.Close()

		return nil, nil, fmt.Errorf("%w: %d and %d", ErrChannelMismatch, ref.Channels, tst.Channels)
	}

	return ref, tst, nil
}

func openWAV(path string) (*Source, error) {
	reader, err := wav.Open(path)
	if err != nil {
		return nil, err
	}

	format := reader.Format()
	if format.SampleRate != peaq.SampleRate {
		_ = reader.Close()

		return nil, fmt.Errorf("%w: got %d", peaq.ErrInvalidSampleRate, format.SampleRate)
	}

	return &Source{
		SampleReader: reader,
		Path:         path,
		Channels:     int(format.Channels), //nolint:gosec // at most two
		Decoder:      DecoderWAV,
		closer:       reader,
	}, nil
}

func openFFmpeg(ctx context.Context, path string, streamIndex int) (*Source, error) {
	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probing file: %w", err)
	}

	stream, err := probe.Audio(streamIndex)
	if err != nil {
		return nil, err
	}

	channels, err := stream.ChannelCount()
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	format := types.PCMFormat{
		SampleRate: peaq.SampleRate,
		BitDepth:   types.Depth32,
		Channels:   channels,
	}

	var pcmBuf bytes.Buffer

	if err = ffmpeg.ExtractStream(ctx, file, &pcmBuf, streamIndex, &format); err != nil {
		return nil, fmt.Errorf("extracting PCM: %w", err)
	}

	reader, err := pcm.NewReader(&pcmBuf, format)
	if err != nil {
		return nil, err
	}

	return &Source{
		SampleReader: reader,
		Path:         path,
		Channels:     int(channels), //nolint:gosec // channel count is small
		Decoder:      DecoderFFmpeg,
		Probe:        probe,
	}, nil
}
