// Package wav reads and writes RIFF WAVE files as interleaved float samples.
package wav

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/farcloser/primordium/fault"
	"github.com/youpy/go-wav"

	"github.com/farcloser/peaq/internal/pcm"
	"github.com/farcloser/peaq/internal/types"
)

const (
	// WAVE samples carry at most two channels.
	maxChannels = 2
	// Frames decoded per request. Requests smaller than the decoder's internal buffer may split frames.
	decodeFrames = 4096
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported wave format")
	ErrUnsupportedChannels = errors.New("unsupported channel count")
)

// Source is what a wave file can be decoded from.
type Source interface {
	io.Reader
	io.ReaderAt
}

// Reader yields the interleaved samples of a wave file in [-1, 1).
type Reader struct {
	decoder  *wav.Reader
	closer   io.Closer
	format   types.PCMFormat
	scale    float64
	channels int
	pending  []wav.Sample
}

// Open opens a wave file. The caller must Close the reader.
func Open(path string) (*Reader, error) {
	slog.Debug("wav.Open", "path", path, "stage", "start")

	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
	}

	reader, err := NewReader(file)
	if err != nil {
		_ = file.Close()

		slog.Debug("wav.Open", "path", path, "stage", "error")

		return nil, err
	}

	reader.closer = file

	slog.Debug("wav.Open", "path", path, "sample rate", reader.format.SampleRate,
		"channels", reader.format.Channels, "bit depth", reader.format.BitDepth, "stage", "done")

	return reader, nil
}

// NewReader parses the header of a wave stream.
func NewReader(source Source) (*Reader, error) {
	decoder := wav.NewReader(source)

	header, err := decoder.Format()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
	}

	if header.AudioFormat != wav.AudioFormatPCM && header.AudioFormat != wav.AudioFormatIEEEFloat {
		return nil, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, header.AudioFormat)
	}

	if header.NumChannels == 0 || header.NumChannels > maxChannels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, header.NumChannels)
	}

	depth := types.BitDepth(header.BitsPerSample)
	if header.AudioFormat == wav.AudioFormatIEEEFloat {
		// Float samples are decoded to 32 bit integers.
		depth = types.Depth32
	}

	scale := pcm.Scale(depth)
	if scale == 0 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, header.BitsPerSample)
	}

	return &Reader{
		decoder: decoder,
		format: types.PCMFormat{
			SampleRate: int(header.SampleRate),
			BitDepth:   depth,
			Channels:   uint(header.NumChannels),
		},
		scale:    scale,
		channels: int(header.NumChannels),
	}, nil
}

// Format is the format declared by the file header.
func (r *Reader) Format() types.PCMFormat {
	return r.format
}

// Read fills dst with whole frames. It returns the number of samples written and io.EOF at the end of the data.
func (r *Reader) Read(dst []float64) (int, error) {
	frames := len(dst) / r.channels
	if frames == 0 {
		return 0, nil
	}

	if len(r.pending) == 0 {
		samples, err := r.decoder.ReadSamples(decodeFrames)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}

			return 0, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
		}

		r.pending = samples
	}

	count := min(frames, len(r.pending))
	at := 0

	for _, sample := range r.pending[:count] {
		for channel := range r.channels {
			dst[at] = float64(sample.Values[channel]) / r.scale
			at++
		}
	}

	r.pending = r.pending[count:]

	return at, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}

	return r.closer.Close()
}

// Write encodes interleaved samples in [-1, 1] as integer PCM. Samples outside the range are clipped.
func Write(dst io.Writer, samples []float64, format types.PCMFormat) error {
	channels := int(format.Channels) //nolint:gosec // channel count is small
	if channels == 0 || channels > maxChannels {
		return fmt.Errorf("%w: %d", ErrUnsupportedChannels, format.Channels)
	}

	scale := pcm.Scale(format.BitDepth)
	if scale == 0 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, format.BitDepth)
	}

	frames := len(samples) / channels
	encoded := make([]wav.Sample, frames)

	for frame := range encoded {
		for channel := range channels {
			value := math.Round(samples[frame*channels+channel] * scale)
			encoded[frame].Values[channel] = int(max(-scale, min(scale-1, value)))
		}
	}

	writer := wav.NewWriter(dst,
		uint32(frames),            //nolint:gosec // fixture sized
		uint16(channels),          //nolint:gosec // at most two
		uint32(format.SampleRate), //nolint:gosec // validated positive by callers
		uint16(format.BitDepth),   //nolint:gosec // 16, 24 or 32
	)

	if err := writer.WriteSamples(encoded); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}

	return nil
}

// WriteFile writes samples to a new wave file at path.
func WriteFile(path string, samples []float64, format types.PCMFormat) error {
	file, err := os.Create(path) //nolint:gosec // caller-chosen output path
	if err != nil {
		return err
	}

	if err = Write(file, samples, format); err != nil {
		_ = file.Close()

		return err
	}

	return file.Close()
}
