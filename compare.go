package peaq

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/farcloser/peaq/internal/algo"
	"github.com/farcloser/peaq/internal/pcm"
	"github.com/farcloser/peaq/internal/types"
)

/*
Usage:

format := types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth16, Channels: 2}
result, err := peaq.Compare(reference, test, format, peaq.DefaultOptions())
fmt.Printf("ODG %.3f (%s)\n", result.ODG, result.Grade)

// Advanced version
opts := peaq.DefaultOptions()
opts.Mode = peaq.ModeAdvanced
result, err := peaq.Compare(reference, test, format, opts)

// Inspect the model output variables
for _, mov := range result.MOVs {
    fmt.Printf("%s: %.4f\n", mov.Name, mov.Value)
}

*/

// SampleReader yields interleaved samples in [-1, 1]. Read returns whole frames and io.EOF at the end.
type SampleReader interface {
	Read(dst []float64) (int, error)
}

type analyzer interface {
	Process(ref, test []float64) error
	Flush()
	Frames() int
	Received() int
	Score() algo.Score
}

func newAnalyzer(channels int, opts Options) (analyzer, error) {
	switch opts.Mode {
	case ModeBasic:
		return algo.NewBasic(channels, opts.algo())
	case ModeAdvanced:
		return algo.NewAdvanced(channels, opts.algo())
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, opts.Mode)
	}
}

// Compare decodes two raw PCM streams of the given format and grades the test signal against the reference.
// Comparison stops at the end of the shorter stream.
func Compare(reference, test io.Reader, format types.PCMFormat, opts Options) (*Result, error) {
	if format.SampleRate != SampleRate {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, format.SampleRate)
	}

	if format.Channels == 0 {
		return nil, ErrInvalidChannels
	}

	refReader, err := pcm.NewReader(reference, format)
	if err != nil {
		return nil, err
	}

	testReader, err := pcm.NewReader(test, format)
	if err != nil {
		return nil, err
	}

	return CompareReaders(refReader, testReader, int(format.Channels), opts) //nolint:gosec // channel count is small
}

// CompareReaders grades two already decoded 48 kHz sample streams.
func CompareReaders(reference, test SampleReader, channels int, opts Options) (*Result, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	applyDefaults(&opts)

	slog.Debug("peaq.Compare", "mode", opts.Mode, "channels", channels, "stage", "start")

	engine, err := newAnalyzer(channels, opts)
	if err != nil {
		return nil, err
	}

	size := opts.ChunkFrames * channels
	refBuf := make([]float64, size)
	testBuf := make([]float64, size)

	for {
		refCount, err := fill(reference, refBuf)
		if err != nil {
			return nil, fmt.Errorf("reading reference: %w", err)
		}

		testCount, err := fill(test, testBuf)
		if err != nil {
			return nil, fmt.Errorf("reading test: %w", err)
		}

		count := min(refCount, testCount)

		if err = engine.Process(refBuf[:count], testBuf[:count]); err != nil {
			return nil, err
		}

		if count < size {
			break
		}
	}

	return finish(engine, channels, opts), nil
}

// CompareSamples grades two interleaved in-memory signals. The longer one is truncated.
func CompareSamples(reference, test []float64, channels int, opts Options) (*Result, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	applyDefaults(&opts)

	engine, err := newAnalyzer(channels, opts)
	if err != nil {
		return nil, err
	}

	count := min(len(reference), len(test)) / channels * channels

	if err = engine.Process(reference[:count], test[:count]); err != nil {
		return nil, err
	}

	return finish(engine, channels, opts), nil
}

func finish(engine analyzer, channels int, opts Options) *Result {
	engine.Flush()

	score := engine.Score()

	result := &Result{
		DistortionIndex: score.DistortionIndex,
		ODG:             score.ODG,
		Grade:           GradeFor(score.ODG),
		MOVs:            make([]MOV, len(score.MOVs)),
		Mode:            opts.Mode,
		Frames:          engine.Frames(),
		Samples:         engine.Received(),
		Channels:        channels,
	}

	for i, mov := range score.MOVs {
		result.MOVs[i] = MOV{Name: mov.Name, Value: mov.Value}
	}

	slog.Debug("peaq.Compare", "frames", result.Frames, "odg", result.ODG, "stage", "done")

	return result
}

// Consecutive empty reads tolerated before a stream is considered stuck.
const maxEmptyReads = 100

// fill reads until dst is full or the stream ends. It returns the number of samples read.
func fill(reader SampleReader, dst []float64) (int, error) {
	total := 0
	empty := 0

	for total < len(dst) {
		n, err := reader.Read(dst[total:])
		total += n

		if errors.Is(err, io.EOF) {
			return total, nil
		}

		if err != nil {
			return total, err
		}

		if n > 0 {
			empty = 0

			continue
		}

		if empty++; empty >= maxEmptyReads {
			return total, io.ErrNoProgress
		}
	}

	return total, nil
}
