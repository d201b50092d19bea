//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq"
	"github.com/farcloser/peaq/internal/types"
)

var (
	errAnalyzeArgs     = errors.New("expected exactly two arguments: reference (or \"-\" for stdin) and test PCM paths")
	errInvalidBitDepth = errors.New("must be 16, 24, or 32")
	errInvalidChannels = errors.New("must be positive")
	errBothStdin       = errors.New("only one input can be read from stdin")
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Grade raw interleaved PCM audio against its reference",
		ArgsUsage: "<reference.pcm | -> <test.pcm>",
		Flags: append([]cli.Flag{
			// PCMFormat flags.
			&cli.IntFlag{
				Name:    "sample-rate",
				Aliases: []string{"s"},
				Usage:   "Sample rate in Hz (must be 48000)",
				Value:   peaq.SampleRate,
			},
			&cli.IntFlag{
				Name:    "bit-depth",
				Aliases: []string{"b"},
				Usage:   "Bit depth (16, 24, or 32)",
				Value:   16,
			},
			&cli.IntFlag{
				Name:    "channels",
				Aliases: []string{"c"},
				Usage:   "Number of channels (1 = mono, 2 = stereo)",
				Value:   2,
			},
		}, scoringFlags()...),
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: got %d", errAnalyzeArgs, cmd.NArg())
			}

			setupLogging(cmd)

			format, err := parsePCMFormat(cmd)
			if err != nil {
				return err
			}

			opts, err := parseOptions(cmd)
			if err != nil {
				return err
			}

			refPath := cmd.Args().Get(0)
			testPath := cmd.Args().Get(1)

			if testPath == "-" {
				return errBothStdin
			}

			ref, closeRef, err := openInput(refPath)
			if err != nil {
				return err
			}
			defer closeRef()

			test, closeTest, err := openInput(testPath)
			if err != nil {
				return err
			}
			defer closeTest()

			result, err := peaq.Compare(ref, test, format, opts)
			if err != nil {
				return fmt.Errorf("comparison failed: %w", err)
			}

			return outputResult(testPath, result, cmd.String("format"), cmd.Bool("debug"))
		},
	}
}

func parsePCMFormat(cmd *cli.Command) (types.PCMFormat, error) {
	bitDepth, err := toBitDepth(cmd.Int("bit-depth"))
	if err != nil {
		return types.PCMFormat{}, fmt.Errorf("--bit-depth: %w", err)
	}

	channels := cmd.Int("channels")
	if channels <= 0 {
		return types.PCMFormat{}, fmt.Errorf("--channels: %w", errInvalidChannels)
	}

	return types.PCMFormat{
		SampleRate: cmd.Int("sample-rate"),
		BitDepth:   bitDepth,
		Channels:   uint(channels), //nolint:gosec // validated positive value
	}, nil
}

func toBitDepth(v int) (types.BitDepth, error) {
	switch v {
	case 16:
		return types.Depth16, nil
	case 24:
		return types.Depth24, nil
	case 32:
		return types.Depth32, nil
	default:
		return 0, errInvalidBitDepth
	}
}

// openInput opens a raw PCM file, "-" being stdin. Both streams are read once, in lock step.
func openInput(source string) (io.Reader, func(), error) {
	if source == "-" {
		return os.Stdin, func() {}, nil
	}

	file, err := os.Open(source) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, func() {}, fmt.Errorf("cannot access %s: %w", source, err)
	}

	return file, func() { _ = file.Close() }, nil
}
