//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq"
	"github.com/farcloser/peaq/internal/media"
)

var errCompareArgs = errors.New("expected exactly two arguments: reference and test file paths")

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Grade a test audio file against its reference",
		ArgsUsage: "<reference> <test>",
		Flags: append(scoringFlags(),
			&cli.IntFlag{
				Name:  "stream",
				Usage: "Audio stream index (0-based) in both files",
				Value: 0,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: got %d", errCompareArgs, cmd.NArg())
			}

			setupLogging(cmd)

			opts, err := parseOptions(cmd)
			if err != nil {
				return err
			}

			refPath := cmd.Args().Get(0)
			testPath := cmd.Args().Get(1)

			// 48 kHz wave files are read directly, anything else is decoded and resampled by ffmpeg.
			ref, test, err := media.OpenPair(ctx, refPath, testPath, cmd.Int("stream"))
			if err != nil {
				return err
			}
			defer ref.Close()
			defer test.Close()

			result, err := peaq.CompareReaders(ref, test, ref.Channels, opts)
			if err != nil {
				return fmt.Errorf("comparison failed: %w", err)
			}

			return outputResult(testPath, result, cmd.String("format"), cmd.Bool("debug"))
		},
	}
}
