package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq"
)

// scoringFlags are shared by every command producing a grade.
func scoringFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Measurement version: basic, advanced",
			Value:   "basic",
		},
		&cli.FloatFlag{
			Name:  "playback-level",
			Usage: "Level in dB SPL a full scale sine is played back at",
			Value: peaq.DefaultOptions().PlaybackLevel,
		},
		&cli.BoolFlag{
			Name:  "clamp-movs",
			Usage: "Clamp the normalized model output variables to [0, 1] before the neural network",
		},
		&cli.StringFlag{
			Name:  "slope-filter",
			Usage: "Filter bank slope smoothing (advanced mode): smoothed, swapped",
			Value: "smoothed",
		},
		&cli.IntFlag{
			Name:  "chunk-frames",
			Usage: "Sample frames decoded per read",
			Value: peaq.DefaultOptions().ChunkFrames,
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: console, json, markdown",
			Value:   "console",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"D"},
			Usage:   "Include every model output variable in output and log debug information",
		},
	}
}

func parseOptions(cmd *cli.Command) (peaq.Options, error) {
	mode, err := peaq.ParseMode(cmd.String("mode"))
	if err != nil {
		return peaq.Options{}, fmt.Errorf("--mode: %w", err)
	}

	slope, err := peaq.ParseSlopeFilter(cmd.String("slope-filter"))
	if err != nil {
		return peaq.Options{}, fmt.Errorf("--slope-filter: %w", err)
	}

	level := cmd.Float("playback-level")
	if level <= 0 {
		return peaq.Options{}, fmt.Errorf("--playback-level: %w: %v", peaq.ErrInvalidPlaybackLevel, level)
	}

	return peaq.Options{
		Mode:          mode,
		PlaybackLevel: level,
		ClampMOVs:     cmd.Bool("clamp-movs"),
		SlopeFilter:   slope,
		ChunkFrames:   cmd.Int("chunk-frames"),
	}, nil
}

// setupLogging sends debug logs to stderr when --debug is set.
func setupLogging(cmd *cli.Command) {
	if !cmd.Bool("debug") {
		return
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
}
