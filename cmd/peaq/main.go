package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq/version"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Perceptual audio quality measurement (ITU-R BS.1387)",
		Version: version.Version() + " " + version.Commit(),
		Commands: []*cli.Command{
			compareCommand(),
			analyzeCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
