//nolint:wrapcheck
package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq"
	"github.com/farcloser/peaq/internal/media"
	"github.com/farcloser/peaq/internal/output"
)

const outputFile = "peaq-report.jsonl"

var (
	errReportArgs   = errors.New("expected exactly two arguments: reference folder and test folder")
	errNotDirectory = errors.New("not a directory")
	errNoPairs      = errors.New("no test file has a matching reference")
)

//nolint:gochecknoglobals // configuration data, effectively const
var audioExtensions = []string{".wav", ".flac", ".m4a", ".mp3", ".ogg", ".opus", ".aac", ".aiff"}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Grade every test file against the reference sharing its relative path and write a JSONL report",
		ArgsUsage: "<reference-folder> <test-folder>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "redact-path",
				Usage: "Strip file paths from the report",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Number of concurrent workers",
				Value:   runtime.NumCPU(),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report path",
				Value:   outputFile,
			},
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
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("%w: got %d", errReportArgs, cmd.NArg())
			}

			mode, err := peaq.ParseMode(cmd.String("mode"))
			if err != nil {
				return err
			}

			slope, err := peaq.ParseSlopeFilter(cmd.String("slope-filter"))
			if err != nil {
				return err
			}

			opts := peaq.DefaultOptions()
			opts.Mode = mode
			opts.PlaybackLevel = cmd.Float("playback-level")
			opts.ClampMOVs = cmd.Bool("clamp-movs")
			opts.SlopeFilter = slope

			return runReport(ctx, reportConfig{
				reference: cmd.Args().Get(0),
				test:      cmd.Args().Get(1),
				output:    cmd.String("output"),
				redact:    cmd.Bool("redact-path"),
				workers:   max(cmd.Int("workers"), 1),
				opts:      opts,
			})
		},
	}
}

type reportConfig struct {
	reference string
	test      string
	output    string
	redact    bool
	workers   int
	opts      peaq.Options
}

func runReport(ctx context.Context, cfg reportConfig) error {
	for _, folder := range []string{cfg.reference, cfg.test} {
		info, err := os.Stat(folder)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%q: %w", folder, errNotDirectory)
		}
	}

	pairs, err := collectPairs(cfg.reference, cfg.test)
	if err != nil {
		return fmt.Errorf("scanning folders: %w", err)
	}

	if len(pairs) == 0 {
		return fmt.Errorf("%q: %w", cfg.test, errNoPairs)
	}

	fmt.Fprintf(os.Stderr, "Found %d pairs to compare (%d workers)\n", len(pairs), cfg.workers)

	// Compare pairs concurrently. Each comparison owns its analyzer.
	startTime := time.Now()
	results := make([]Record, len(pairs))

	var progress atomic.Int64

	sem := make(chan struct{}, cfg.workers)

	var waitGroup sync.WaitGroup

	for idx, item := range pairs {
		waitGroup.Add(1)

		go func(idx int, item pair) {
			defer waitGroup.Done()

			sem <- struct{}{}

			defer func() { <-sem }()

			results[idx] = processPair(ctx, item, cfg.opts)

			done := progress.Add(1)
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", done, len(pairs), item.Test)
		}(idx, item)
	}

	waitGroup.Wait()

	// Write results in pair order.
	out, err := os.Create(cfg.output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	failed := 0

	var totalDecode, totalCompare time.Duration

	for idx := range results {
		record := &results[idx]

		if record.Error != "" {
			failed++
		}

		if record.Timing != nil {
			totalDecode += millisToDuration(record.Timing.DecodeMs)
			totalCompare += millisToDuration(record.Timing.CompareMs)
		}

		if cfg.redact {
			record.Reference = ""
			record.Test = ""
		}

		if err := enc.Encode(record); err != nil {
			slog.Error("writing record", "file", pairs[idx].Test, "error", err)
		}
	}

	out.Close()

	if err := compressFile(cfg.output); err != nil {
		slog.Error("compressing report", "error", err)
	}

	elapsed := time.Since(startTime)

	fmt.Fprintf(os.Stderr, "\nDone: %d pairs in %s (%d failed)\n", len(pairs), elapsed.Truncate(time.Second), failed)
	fmt.Fprintf(os.Stderr, "Report written to %s (and %s.gz)\n", cfg.output, cfg.output)

	compared := len(pairs) - failed
	fmt.Fprintf(os.Stderr, "\n--- Timing ---\n")
	fmt.Fprintf(os.Stderr, "  Wall clock:  %s\n", elapsed.Truncate(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  decoding:    %s (cumulative)\n", totalDecode.Truncate(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  comparison:  %s (cumulative)\n", totalCompare.Truncate(time.Millisecond))

	if compared > 0 {
		fmt.Fprintf(os.Stderr, "  avg/pair:    %s (decode: %s, compare: %s)\n",
			(totalDecode+totalCompare)/time.Duration(compared),
			totalDecode/time.Duration(compared),
			totalCompare/time.Duration(compared),
		)
	}

	fmt.Fprintln(os.Stderr)

	return runDigest(cfg.output, defaultWorst)
}

func processPair(ctx context.Context, item pair, opts peaq.Options) Record {
	pairStart := time.Now()
	timing := &RecordTiming{}
	record := Record{Reference: item.Reference, Test: item.Test, Timing: timing}

	decodeStart := time.Now()

	ref, test, err := media.OpenPair(ctx, item.Reference, item.Test, 0)

	timing.DecodeMs = durationMs(time.Since(decodeStart))

	if err != nil {
		record.Error = fmt.Sprintf("open failed: %v", err)

		return record
	}

	defer ref.Close()
	defer test.Close()

	record.Decoder = test.Decoder

	compareStart := time.Now()

	result, err := peaq.CompareReaders(ref, test, ref.Channels, opts)

	timing.CompareMs = durationMs(time.Since(compareStart))
	timing.TotalMs = durationMs(time.Since(pairStart))

	if err != nil {
		record.Error = fmt.Sprintf("comparison failed: %v", err)

		return record
	}

	record.Analysis = output.ResultToMap(result)

	return record
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func millisToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func isAudio(path string) bool {
	return slices.Contains(audioExtensions, strings.ToLower(filepath.Ext(path)))
}

// stem is the slash separated relative path without its extension. References and tests may use different
// containers.
func stem(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel))), nil
}

func collectAudioFiles(root string) (map[string]string, error) {
	files := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !isAudio(path) {
			return nil
		}

		key, err := stem(root, path)
		if err != nil {
			return err
		}

		// Several encodings of the same stem: keep the first in lexical order.
		if existing, ok := files[key]; !ok || path < existing {
			files[key] = path
		}

		return nil
	})

	return files, err
}

// collectPairs matches every test file with the reference of the same relative path, ignoring extensions.
func collectPairs(referenceRoot, testRoot string) ([]pair, error) {
	references, err := collectAudioFiles(referenceRoot)
	if err != nil {
		return nil, err
	}

	tests, err := collectAudioFiles(testRoot)
	if err != nil {
		return nil, err
	}

	pairs := make([]pair, 0, len(tests))

	for key, test := range tests {
		reference, ok := references[key]
		if !ok {
			slog.Debug("report.collectPairs", "test", test, "stage", "unmatched")

			continue
		}

		pairs = append(pairs, pair{Reference: reference, Test: test})
	}

	slices.SortFunc(pairs, func(a, b pair) int {
		return strings.Compare(a.Test, b.Test)
	})

	return pairs, nil
}

func compressFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // reading our own output file
	if err != nil {
		return err
	}

	gzFile, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer gzFile.Close()

	gzWriter := gzip.NewWriter(gzFile)

	if _, err := gzWriter.Write(data); err != nil {
		return err
	}

	return gzWriter.Close()
}
