package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/peaq"
)

const defaultWorst = 10

var errDigestArgs = errors.New("expected exactly one argument: path to report.jsonl")

func digestCommand() *cli.Command {
	return &cli.Command{
		Name:      "digest",
		Usage:     "Produce a summary digest from a peaq JSONL report",
		ArgsUsage: "<report.jsonl>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "worst",
				Usage: "Number of lowest graded pairs to list",
				Value: defaultWorst,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return errDigestArgs
			}

			return runDigest(cmd.Args().First(), cmd.Int("worst"))
		},
	}
}

func runDigest(reportPath string, worst int) error {
	records, err := readRecords(reportPath)
	if err != nil {
		return err
	}

	printDigest(os.Stdout, summarize(records), worst)

	return nil
}

func readRecords(path string) ([]digestRecord, error) {
	file, err := os.Open(path) //nolint:gosec // CLI tool opens user-specified report files
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer file.Close()

	var records []digestRecord

	scanner := bufio.NewScanner(file)

	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for scanner.Scan() {
		var rec digestRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			records = append(records, digestRecord{Error: "parse error"})

			continue
		}

		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	return records, nil
}

// digest is the aggregate of a report.
type digest struct {
	total   int
	failed  int
	grades  map[string]int
	meanODG float64
	minODG  float64
	graded  []digestRecord // successful records, lowest ODG first
}

func summarize(records []digestRecord) digest {
	result := digest{total: len(records), grades: map[string]int{}}

	var sum float64

	for _, rec := range records {
		if rec.Error != "" || rec.Analysis == nil {
			result.failed++

			continue
		}

		odg := rec.Analysis.Summary.ODG
		result.grades[rec.Analysis.Summary.Grade]++

		if len(result.graded) == 0 || odg < result.minODG {
			result.minODG = odg
		}

		sum += odg

		result.graded = append(result.graded, rec)
	}

	if len(result.graded) > 0 {
		result.meanODG = sum / float64(len(result.graded))
	}

	slices.SortStableFunc(result.graded, func(a, b digestRecord) int {
		switch {
		case a.Analysis.Summary.ODG < b.Analysis.Summary.ODG:
			return -1
		case a.Analysis.Summary.ODG > b.Analysis.Summary.ODG:
			return 1
		default:
			return 0
		}
	})

	return result
}

func printDigest(out io.Writer, summary digest, worst int) {
	fmt.Fprintln(out, "=== PEAQ Report Digest ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total pairs:  %d\n", summary.total)
	fmt.Fprintf(out, "Failed:       %d\n", summary.failed)
	fmt.Fprintf(out, "Graded:       %d\n", len(summary.graded))
	fmt.Fprintln(out)

	if len(summary.graded) == 0 {
		return
	}

	fmt.Fprintln(out, "--- Grades ---")

	for grade := peaq.GradeImperceptible; grade <= peaq.GradeVeryAnnoying; grade++ {
		fmt.Fprintf(out, "  %-30s %d\n", grade.String()+":", summary.grades[grade.String()])
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "--- ODG ---")
	fmt.Fprintf(out, "  mean:  %.3f\n", summary.meanODG)
	fmt.Fprintf(out, "  min:   %.3f\n", summary.minODG)
	fmt.Fprintln(out)

	count := min(worst, len(summary.graded))
	if count <= 0 {
		return
	}

	fmt.Fprintf(out, "--- Worst %d ---\n", count)

	for _, rec := range summary.graded[:count] {
		name := rec.Test
		if name == "" {
			name = "(redacted)"
		}

		fmt.Fprintf(out, "  %7.3f  %s  (%s)\n", rec.Analysis.Summary.ODG, name, rec.Analysis.Summary.Grade)
	}
}
