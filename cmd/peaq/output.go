//nolint:wrapcheck
package main

import (
	"fmt"
	"os"

	"github.com/farcloser/primordium/format"

	"github.com/farcloser/peaq"
	"github.com/farcloser/peaq/internal/output"
)

func outputResult(filePath string, result *peaq.Result, formatName string, debug bool) error {
	formatter, err := format.GetFormatter(formatName)
	if err != nil {
		return err
	}

	var meta map[string]any
	if debug {
		meta = output.ResultToMap(result)
	} else {
		meta = buildFriendlyOutput(result)
	}

	data := &format.Data{
		Object: filePath,
		Meta:   meta,
	}

	return formatter.PrintAll([]*format.Data{data}, os.Stdout)
}

// buildFriendlyOutput creates a user-friendly summary of the comparison.
func buildFriendlyOutput(result *peaq.Result) map[string]any {
	return map[string]any{
		"distortion_index": fmt.Sprintf("%.3f", result.DistortionIndex),
		"odg":              fmt.Sprintf("%.3f", result.ODG),
		"grade":            result.Grade.String(),
		"mode":             result.Mode.String(),
		"duration":         fmt.Sprintf("%.2f s", result.Seconds()),
	}
}
