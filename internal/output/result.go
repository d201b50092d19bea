// Package output provides shared result serialization for peaq JSON output.
package output

import (
	"github.com/farcloser/peaq"
)

// ResultToMap converts a comparison result into the canonical map structure
// used for JSON and JSONL serialization.
func ResultToMap(result *peaq.Result) map[string]any {
	movs := make(map[string]any, len(result.MOVs))
	for _, mov := range result.MOVs {
		movs[mov.Name] = mov.Value
	}

	return map[string]any{
		"summary": map[string]any{
			"distortion_index": result.DistortionIndex,
			"odg":              result.ODG,
			"grade":            result.Grade.String(),
			"mode":             result.Mode.String(),
		},
		"movs": movs,
		"signal": map[string]any{
			"channels": result.Channels,
			"samples":  result.Samples,
			"frames":   result.Frames,
			"seconds":  result.Seconds(),
		},
	}
}
