//nolint:tagliatelle
package main

// Record is a single line in the JSONL report file.
type Record struct {
	Reference string         `json:"reference,omitempty"`
	Test      string         `json:"test,omitempty"`
	Decoder   string         `json:"decoder,omitempty"`
	Analysis  map[string]any `json:"analysis,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timing    *RecordTiming  `json:"timing,omitempty"`
}

// RecordTiming captures per-pair processing durations in milliseconds.
type RecordTiming struct {
	DecodeMs  float64 `json:"decode_ms"`
	CompareMs float64 `json:"compare_ms"`
	TotalMs   float64 `json:"total_ms"`
}

// digestRecord holds the typed fields needed by the digest command.
type digestRecord struct {
	Test     string          `json:"test,omitempty"`
	Analysis *digestAnalysis `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type digestAnalysis struct {
	Summary digestSummary `json:"summary"`
}

type digestSummary struct {
	DistortionIndex float64 `json:"distortion_index"`
	ODG             float64 `json:"odg"`
	Grade           string  `json:"grade"`
	Mode            string  `json:"mode"`
}

// pair is a test file and the reference it is graded against.
type pair struct {
	Reference string
	Test      string
}
