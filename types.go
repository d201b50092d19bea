package peaq

import (
	"errors"
	"fmt"

	"github.com/farcloser/peaq/internal/algo"
	"github.com/farcloser/peaq/internal/earmodel"
)

// SampleRate is the only sample rate PEAQ is defined for. Other material must be resampled first.
const SampleRate = earmodel.SampleRate

var (
	ErrInvalidSampleRate = errors.New("sample rate must be 48000 Hz")
	ErrInvalidChannels   = errors.New("channel count must be positive")
	ErrUnknownMode       = errors.New("unknown mode")
	ErrUnknownSlope      = errors.New("unknown slope filter")
	// ErrInvalidPlaybackLevel is the ear model error for a non-positive playback level.
	ErrInvalidPlaybackLevel = earmodel.ErrInvalidPlaybackLevel
)

// Mode selects the version of the measurement.
type Mode int

const (
	// ModeBasic uses the FFT ear model alone and eleven MOVs.
	ModeBasic Mode = iota
	// ModeAdvanced combines the filter bank and FFT ear models into five MOVs.
	ModeAdvanced
)

func (m Mode) String() string {
	switch m {
	case ModeBasic:
		return "basic"
	case ModeAdvanced:
		return "advanced"
	}

	return "unknown"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode converts a string to a Mode value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "basic", "":
		return ModeBasic, nil
	case "advanced":
		return ModeAdvanced, nil
	default:
		return 0, fmt.Errorf("%w %q (valid: basic, advanced)", ErrUnknownMode, s)
	}
}

// SlopeFilter selects the form of the upper slope smoothing in the filter bank ear model.
type SlopeFilter = earmodel.SlopeFilter

const (
	SlopeSmoothed = earmodel.SlopeSmoothed
	SlopeSwapped  = earmodel.SlopeSwapped
)

// ParseSlopeFilter converts a string to a SlopeFilter value.
func ParseSlopeFilter(s string) (SlopeFilter, error) {
	switch s {
	case "smoothed", "":
		return SlopeSmoothed, nil
	case "swapped":
		return SlopeSwapped, nil
	default:
		return 0, fmt.Errorf("%w %q (valid: smoothed, swapped)", ErrUnknownSlope, s)
	}
}

// Grade is the impairment category an ODG falls into.
type Grade int

const (
	GradeImperceptible Grade = iota
	GradePerceptible
	GradeSlightlyAnnoying
	GradeAnnoying
	GradeVeryAnnoying
)

// GradeFor buckets an objective difference grade.
func GradeFor(odg float64) Grade {
	switch {
	case odg >= -0.5:
		return GradeImperceptible
	case odg >= -1.5:
		return GradePerceptible
	case odg >= -2.5:
		return GradeSlightlyAnnoying
	case odg >= -3.5:
		return GradeAnnoying
	default:
		return GradeVeryAnnoying
	}
}

func (g Grade) String() string {
	switch g {
	case GradeImperceptible:
		return "imperceptible"
	case GradePerceptible:
		return "perceptible but not annoying"
	case GradeSlightlyAnnoying:
		return "slightly annoying"
	case GradeAnnoying:
		return "annoying"
	case GradeVeryAnnoying:
		return "very annoying"
	}

	return "unknown"
}

func (g Grade) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// Options configures a comparison.
type Options struct {
	Mode Mode

	// PlaybackLevel is the level in dB SPL a full scale sine is played back at (default: 92).
	PlaybackLevel float64

	// ClampMOVs limits the normalized network inputs to [0, 1] (default: off).
	ClampMOVs bool

	// SlopeFilter selects the filter bank slope smoothing (advanced mode only, default: smoothed).
	SlopeFilter SlopeFilter

	// ChunkFrames is the number of sample frames decoded per read when comparing streams (default: 4096).
	// It has no influence on the result.
	ChunkFrames int
}

// DefaultOptions returns the basic version at the standard playback level.
func DefaultOptions() Options {
	return Options{
		Mode:          ModeBasic,
		PlaybackLevel: earmodel.DefaultPlaybackLevel,
		SlopeFilter:   SlopeSmoothed,
		ChunkFrames:   4096,
	}
}

func applyDefaults(opts *Options) {
	defaults := DefaultOptions()

	if opts.PlaybackLevel == 0 {
		opts.PlaybackLevel = defaults.PlaybackLevel
	}

	if opts.ChunkFrames <= 0 {
		opts.ChunkFrames = defaults.ChunkFrames
	}
}

func (o Options) algo() algo.Options {
	return algo.Options{
		PlaybackLevel: o.PlaybackLevel,
		Slope:         o.SlopeFilter,
		ClampMOVs:     o.ClampMOVs,
	}
}

// MOV is a named model output variable.
type MOV struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Result is the outcome of a comparison.
type Result struct {
	DistortionIndex float64 `json:"distortion_index"`
	ODG             float64 `json:"odg"`
	Grade           Grade   `json:"grade"`
	MOVs            []MOV   `json:"movs"`
	Mode            Mode    `json:"mode"`
	// Frames is the number of frames processed by the primary ear model.
	Frames int `json:"frames"`
	// Samples is the number of samples compared per channel.
	Samples  int `json:"samples"`
	Channels int `json:"channels"`
}

// Seconds is the compared duration.
func (r *Result) Seconds() float64 {
	return float64(r.Samples) / SampleRate
}
