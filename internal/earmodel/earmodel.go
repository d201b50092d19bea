// Package earmodel implements the two peripheral ear models of ITU-R BS.1387: the FFT based model and the
// filter bank based model. Both turn a frame of time-domain samples into an excitation pattern over pitch bands.
//
// A model value is an immutable configuration, safe to share across channels and goroutines.
// All mutable filter memory lives in a State obtained from NewState, owned by exactly one channel.
package earmodel

import (
	"errors"
	"math"
)

// SampleRate is the only sample rate the ear models are defined for.
const SampleRate = 48000

// DefaultPlaybackLevel is the sound pressure level (dB SPL) a full-scale sine is assumed to be played back at.
const DefaultPlaybackLevel = 92.0

const (
	// Band powers are floored to keep logarithms and fractional powers defined.
	powerFloor = 1e-12

	// Reference excitation for the specific loudness scale.
	loudnessE0 = 1e4
)

// ErrInvalidPlaybackLevel is returned when a model is built with a non-positive playback level.
var ErrInvalidPlaybackLevel = errors.New("playback level must be positive")

// Model is the capability shared by both ear model kinds.
type Model interface {
	// FrameSize is the number of samples consumed by one call to Process.
	FrameSize() int
	// StepSize is the number of samples the caller advances between two frames.
	StepSize() int
	// BandCount is the length of the excitation patterns.
	BandCount() int
	// CenterFrequencies returns the band center frequencies in Hz.
	CenterFrequencies() []float64
	// InternalNoise returns the per-band internal noise excitation.
	InternalNoise() []float64
	// NewState allocates the per-channel mutable state.
	NewState() State
	// Process runs one frame through the model, updating state in place.
	Process(state State, frame []float64)
	// Loudness returns the overall loudness (sone) of the last processed frame.
	Loudness(state State) float64
}

// State is the per-channel output of a model.
type State interface {
	// Excitation returns the time-smeared excitation pattern of the last frame.
	Excitation() []float64
	// UnsmearedExcitation returns the excitation pattern before forward masking.
	UnsmearedExcitation() []float64
}

func hzToBark(freq float64) float64 {
	return 7 * math.Asinh(freq/650)
}

func barkToHz(bark float64) float64 {
	return 650 * math.Sinh(bark/7)
}

// outerMiddleEarDB is the outer and middle ear transfer function in dB.
func outerMiddleEarDB(freq float64) float64 {
	fkhz := freq / 1000

	return -0.6*3.64*math.Pow(fkhz, -0.8) +
		6.5*math.Exp(-0.6*(fkhz-3.3)*(fkhz-3.3)) -
		1e-3*math.Pow(fkhz, 3.6)
}

func internalNoise(freq float64) float64 {
	return math.Pow(10, 0.4*0.364*math.Pow(freq/1000, -0.8))
}

func excitationThreshold(freq float64) float64 {
	return math.Pow(10, 0.364*math.Pow(freq/1000, -0.8))
}

func thresholdIndex(freq float64) float64 {
	return math.Pow(10, 0.1*(-2-2.05*math.Atan(freq/4000)-0.75*math.Atan((freq/1600)*(freq/1600))))
}

// timeConstants returns the per-band one-pole coefficient exp(-step/(fs·tau)),
// with tau interpolated between tauMin and tau100 as 100/fc.
func timeConstants(centers []float64, step int, tau100, tauMin float64) []float64 {
	coefficients := make([]float64, len(centers))

	for band, fc := range centers {
		tau := tauMin + 100/fc*(tau100-tauMin)
		coefficients[band] = math.Exp(-float64(step) / (SampleRate * tau))
	}

	return coefficients
}

// loudness holds the per-band constants of the specific loudness computation.
type loudness struct {
	threshold []float64
	index     []float64
	scale     []float64
	factor    float64
}

func newLoudness(centers []float64, constant float64) loudness {
	bands := len(centers)
	ld := loudness{
		threshold: make([]float64, bands),
		index:     make([]float64, bands),
		scale:     make([]float64, bands),
		factor:    24.0 / float64(bands),
	}

	for band, fc := range centers {
		ld.threshold[band] = excitationThreshold(fc)
		ld.index[band] = thresholdIndex(fc)
		ld.scale[band] = constant * math.Pow(ld.threshold[band]/(ld.index[band]*loudnessE0), 0.23)
	}

	return ld
}

// specific returns the loudness contribution of one band. It is zero at or below the excitation threshold.
func (ld *loudness) specific(band int, excitation float64) float64 {
	s := ld.index[band]
	value := ld.scale[band] * (math.Pow(1-s+s*excitation/ld.threshold[band], 0.23) - 1)

	return max(value, 0)
}

func (ld *loudness) total(excitation []float64) float64 {
	var sum float64

	for band, e := range excitation {
		sum += ld.specific(band, e)
	}

	return ld.factor * sum
}
