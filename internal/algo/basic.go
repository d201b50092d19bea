package algo

import (
	"fmt"

	"github.com/farcloser/peaq/internal/earmodel"
	"github.com/farcloser/peaq/internal/mov"
	"github.com/farcloser/peaq/internal/nn"
)

// Options configure a variant.
type Options struct {
	// PlaybackLevel is the level (dB SPL) of a full scale sine.
	PlaybackLevel float64
	// Slope selects the spreading slope filter of the filter bank model (advanced version only).
	Slope earmodel.SlopeFilter
	// ClampMOVs limits the normalized network inputs to [0, 1].
	ClampMOVs bool
}

// MOV is a named model output variable.
type MOV struct {
	Name  string
	Value float64
}

// Score is the outcome of a comparison.
type Score struct {
	DistortionIndex float64
	ODG             float64
	MOVs            []MOV
}

const (
	// Modulation based measures ignore the first half second.
	modulationDelay = 0.5
	// Noise loudness waits that long after both signals became audible.
	loudnessDelay = 0.05

	basicLevelWeight    = 100
	advancedLevelWeight = 1

	// EHS is reported scaled up.
	harmonicScale = 1000
)

// Basic is the basic version: one 109 band FFT ear model and eleven MOVs.
type Basic struct {
	*Base

	model   *earmodel.FFT
	network *nn.Network
	clamp   bool

	modDelay  int
	loudDelay int

	nmr       *mov.NoiseToMask
	harmonic  *mov.HarmonicStructure
	detection *mov.Detection

	bandwidthRef  *mov.Average
	bandwidthTest *mov.Average
	totalNMR      *mov.AverageLog
	relDist       *mov.Average
	winModDiff    *mov.WindowedAverage
	avgModDiff1   *mov.Average
	avgModDiff2   *mov.Average
	noiseLoud     *mov.RMS
	ehs           *mov.Average
	adb           *mov.ADB
	mfpd          *mov.FilteredMax
}

// NewBasic builds the basic version for the given channel count.
func NewBasic(channels int, opts Options) (*Basic, error) {
	model, err := earmodel.NewFFT(earmodel.BasicBands, opts.PlaybackLevel)
	if err != nil {
		return nil, err
	}

	return newBasic(channels, model, opts)
}

func newBasic(channels int, model *earmodel.FFT, opts Options) (*Basic, error) {
	if err := checkBands(model, earmodel.BasicBands); err != nil {
		return nil, err
	}

	basic := &Basic{
		model:         model,
		network:       nn.Basic(),
		clamp:         opts.ClampMOVs,
		modDelay:      framesFor(modulationDelay, model.StepSize()),
		loudDelay:     framesFor(loudnessDelay, model.StepSize()),
		nmr:           mov.NewNoiseToMask(model),
		harmonic:      mov.NewHarmonicStructure(),
		detection:     mov.NewDetection(model.BandCount()),
		bandwidthRef:  mov.NewAverage(channels),
		bandwidthTest: mov.NewAverage(channels),
		totalNMR:      mov.NewAverageLog(channels),
		relDist:       mov.NewAverage(channels),
		winModDiff:    mov.NewWindowedAverage(channels),
		avgModDiff1:   mov.NewAverage(channels),
		avgModDiff2:   mov.NewAverage(channels),
		noiseLoud:     mov.NewRMS(channels),
		ehs:           mov.NewAverage(channels),
		adb:           mov.NewADB(),
		mfpd:          mov.NewFilteredMax(),
	}

	base, err := NewBase(channels, basic.frame, model)
	if err != nil {
		return nil, err
	}

	basic.Base = base

	return basic, nil
}

func (b *Basic) frame(frame *Frame) {
	noise := b.model.InternalNoise()
	modulated := frame.Index >= b.modDelay
	loud := modulated && frame.LoudnessFrame >= 0 && frame.Index >= frame.LoudnessFrame+b.loudDelay

	b.detection.Reset()

	for channel, ch := range frame.Channels {
		ref := fftState(ch.Ref)
		test := fftState(ch.Test)

		if frame.Above {
			bwRef, bwTest := mov.Bandwidth(ref.PowerSpectrum(), test.PowerSpectrum())
			if bwRef > mov.BandwidthMinimum {
				b.bandwidthRef.Accumulate(channel, float64(bwRef), 1)
				b.bandwidthTest.Accumulate(channel, float64(bwTest), 1)
			}

			nmr, peak := b.nmr.Frame(ref.WeightedPowerSpectrum(), test.WeightedPowerSpectrum(), ref.UnsmearedExcitation())
			b.totalNMR.Accumulate(channel, nmr, 1)
			b.relDist.Accumulate(channel, indicator(peak >= mov.DistortedBandDB), 1)

			b.ehs.Accumulate(channel, b.harmonic.Frame(ref.WeightedPowerSpectrum(), test.WeightedPowerSpectrum()), 1)
		}

		if modulated {
			diff1 := mov.ModulationDifference(ch.ModRef, ch.ModTest, 1, 1)
			diff2 := mov.ModulationDifference(ch.ModRef, ch.ModTest, 0.01, 0.1)
			weight := mov.TemporalWeight(ch.AverageRef, noise, basicLevelWeight)

			b.winModDiff.Accumulate(channel, diff1)
			b.avgModDiff1.Accumulate(channel, diff1, weight)
			b.avgModDiff2.Accumulate(channel, diff2, weight)
		}

		if loud {
			nl := mov.NoiseLoudness(mov.NoiseLoudnessBasic, ch.ModRef, ch.ModTest, ch.AdaptedRef, ch.AdaptedTest, noise)
			b.noiseLoud.Accumulate(channel, nl, 1)
		}

		b.detection.AddChannel(ref.Excitation(), test.Excitation())
	}

	if frame.Above {
		probability, steps := b.detection.Total()
		b.adb.Accumulate(probability, steps)
		b.mfpd.Accumulate(probability)
	}
}

// MOVs returns the eleven model output variables in network order.
func (b *Basic) MOVs() []MOV {
	return []MOV{
		{Name: "BandwidthRefB", Value: b.bandwidthRef.Value()},
		{Name: "BandwidthTestB", Value: b.bandwidthTest.Value()},
		{Name: "TotalNMRB", Value: b.totalNMR.Value()},
		{Name: "WinModDiff1B", Value: b.winModDiff.Value()},
		{Name: "ADBB", Value: b.adb.Value()},
		{Name: "EHSB", Value: harmonicScale * b.ehs.Value()},
		{Name: "AvgModDiff1B", Value: b.avgModDiff1.Value()},
		{Name: "AvgModDiff2B", Value: b.avgModDiff2.Value()},
		{Name: "RmsNoiseLoudB", Value: b.noiseLoud.Value()},
		{Name: "MFPDB", Value: b.mfpd.Value()},
		{Name: "RelDistFramesB", Value: b.relDist.Value()},
	}
}

// Score evaluates the network on the current MOVs. Call it after Flush.
func (b *Basic) Score() Score {
	return score(b.network, b.MOVs(), b.clamp)
}

func score(network *nn.Network, movs []MOV, clamp bool) Score {
	values := make([]float64, len(movs))
	for i, m := range movs {
		values[i] = m.Value
	}

	di := network.DistortionIndex(values, clamp)

	return Score{DistortionIndex: di, ODG: nn.ODG(di), MOVs: movs}
}

func fftState(state earmodel.State) *earmodel.FFTState {
	st, ok := state.(*earmodel.FFTState)
	if !ok {
		panic(fmt.Sprintf("algo: expected an FFT model state, got %T", state))
	}

	return st
}

func indicator(condition bool) float64 {
	if condition {
		return 1
	}

	return 0
}
