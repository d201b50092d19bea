package algo

import (
	"github.com/farcloser/peaq/internal/earmodel"
	"github.com/farcloser/peaq/internal/mov"
	"github.com/farcloser/peaq/internal/nn"
)

const (
	advancedFilterbank = iota
	advancedFFT
)

// Advanced is the advanced version: the filter bank ear model drives modulation and noise loudness measures, a
// 55 band FFT ear model the spectral ones.
type Advanced struct {
	*Base

	filterbank *earmodel.Filterbank
	fft        *earmodel.FFT
	network    *nn.Network
	clamp      bool

	modDelay  int
	loudDelay int

	nmr      *mov.NoiseToMask
	harmonic *mov.HarmonicStructure

	rmsModDiff   *mov.RMS
	noiseLoudAsy *mov.RMSAsym
	segmentalNMR *mov.Average
	ehs          *mov.Average
	linDist      *mov.Average
}

// NewAdvanced builds the advanced version for the given channel count.
func NewAdvanced(channels int, opts Options) (*Advanced, error) {
	filterbank, err := earmodel.NewFilterbank(opts.PlaybackLevel, opts.Slope)
	if err != nil {
		return nil, err
	}

	fft, err := earmodel.NewFFT(earmodel.AdvancedBands, opts.PlaybackLevel)
	if err != nil {
		return nil, err
	}

	return newAdvanced(channels, filterbank, fft, opts)
}

func newAdvanced(channels int, filterbank *earmodel.Filterbank, fft *earmodel.FFT, opts Options) (*Advanced, error) {
	if err := checkBands(fft, earmodel.AdvancedBands); err != nil {
		return nil, err
	}

	advanced := &Advanced{
		filterbank:   filterbank,
		fft:          fft,
		network:      nn.Advanced(),
		clamp:        opts.ClampMOVs,
		modDelay:     framesFor(modulationDelay, filterbank.StepSize()),
		loudDelay:    framesFor(loudnessDelay, filterbank.StepSize()),
		nmr:          mov.NewNoiseToMask(fft),
		harmonic:     mov.NewHarmonicStructure(),
		rmsModDiff:   mov.NewRMS(channels),
		noiseLoudAsy: mov.NewRMSAsym(channels),
		segmentalNMR: mov.NewAverage(channels),
		ehs:          mov.NewAverage(channels),
		linDist:      mov.NewAverage(channels),
	}

	base, err := NewBase(channels, advanced.frame, filterbank, fft)
	if err != nil {
		return nil, err
	}

	advanced.Base = base

	return advanced, nil
}

func (a *Advanced) frame(frame *Frame) {
	switch frame.Model {
	case advancedFilterbank:
		a.filterbankFrame(frame)
	case advancedFFT:
		a.fftFrame(frame)
	}
}

func (a *Advanced) filterbankFrame(frame *Frame) {
	if frame.Index < a.modDelay {
		return
	}

	noise := a.filterbank.InternalNoise()
	loud := frame.LoudnessFrame >= 0 && frame.Index >= frame.LoudnessFrame+a.loudDelay

	for channel, ch := range frame.Channels {
		diff := mov.ModulationDifference(ch.ModRef, ch.ModTest, 1, 1)
		weight := mov.TemporalWeight(ch.AverageRef, noise, advancedLevelWeight)
		a.rmsModDiff.Accumulate(channel, diff, weight)

		if !loud {
			continue
		}

		direct := mov.NoiseLoudness(mov.NoiseLoudnessAdvanced,
			ch.ModRef, ch.ModTest, ch.AdaptedRef, ch.AdaptedTest, noise)
		lost := mov.NoiseLoudness(mov.LostLoudness,
			ch.ModTest, ch.ModRef, ch.AdaptedTest, ch.AdaptedRef, noise)
		a.noiseLoudAsy.Accumulate(channel, direct, lost)

		linear := mov.NoiseLoudness(mov.LostLoudness,
			ch.ModRef, ch.ModRef, ch.AdaptedRef, ch.Ref.Excitation(), noise)
		a.linDist.Accumulate(channel, linear, 1)
	}
}

func (a *Advanced) fftFrame(frame *Frame) {
	if !frame.Above {
		return
	}

	for channel, ch := range frame.Channels {
		ref := fftState(ch.Ref)
		test := fftState(ch.Test)

		nmr, _ := a.nmr.Frame(ref.WeightedPowerSpectrum(), test.WeightedPowerSpectrum(), ref.UnsmearedExcitation())
		a.segmentalNMR.Accumulate(channel, mov.Decibels(nmr), 1)

		a.ehs.Accumulate(channel, a.harmonic.Frame(ref.WeightedPowerSpectrum(), test.WeightedPowerSpectrum()), 1)
	}
}

// MOVs returns the five model output variables in network order.
func (a *Advanced) MOVs() []MOV {
	return []MOV{
		{Name: "RmsModDiffA", Value: a.rmsModDiff.Value()},
		{Name: "RmsNoiseLoudAsymA", Value: a.noiseLoudAsy.Value()},
		{Name: "SegmentalNMRB", Value: a.segmentalNMR.Value()},
		{Name: "EHSB", Value: harmonicScale * a.ehs.Value()},
		{Name: "AvgLinDistA", Value: a.linDist.Value()},
	}
}

// Score evaluates the network on the current MOVs. Call it after Flush.
func (a *Advanced) Score() Score {
	return score(a.network, a.MOVs(), a.clamp)
}
