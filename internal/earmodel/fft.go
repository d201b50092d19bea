package earmodel

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftFrameSize = 2048
	fftStepSize  = fftFrameSize / 2

	// Peak FFT magnitude of a unit sine, relative to N/4, for the Hann window (worst-case bin offset).
	fftGamma = 0.84971762641205

	fftLowerFreq = 80.0
	fftUpperFreq = 18000.0

	fftTau100 = 0.030
	fftTauMin = 0.008

	fftLoudnessConstant = 1.07664
)

// Standard band layouts of the FFT model.
const (
	// BasicBands is the 109-band (quarter critical band) layout.
	BasicBands = 109
	// AdvancedBands is the 55-band (half critical band) layout.
	AdvancedBands = 55
)

// FFT is the FFT based ear model.
type FFT struct {
	bands      int
	resolution float64

	levelFactor float64
	window      []float64
	earWeight   []float64

	groups []bandGroup

	centers []float64
	noise   []float64
	smear   []float64

	spread *spreader
	loud   loudness
}

type bandGroup struct {
	first   int
	weights []float64
}

// NewFFT builds an FFT ear model with the given number of bands (BasicBands or AdvancedBands)
// and playback level in dB SPL.
func NewFFT(bands int, playbackLevel float64) (*FFT, error) {
	var resolution float64

	switch bands {
	case BasicBands:
		resolution = 0.25
	case AdvancedBands:
		resolution = 0.5
	default:
		return nil, fmt.Errorf("unsupported FFT band count %d (valid: %d, %d)", bands, BasicBands, AdvancedBands)
	}

	if playbackLevel <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlaybackLevel, playbackLevel)
	}

	model := &FFT{
		bands:       bands,
		resolution:  resolution,
		levelFactor: math.Pow(10, playbackLevel/10) / math.Pow(fftGamma*fftFrameSize/4, 2),
		window:      window.Generate(window.TypeHann, fftFrameSize),
		earWeight:   make([]float64, fftFrameSize/2+1),
		groups:      make([]bandGroup, bands),
		centers:     make([]float64, bands),
		noise:       make([]float64, bands),
	}

	binWidth := float64(SampleRate) / fftFrameSize

	// Bin 0 carries no weight.
	for k := 1; k < len(model.earWeight); k++ {
		model.earWeight[k] = math.Pow(10, outerMiddleEarDB(float64(k)*binWidth)/10)
	}

	lowerZ := hzToBark(fftLowerFreq)
	upperZ := hzToBark(fftUpperFreq)

	for band := range bands {
		zl := lowerZ + float64(band)*resolution
		zu := min(zl+resolution, upperZ)
		lower := barkToHz(zl)
		upper := barkToHz(zu)

		model.centers[band] = barkToHz((zl + zu) / 2)
		model.noise[band] = internalNoise(model.centers[band])
		model.groups[band] = newBandGroup(lower, upper, binWidth, len(model.earWeight))
	}

	model.smear = timeConstants(model.centers, fftStepSize, fftTau100, fftTauMin)
	model.spread = newSpreader(model.centers, resolution)
	model.loud = newLoudness(model.centers, fftLoudnessConstant)

	return model, nil
}

// newBandGroup computes the fractional contribution of every FFT bin overlapping [lower, upper).
// Bin k covers [(k-0.5)·binWidth, (k+0.5)·binWidth).
func newBandGroup(lower, upper, binWidth float64, bins int) bandGroup {
	first := max(int(math.Floor(lower/binWidth+0.5)), 0)
	last := min(int(math.Floor(upper/binWidth+0.5)), bins-1)

	group := bandGroup{first: first, weights: make([]float64, last-first+1)}

	for k := first; k <= last; k++ {
		binLow := (float64(k) - 0.5) * binWidth
		binHigh := (float64(k) + 0.5) * binWidth
		overlap := min(binHigh, upper) - max(binLow, lower)
		group.weights[k-first] = max(overlap, 0) / binWidth
	}

	return group
}

func (m *FFT) FrameSize() int { return fftFrameSize }

func (m *FFT) StepSize() int { return fftStepSize }

func (m *FFT) BandCount() int { return m.bands }

func (m *FFT) CenterFrequencies() []float64 { return m.centers }

func (m *FFT) InternalNoise() []float64 { return m.noise }

// Resolution is the band width in Bark.
func (m *FFT) Resolution() float64 { return m.resolution }

// SpectrumSize is the number of bins returned by the spectrum accessors of FFTState.
func (m *FFT) SpectrumSize() int { return fftFrameSize/2 + 1 }

func (m *FFT) NewState() State { return m.newState() }

func (m *FFT) Loudness(state State) float64 { return m.loud.total(state.Excitation()) }

// Group sums a spectrum (length SpectrumSize) into band powers, floored at a small epsilon.
func (m *FFT) Group(dst, spectrum []float64) {
	for band, group := range m.groups {
		sum := vecmath.DotProduct(group.weights, spectrum[group.first:group.first+len(group.weights)])
		dst[band] = max(sum, powerFloor)
	}
}

// FFTState is the per-channel state of the FFT model.
type FFTState struct {
	transform *fourier.FFT
	windowed  []float64
	coeffs    []complex128
	re, im    []float64

	power    []float64
	weighted []float64

	bandPower []float64
	noisy     []float64
	scratch   spreadScratch

	unsmeared []float64
	filtered  []float64
	excite    []float64
}

func (m *FFT) newState() *FFTState {
	bins := fftFrameSize/2 + 1

	return &FFTState{
		transform: fourier.NewFFT(fftFrameSize),
		windowed:  make([]float64, fftFrameSize),
		coeffs:    make([]complex128, bins),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		power:     make([]float64, bins),
		weighted:  make([]float64, bins),
		bandPower: make([]float64, m.bands),
		noisy:     make([]float64, m.bands),
		scratch:   newSpreadScratch(m.bands),
		unsmeared: make([]float64, m.bands),
		filtered:  make([]float64, m.bands),
		excite:    make([]float64, m.bands),
	}
}

func (s *FFTState) Excitation() []float64 { return s.excite }

func (s *FFTState) UnsmearedExcitation() []float64 { return s.unsmeared }

// PowerSpectrum returns the level-calibrated power spectrum of the last frame.
func (s *FFTState) PowerSpectrum() []float64 { return s.power }

// WeightedPowerSpectrum returns the power spectrum after the outer and middle ear weighting.
func (s *FFTState) WeightedPowerSpectrum() []float64 { return s.weighted }

// Process runs one frame through the model.
func (m *FFT) Process(state State, frame []float64) {
	st, ok := state.(*FFTState)
	if !ok {
		panic(fmt.Sprintf("earmodel: FFT model given foreign state %T", state))
	}

	if len(frame) != fftFrameSize {
		panic(fmt.Sprintf("earmodel: FFT frame has %d samples, want %d", len(frame), fftFrameSize))
	}

	vecmath.MulBlock(st.windowed, frame, m.window)
	st.transform.Coefficients(st.coeffs, st.windowed)

	for k, c := range st.coeffs {
		st.re[k] = real(c)
		st.im[k] = imag(c)
	}

	vecmath.Power(st.power, st.re, st.im)
	vecmath.ScaleBlockInPlace(st.power, m.levelFactor)
	vecmath.MulBlock(st.weighted, st.power, m.earWeight)

	m.Group(st.bandPower, st.weighted)
	vecmath.AddBlock(st.noisy, st.bandPower, m.noise)

	m.spread.spread(st.unsmeared, st.noisy, st.scratch)

	for band, e := range st.unsmeared {
		a := m.smear[band]
		st.filtered[band] = a*st.filtered[band] + (1-a)*e
		st.excite[band] = max(st.filtered[band], e)
	}
}
