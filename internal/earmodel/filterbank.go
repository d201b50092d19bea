package earmodel

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	vecmath "github.com/cwbudde/algo-vecmath"
)

const (
	filterbankBands     = 40
	filterbankStepSize  = 192
	filterbankDecimate  = 32
	filterbankLowerFreq = 50.0
	filterbankUpperFreq = 18000.0

	// Ratio between two adjacent bands of the spreading cascade, and its fixed lower slope (31 dB per Bark).
	spreadDist  = 0.921851456499719
	spreadLower = 0.0802581846102741

	backwardTaps = 12
	backwardGain = 0.9761 / 6

	filterbankTau100 = 0.020
	filterbankTauMin = 0.004

	filterbankLoudnessConstant = 1.26539
)

// SlopeFilter selects the coefficient order of the one-pole filter smoothing the level-dependent upper slope of the
// filter bank spreading. The two forms are given by different parts of ITU-R BS.1387.
type SlopeFilter int

const (
	// SlopeSmoothed updates the slope as a·previous + (1-a)·target, a being the slow pole.
	SlopeSmoothed SlopeFilter = iota
	// SlopeSwapped updates the slope as (1-a)·previous + a·target.
	SlopeSwapped
)

func (s SlopeFilter) String() string {
	switch s {
	case SlopeSmoothed:
		return "smoothed"
	case SlopeSwapped:
		return "swapped"
	}

	return "unknown"
}

// filterLengths are the analysis filter lengths, band 0 first.
//
//nolint:gochecknoglobals // fixed by the standard
var filterLengths = [filterbankBands]int{
	1456, 1438, 1406, 1362, 1308, 1244, 1176, 1104, 1030, 956,
	884, 814, 748, 686, 626, 570, 520, 472, 430, 390,
	354, 320, 290, 262, 238, 214, 194, 176, 158, 144,
	130, 118, 106, 96, 86, 78, 70, 64, 58, 52,
}

// Both DC rejection sections are second order high-passes with a double zero at DC.
//
//nolint:gochecknoglobals // fixed by the standard
var dcReject = []biquad.Coefficients{
	{B0: 1, B1: -2, B2: 1, A1: -1.99517, A2: 0.995174},
	{B0: 1, B1: -2, B2: 1, A1: -1.99799, A2: 0.997998},
}

// analysisFilter holds the upper half of a symmetric band filter, index 0 being the center tap.
type analysisFilter struct {
	length int
	delay  int
	cos    []float64
	sin    []float64
}

// Filterbank is the filter bank based ear model.
type Filterbank struct {
	slope     SlopeFilter
	inputGain float64

	filters [filterbankBands]analysisFilter

	centers  []float64
	noise    []float64
	forward  []float64
	slopeA   float64
	slopeExp []float64
	backward [backwardTaps]float64

	loud loudness
}

// NewFilterbank builds the filter bank ear model for the given playback level in dB SPL.
func NewFilterbank(playbackLevel float64, slope SlopeFilter) (*Filterbank, error) {
	if playbackLevel <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlaybackLevel, playbackLevel)
	}

	if slope != SlopeSmoothed && slope != SlopeSwapped {
		return nil, fmt.Errorf("unknown slope filter %d", slope)
	}

	model := &Filterbank{
		slope:     slope,
		inputGain: math.Pow(10, playbackLevel/20),
		centers:   make([]float64, filterbankBands),
		noise:     make([]float64, filterbankBands),
		slopeA:    math.Exp(-filterbankDecimate / (SampleRate * 0.1)),
		slopeExp:  make([]float64, filterbankBands),
	}

	lowerZ := hzToBark(filterbankLowerFreq)
	upperZ := hzToBark(filterbankUpperFreq)

	for band := range filterbankBands {
		z := lowerZ + float64(band)*(upperZ-lowerZ)/(filterbankBands-1)
		fc := barkToHz(z)

		model.centers[band] = fc
		model.noise[band] = internalNoise(fc)
		model.slopeExp[band] = 24 + 230/fc
		model.filters[band] = newAnalysisFilter(filterLengths[band], fc)
	}

	for tap := range backwardTaps {
		c := math.Cos(math.Pi * float64(tap-5) / backwardTaps)
		model.backward[tap] = backwardGain * c * c
	}

	model.forward = timeConstants(model.centers, filterbankStepSize, filterbankTau100, filterbankTauMin)
	model.loud = newLoudness(model.centers, filterbankLoudnessConstant)

	return model, nil
}

func newAnalysisFilter(length int, fc float64) analysisFilter {
	half := length / 2
	gain := math.Pow(10, outerMiddleEarDB(fc)/20)

	filter := analysisFilter{
		length: length,
		delay:  (filterLengths[0] - length) / 2,
		cos:    make([]float64, half),
		sin:    make([]float64, half),
	}

	// Tap n = half+m.
	for m := range half {
		n := float64(half + m)
		win := 4 / float64(length) * math.Pow(math.Sin(math.Pi*n/float64(length)), 2)
		phase := 2 * math.Pi * fc * float64(m) / SampleRate
		filter.cos[m] = gain * win * math.Cos(phase)
		filter.sin[m] = gain * win * math.Sin(phase)
	}

	return filter
}

func (m *Filterbank) FrameSize() int { return filterbankStepSize }

func (m *Filterbank) StepSize() int { return filterbankStepSize }

func (m *Filterbank) BandCount() int { return filterbankBands }

func (m *Filterbank) CenterFrequencies() []float64 { return m.centers }

func (m *Filterbank) InternalNoise() []float64 { return m.noise }

// Slope returns the slope filter variant the model was built with.
func (m *Filterbank) Slope() SlopeFilter { return m.slope }

func (m *Filterbank) NewState() State { return m.newState() }

func (m *Filterbank) Loudness(state State) float64 { return m.loud.total(state.Excitation()) }

// FilterbankState is the per-channel state of the filter bank model.
type FilterbankState struct {
	dc *biquad.Chain

	// Delay line stored twice back to back; line[pos+n] is the sample n steps in the past.
	line []float64
	pos  int

	sum, diff []float64

	outRe, outIm       [filterbankBands]float64
	spreadRe, spreadIm [filterbankBands]float64
	upper              [filterbankBands]float64

	history [backwardTaps][filterbankBands]float64
	// Index of the most recent history row.
	head int

	unsmeared []float64
	excite    []float64
}

func (m *Filterbank) newState() *FilterbankState {
	longest := filterLengths[0]

	return &FilterbankState{
		dc:        biquad.NewChain(dcReject),
		line:      make([]float64, 2*longest),
		sum:       make([]float64, longest/2),
		diff:      make([]float64, longest/2),
		unsmeared: make([]float64, filterbankBands),
		excite:    make([]float64, filterbankBands),
	}
}

func (s *FilterbankState) Excitation() []float64 { return s.excite }

func (s *FilterbankState) UnsmearedExcitation() []float64 { return s.unsmeared }

// Process runs one block of StepSize samples through the model.
func (m *Filterbank) Process(state State, frame []float64) {
	st, ok := state.(*FilterbankState)
	if !ok {
		panic(fmt.Sprintf("earmodel: filter bank model given foreign state %T", state))
	}

	if len(frame) != filterbankStepSize {
		panic(fmt.Sprintf("earmodel: filter bank frame has %d samples, want %d", len(frame), filterbankStepSize))
	}

	for n, sample := range frame {
		st.push(st.dc.ProcessSample(sample * m.inputGain))

		if n%filterbankDecimate == filterbankDecimate-1 {
			m.analyze(st)
			m.spreadBands(st)
			m.pushHistory(st)
		}
	}

	m.maskBackward(st)

	for band := range filterbankBands {
		st.unsmeared[band] += m.noise[band]

		a := m.forward[band]
		st.excite[band] = a*st.excite[band] + (1-a)*st.unsmeared[band]
	}
}

func (s *FilterbankState) push(x float64) {
	longest := filterLengths[0]

	s.pos--
	if s.pos < 0 {
		s.pos = longest - 1
	}

	s.line[s.pos] = x
	s.line[s.pos+longest] = x
}

// window returns the delay line contents, newest sample first.
func (s *FilterbankState) window() []float64 {
	return s.line[s.pos : s.pos+filterLengths[0]]
}

func (m *Filterbank) analyze(st *FilterbankState) {
	window := st.window()

	for band := range filterbankBands {
		m.filters[band].apply(window, st.sum, st.diff, &st.outRe[band], &st.outIm[band])
	}
}

// apply evaluates the filter on window (window[n] being n samples in the past) pairing taps symmetric
// about the center: the cosine part sees their sum, the sine part their difference.
func (f *analysisFilter) apply(window, sum, diff []float64, re, im *float64) {
	half := f.length / 2
	center := f.delay + half

	sum = sum[:half]
	diff = diff[:half]

	sum[0] = window[center]
	diff[0] = 0

	for m := 1; m < half; m++ {
		later := window[center-m]
		earlier := window[center+m]
		sum[m] = earlier + later
		diff[m] = earlier - later
	}

	*re = vecmath.DotProduct(f.cos, sum)
	*im = vecmath.DotProduct(f.sin, diff)
}

func (m *Filterbank) spreadBands(st *FilterbankState) {
	for band := range filterbankBands {
		re := st.outRe[band]
		im := st.outIm[band]
		level := 10 * math.Log10(max(re*re+im*im, powerFloor))
		exponent := max(4, m.slopeExp[band]-0.2*level)
		target := math.Pow(spreadDist, exponent)

		switch m.slope {
		case SlopeSmoothed:
			st.upper[band] = m.slopeA*st.upper[band] + (1-m.slopeA)*target
		case SlopeSwapped:
			st.upper[band] = (1-m.slopeA)*st.upper[band] + m.slopeA*target
		}

		st.spreadRe[band] = re
		st.spreadIm[band] = im
	}

	// Upward.
	for band := range filterbankBands - 1 {
		re := st.outRe[band]
		im := st.outIm[band]
		slope := st.upper[band]

		for upper := band + 1; upper < filterbankBands; upper++ {
			re *= slope
			im *= slope
			st.spreadRe[upper] += re
			st.spreadIm[upper] += im
		}
	}

	// Downward.
	var re, im float64

	for band := filterbankBands - 1; band >= 0; band-- {
		re = re*spreadLower + st.spreadRe[band]
		im = im*spreadLower + st.spreadIm[band]
		st.spreadRe[band] = re
		st.spreadIm[band] = im
	}
}

func (m *Filterbank) pushHistory(st *FilterbankState) {
	st.head = (st.head + 1) % backwardTaps

	row := &st.history[st.head]
	for band := range filterbankBands {
		row[band] = st.spreadRe[band]*st.spreadRe[band] + st.spreadIm[band]*st.spreadIm[band]
	}
}

// maskBackward filters the rectified history, writing into the unsmeared pattern. Tap i weighs the row i
// updates in the past.
func (m *Filterbank) maskBackward(st *FilterbankState) {
	for band := range filterbankBands {
		st.unsmeared[band] = 0
	}

	for tap := range backwardTaps {
		row := &st.history[(st.head-tap+backwardTaps)%backwardTaps]
		weight := m.backward[tap]

		for band := range filterbankBands {
			st.unsmeared[band] += weight * row[band]
		}
	}
}
