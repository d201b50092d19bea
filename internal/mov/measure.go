package mov

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/peaq/internal/earmodel"
)

const (
	floorRatio = 1e-12

	// Bins of the 2048 point spectrum searched for the bandwidth noise floor.
	bandwidthFloorFirst = 921
	bandwidthFloorLast  = 1023

	// Power ratio of 5 dB, the margin the test spectrum must clear above the floor.
	fiveDB = 3.1622776601683795

	// BandwidthMinimum is the reference bandwidth (in bins) a frame must exceed to count.
	BandwidthMinimum = 346

	// DistortedBandDB is the noise to mask ratio flagging a band as audibly distorted.
	DistortedBandDB = 1.5
)

// Decibels converts a power ratio to dB, flooring it first.
func Decibels(ratio float64) float64 {
	return 10 * math.Log10(max(ratio, floorRatio))
}

// Bandwidth estimates the reference and test bandwidths of one frame, in FFT bins, from level-calibrated power
// spectra of 1025 bins. Zero means no bin rose far enough above the test signal's high-frequency floor.
func Bandwidth(ref, test []float64) (bwRef, bwTest int) {
	floor := floats.Max(test[bandwidthFloorFirst : bandwidthFloorLast+1])

	for k := bandwidthFloorFirst - 1; k >= 0; k-- {
		if ref[k] >= 10*floor {
			bwRef = k + 1

			break
		}
	}

	for k := bwRef - 1; k >= 0; k-- {
		if test[k] >= fiveDB*floor {
			bwTest = k + 1

			break
		}
	}

	return bwRef, bwTest
}

// NoiseToMask computes the noise to mask ratio of an FFT ear model frame.
type NoiseToMask struct {
	model  *earmodel.FFT
	offset []float64
	noise  []float64
	bands  []float64
}

func NewNoiseToMask(model *earmodel.FFT) *NoiseToMask {
	nmr := &NoiseToMask{
		model:  model,
		offset: make([]float64, model.BandCount()),
		noise:  make([]float64, model.SpectrumSize()),
		bands:  make([]float64, model.BandCount()),
	}

	for band := range nmr.offset {
		z := float64(band) * model.Resolution()

		gain := 3.0
		if z > 12 {
			gain = 0.25 * z
		}

		nmr.offset[band] = math.Pow(10, -gain/10)
	}

	return nmr
}

// Frame takes the weighted power spectra of both signals and the reference excitation before time smearing.
// It returns the band averaged noise to mask ratio and the largest band ratio in dB.
func (n *NoiseToMask) Frame(weightedRef, weightedTest, excitationRef []float64) (mean, peakDB float64) {
	for k := range n.noise {
		diff := math.Sqrt(weightedRef[k]) - math.Sqrt(weightedTest[k])
		n.noise[k] = diff * diff
	}

	n.model.Group(n.bands, n.noise)

	peak := 0.0

	for band, noise := range n.bands {
		ratio := noise / (excitationRef[band] * n.offset[band])
		mean += ratio
		peak = max(peak, ratio)
	}

	mean /= float64(len(n.bands))

	return mean, Decibels(peak)
}

// ModulationDifference is 100/Z·Σ w·|Mt − Mr| / (offset + Mr), w being 1 where the test modulation is larger and
// negWeight elsewhere.
func ModulationDifference(modRef, modTest []float64, offset, negWeight float64) float64 {
	var sum float64

	for band, ref := range modRef {
		test := modTest[band]

		weight := negWeight
		if test > ref {
			weight = 1
		}

		sum += weight * math.Abs(test-ref) / (offset + ref)
	}

	return 100 * sum / float64(len(modRef))
}

// TemporalWeight weighs frames by how far the reference loudness rises above the internal noise.
func TemporalWeight(averageRef, noise []float64, levelWeight float64) float64 {
	var sum float64

	for band, avg := range averageRef {
		sum += avg / (avg + levelWeight*math.Pow(noise[band], 0.3))
	}

	return sum
}

// NoiseLoudnessParams parameterizes the partial noise loudness.
type NoiseLoudnessParams struct {
	Alpha           float64
	ThresholdFactor float64
	S0              float64
	// Results below Minimum are reported as zero.
	Minimum float64
}

//nolint:gochecknoglobals // fixed by the standard
var (
	// NoiseLoudnessBasic is used by RmsNoiseLoudB.
	NoiseLoudnessBasic = NoiseLoudnessParams{Alpha: 1.5, ThresholdFactor: 0.15, S0: 0.5}
	// NoiseLoudnessAdvanced is the direct part of RmsNoiseLoudAsymA.
	NoiseLoudnessAdvanced = NoiseLoudnessParams{Alpha: 2.5, ThresholdFactor: 0.3, S0: 1, Minimum: 0.1}
	// LostLoudness is the swapped part of RmsNoiseLoudAsymA, and the measure behind AvgLinDistA.
	LostLoudness = NoiseLoudnessParams{Alpha: 1.5, ThresholdFactor: 0.15, S0: 1}
)

// NoiseLoudness is the loudness of the distortion in test partially masked by ref. Both excitation patterns are
// level and pattern adapted; noise is the internal noise of the ear model.
func NoiseLoudness(params NoiseLoudnessParams, modRef, modTest, ref, test, noise []float64) float64 {
	var sum float64

	for band := range ref {
		sRef := params.ThresholdFactor*modRef[band] + params.S0
		sTest := params.ThresholdFactor*modTest[band] + params.S0

		er := max(ref[band], floorRatio)
		et := test[band]

		beta := math.Exp(-params.Alpha * (et - er) / er)
		a := max(sTest*et-sRef*er, 0)

		sum += math.Pow(noise[band]/sTest, 0.23) * (math.Pow(1+a/(noise[band]+sRef*er*beta), 0.23) - 1)
	}

	loudness := 24 * sum / float64(len(ref))
	if loudness < params.Minimum {
		return 0
	}

	return loudness
}

// Detection combines per channel detection probabilities into the binaural probability and steps above threshold.
type Detection struct {
	probability []float64
	steps       []float64
}

func NewDetection(bands int) *Detection {
	return &Detection{
		probability: make([]float64, bands),
		steps:       make([]float64, bands),
	}
}

// Reset starts a new frame.
func (d *Detection) Reset() {
	clear(d.probability)
	clear(d.steps)
}

// AddChannel folds in the excitation patterns of one channel, keeping the per band maximum.
func (d *Detection) AddChannel(ref, test []float64) {
	for band := range d.probability {
		levelRef := 10 * math.Log10(max(ref[band], floorRatio))
		levelTest := 10 * math.Log10(max(test[band], floorRatio))

		step := detectionStep(0.3*max(levelRef, levelTest) + 0.7*levelTest)
		diff := levelRef - levelTest

		slope := 6.0
		if levelRef > levelTest {
			slope = 4
		}

		scale := math.Pow(10, math.Log10(math.Log10(2))/slope) / step
		probability := 1 - math.Pow(10, -math.Pow(scale*diff, slope))
		steps := math.Abs(math.Trunc(diff)) / step

		d.probability[band] = max(d.probability[band], probability)
		d.steps[band] = max(d.steps[band], steps)
	}
}

// Total returns the probability of detecting the distortion in any band and the summed steps above threshold.
func (d *Detection) Total() (probability, steps float64) {
	miss := 1.0
	for _, p := range d.probability {
		miss *= 1 - p
	}

	return 1 - miss, floats.Sum(d.steps)
}

// detectionStep is the just noticeable level difference (dB) at the given level.
func detectionStep(level float64) float64 {
	if level <= 0 {
		return 1e30
	}

	return 5.95072*math.Pow(6.39468/level, 1.71332) +
		9.01033e-11*math.Pow(level, 4) +
		5.05622e-6*math.Pow(level, 3) -
		0.00102438*level*level +
		0.0550197*level -
		0.198719
}

const (
	maxLag = 256

	// Hann window gain restoring unit power.
	ehsWindowGain = 1.63299316185546
)

// HarmonicStructure measures the error harmonic structure: the largest periodicity of the log ratio between the
// test and reference spectra.
type HarmonicStructure struct {
	transform *fourier.FFT
	ratio     []float64
	corr      []float64
	window    []float64
	coeffs    []complex128
	power     []float64
}

func NewHarmonicStructure() *HarmonicStructure {
	h := &HarmonicStructure{
		transform: fourier.NewFFT(maxLag),
		ratio:     make([]float64, 2*maxLag),
		corr:      make([]float64, maxLag),
		window:    window.Generate(window.TypeHann, maxLag),
		coeffs:    make([]complex128, maxLag/2+1),
		power:     make([]float64, maxLag/2+1),
	}

	vecmath.ScaleBlockInPlace(h.window, ehsWindowGain)

	return h
}

// Frame takes weighted power spectra of at least 2·256+1 bins.
func (h *HarmonicStructure) Frame(weightedRef, weightedTest []float64) float64 {
	for n := range h.ratio {
		ref := weightedRef[n+1]
		test := weightedTest[n+1]

		if ref == 0 || test == 0 {
			h.ratio[n] = 0

			continue
		}

		h.ratio[n] = math.Log(test / ref)
	}

	head := h.ratio[:maxLag]
	energy := floats.Dot(head, head)

	for lag := range maxLag {
		shifted := h.ratio[lag : lag+maxLag]
		denominator := math.Sqrt(energy * floats.Dot(shifted, shifted))

		if denominator == 0 {
			h.corr[lag] = 0

			continue
		}

		h.corr[lag] = floats.Dot(head, shifted) / denominator
	}

	floats.AddConst(-floats.Sum(h.corr)/maxLag, h.corr)
	vecmath.MulBlockInPlace(h.corr, h.window)

	h.transform.Coefficients(h.coeffs, h.corr)

	for k, c := range h.coeffs {
		h.power[k] = real(c)*real(c) + imag(c)*imag(c)
	}

	// Skip the descent from the zero lag peak.
	k := 1
	for k+1 < len(h.power) && h.power[k+1] < h.power[k] {
		k++
	}

	return floats.Max(h.power[k:])
}
