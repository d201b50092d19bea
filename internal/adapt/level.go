// Package adapt implements the stages that sit between the ear models and the model output variables:
// level and pattern adaptation of a reference/test pair, and modulation measurement.
package adapt

import (
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/farcloser/peaq/internal/earmodel"
)

const (
	tau100 = 0.050
	tauMin = 0.008
)

func coefficients(centers []float64, stepSize int) []float64 {
	out := make([]float64, len(centers))

	for band, fc := range centers {
		tau := tauMin + 100/fc*(tau100-tauMin)
		out[band] = math.Exp(-float64(stepSize) / (earmodel.SampleRate * tau))
	}

	return out
}

// LevelAdapter compensates overall level differences and linear distortions between the excitation
// patterns of a reference and a test signal. It is stateful: one instance per channel.
type LevelAdapter struct {
	coeff []float64
	// Bands averaged below and above each band when smoothing correction ratios.
	below, above int

	powerRef, powerTest []float64
	num, den            []float64
	ratioRef, ratioTest []float64
	corrRef, corrTest   []float64

	levelRef, levelTest     []float64
	adaptedRef, adaptedTest []float64
}

// NewLevelAdapter returns an adapter for a model with the given band center frequencies and step size.
func NewLevelAdapter(centers []float64, stepSize int) *LevelAdapter {
	bands := len(centers)

	adapter := &LevelAdapter{
		coeff:       coefficients(centers, stepSize),
		below:       1,
		above:       2,
		powerRef:    make([]float64, bands),
		powerTest:   make([]float64, bands),
		num:         make([]float64, bands),
		den:         make([]float64, bands),
		ratioRef:    make([]float64, bands),
		ratioTest:   make([]float64, bands),
		corrRef:     make([]float64, bands),
		corrTest:    make([]float64, bands),
		levelRef:    make([]float64, bands),
		levelTest:   make([]float64, bands),
		adaptedRef:  make([]float64, bands),
		adaptedTest: make([]float64, bands),
	}

	if bands == earmodel.BasicBands {
		adapter.below = 3
		adapter.above = 4
	}

	for band := range bands {
		adapter.ratioRef[band] = 1
		adapter.ratioTest[band] = 1
		adapter.corrRef[band] = 1
		adapter.corrTest[band] = 1
	}

	return adapter
}

// Process adapts one pair of excitation patterns. The returned slices are owned by the adapter
// and overwritten by the next call.
func (l *LevelAdapter) Process(ref, test []float64) (adaptedRef, adaptedTest []float64) {
	var cross, testPower float64

	for band := range ref {
		a := l.coeff[band]
		l.powerRef[band] = a*l.powerRef[band] + (1-a)*ref[band]
		l.powerTest[band] = a*l.powerTest[band] + (1-a)*test[band]

		cross += math.Sqrt(l.powerRef[band] * l.powerTest[band])
		testPower += l.powerTest[band]
	}

	correction := 1.0
	if testPower > 0 {
		correction = (cross / testPower) * (cross / testPower)
	}

	if correction > 1 {
		vecmath.ScaleBlock(l.levelRef, ref, 1/correction)
		copy(l.levelTest, test)
	} else {
		copy(l.levelRef, ref)
		vecmath.ScaleBlock(l.levelTest, test, correction)
	}

	for band := range ref {
		a := l.coeff[band]
		l.num[band] = a*l.num[band] + l.levelTest[band]*l.levelRef[band]
		l.den[band] = a*l.den[band] + l.levelRef[band]*l.levelRef[band]

		switch {
		case l.num[band] == 0 || l.den[band] == 0:
			// Keep the previous ratios.
		case l.num[band] >= l.den[band]:
			l.ratioRef[band] = 1
			l.ratioTest[band] = l.den[band] / l.num[band]
		default:
			l.ratioRef[band] = l.num[band] / l.den[band]
			l.ratioTest[band] = 1
		}
	}

	bands := len(ref)

	for band := range bands {
		lo := max(band-l.below, 0)
		hi := min(band+l.above, bands-1)
		width := float64(hi - lo + 1)

		smoothRef := vecmath.Sum(l.ratioRef[lo:hi+1]) / width
		smoothTest := vecmath.Sum(l.ratioTest[lo:hi+1]) / width

		a := l.coeff[band]
		l.corrRef[band] = a*l.corrRef[band] + (1-a)*smoothRef
		l.corrTest[band] = a*l.corrTest[band] + (1-a)*smoothTest
	}

	vecmath.MulBlock(l.adaptedRef, l.levelRef, l.corrRef)
	vecmath.MulBlock(l.adaptedTest, l.levelTest, l.corrTest)

	return l.adaptedRef, l.adaptedTest
}
