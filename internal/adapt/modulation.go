package adapt

import (
	"math"

	"github.com/farcloser/peaq/internal/earmodel"
)

// Modulation measures the temporal envelope modulation of an excitation pattern, band by band.
// One instance per signal and channel.
type Modulation struct {
	coeff []float64
	rate  float64

	previous   []float64
	derivative []float64
	average    []float64
	modulation []float64
}

// NewModulation returns a processor for a model with the given band center frequencies and step size.
func NewModulation(centers []float64, stepSize int) *Modulation {
	bands := len(centers)

	return &Modulation{
		coeff:      coefficients(centers, stepSize),
		rate:       float64(earmodel.SampleRate) / float64(stepSize),
		previous:   make([]float64, bands),
		derivative: make([]float64, bands),
		average:    make([]float64, bands),
		modulation: make([]float64, bands),
	}
}

// Process consumes one unsmeared excitation pattern and returns the modulation pattern.
// The returned slice is overwritten by the next call.
func (m *Modulation) Process(unsmeared []float64) []float64 {
	for band, e := range unsmeared {
		a := m.coeff[band]
		loud := math.Pow(e, 0.3)

		m.derivative[band] = a*m.derivative[band] + (1-a)*m.rate*math.Abs(loud-m.previous[band])
		m.average[band] = a*m.average[band] + (1-a)*loud
		m.modulation[band] = m.derivative[band] / (1 + m.average[band]/0.3)
		m.previous[band] = loud
	}

	return m.modulation
}

// Average returns the filtered loudness pattern E^0.3 of the last call.
func (m *Modulation) Average() []float64 {
	return m.average
}
