// Package mov holds the model output variables of ITU-R BS.1387: the per-frame measures computed from the ear
// model outputs, and the accumulators that reduce them to one value per signal pair.
//
// Accumulators are created with the channel count they aggregate over. Measures defined over the whole
// multi-channel signal (detection probability based ones) use a single channel regardless of the input.
package mov

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Accumulator is anything reducing a stream of per-frame values to a model output variable.
type Accumulator interface {
	Value() float64
}

// channelMean averages per channel values, the channel count being the averaging denominator.
func channelMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	return floats.Sum(values) / float64(len(values))
}

// Average is a weighted mean per channel, averaged over channels.
type Average struct {
	sum    []float64
	weight []float64
}

func NewAverage(channels int) *Average {
	return &Average{
		sum:    make([]float64, channels),
		weight: make([]float64, channels),
	}
}

func (a *Average) Accumulate(channel int, value, weight float64) {
	a.sum[channel] += weight * value
	a.weight[channel] += weight
}

func (a *Average) perChannel() []float64 {
	out := make([]float64, len(a.sum))

	for channel := range out {
		if a.weight[channel] > 0 {
			out[channel] = a.sum[channel] / a.weight[channel]
		}
	}

	return out
}

func (a *Average) Value() float64 {
	return channelMean(a.perChannel())
}

// AverageLog is an Average reported in decibels, channel by channel.
type AverageLog struct {
	Average
}

func NewAverageLog(channels int) *AverageLog {
	return &AverageLog{Average: *NewAverage(channels)}
}

func (a *AverageLog) Value() float64 {
	values := a.perChannel()
	for channel, value := range values {
		values[channel] = Decibels(value)
	}

	return channelMean(values)
}

// RMS is the weighted root mean square sqrt(Σ(w·x)² / Σw²), per channel then averaged.
type RMS struct {
	sum    []float64
	weight []float64
}

func NewRMS(channels int) *RMS {
	return &RMS{
		sum:    make([]float64, channels),
		weight: make([]float64, channels),
	}
}

func (r *RMS) Accumulate(channel int, value, weight float64) {
	r.sum[channel] += weight * weight * value * value
	r.weight[channel] += weight * weight
}

func (r *RMS) Value() float64 {
	values := make([]float64, len(r.sum))

	for channel := range values {
		if r.weight[channel] > 0 {
			values[channel] = math.Sqrt(r.sum[channel] / r.weight[channel])
		}
	}

	return channelMean(values)
}

// RMSAsym combines a measure and its asymmetric counterpart as RMS(x) + 0.5·RMS(y).
type RMSAsym struct {
	direct  *RMS
	reverse *RMS
}

func NewRMSAsym(channels int) *RMSAsym {
	return &RMSAsym{direct: NewRMS(channels), reverse: NewRMS(channels)}
}

func (r *RMSAsym) Accumulate(channel int, value, asym float64) {
	r.direct.Accumulate(channel, value, 1)
	r.reverse.Accumulate(channel, asym, 1)
}

func (r *RMSAsym) Value() float64 {
	return r.direct.Value() + 0.5*r.reverse.Value()
}

const windowLength = 4

// WindowedAverage slides a window of four values over the stream, averages ((Σ√x)/4)^4 over all complete
// windows and reports the square root, per channel then averaged.
type WindowedAverage struct {
	history [][windowLength]float64
	seen    []int
	sum     []float64
	windows []int
}

func NewWindowedAverage(channels int) *WindowedAverage {
	return &WindowedAverage{
		history: make([][windowLength]float64, channels),
		seen:    make([]int, channels),
		sum:     make([]float64, channels),
		windows: make([]int, channels),
	}
}

func (w *WindowedAverage) Accumulate(channel int, value float64) {
	hist := &w.history[channel]
	hist[w.seen[channel]%windowLength] = math.Sqrt(value)
	w.seen[channel]++

	if w.seen[channel] < windowLength {
		return
	}

	mean := floats.Sum(hist[:]) / windowLength
	w.sum[channel] += mean * mean * mean * mean
	w.windows[channel]++
}

func (w *WindowedAverage) Value() float64 {
	values := make([]float64, len(w.sum))

	for channel := range values {
		if w.windows[channel] > 0 {
			values[channel] = math.Sqrt(w.sum[channel] / float64(w.windows[channel]))
		}
	}

	return channelMean(values)
}

// FilteredMax tracks the maximum of the first order filtered value f = 0.9·f + 0.1·x.
type FilteredMax struct {
	filtered float64
	maximum  float64
}

func NewFilteredMax() *FilteredMax {
	return &FilteredMax{}
}

func (f *FilteredMax) Accumulate(value float64) {
	f.filtered = 0.9*f.filtered + 0.1*value
	f.maximum = max(f.maximum, f.filtered)
}

func (f *FilteredMax) Value() float64 {
	return f.maximum
}

// ADB is the average distorted block: the log of the mean number of steps above threshold over the frames
// whose detection probability exceeds one half.
type ADB struct {
	distorted int
	steps     float64
}

func NewADB() *ADB {
	return &ADB{}
}

func (a *ADB) Accumulate(probability, steps float64) {
	if probability > 0.5 {
		a.distorted++
		a.steps += steps
	}
}

func (a *ADB) Value() float64 {
	switch {
	case a.distorted == 0:
		return 0
	case a.steps == 0:
		return -0.5
	}

	return math.Log10(a.steps / float64(a.distorted))
}
