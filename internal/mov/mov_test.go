package mov_test

import (
	"math"
	"testing"

	"github.com/farcloser/peaq/internal/earmodel"
	"github.com/farcloser/peaq/internal/mov"
)

func near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestAverage(t *testing.T) {
	t.Parallel()

	avg := mov.NewAverage(2)
	avg.Accumulate(0, 1, 1)
	avg.Accumulate(0, 3, 3)
	avg.Accumulate(1, 4, 2)

	// Channel 0: (1 + 9) / 4, channel 1: 4.
	if got := avg.Value(); !near(got, (2.5+4)/2, 1e-12) {
		t.Errorf("average %g", got)
	}

	empty := mov.NewAverage(2)
	empty.Accumulate(0, 6, 1)

	if got := empty.Value(); !near(got, 3, 1e-12) {
		t.Errorf("a silent channel must still count in the denominator, got %g", got)
	}
}

func TestAverageLog(t *testing.T) {
	t.Parallel()

	avg := mov.NewAverageLog(1)
	avg.Accumulate(0, 10, 1)
	avg.Accumulate(0, 190, 1)

	if got := avg.Value(); !near(got, 20, 1e-12) {
		t.Errorf("log average %g, want 20 dB", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	rms := mov.NewRMS(1)
	rms.Accumulate(0, 3, 1)
	rms.Accumulate(0, 4, 1)

	if got := rms.Value(); !near(got, math.Sqrt(12.5), 1e-12) {
		t.Errorf("rms %g", got)
	}

	weighted := mov.NewRMS(1)
	weighted.Accumulate(0, 2, 0)
	weighted.Accumulate(0, 5, 3)

	if got := weighted.Value(); !near(got, 5, 1e-12) {
		t.Errorf("zero weight must drop the value, got %g", got)
	}

	asym := mov.NewRMSAsym(2)
	for channel := range 2 {
		asym.Accumulate(channel, 2, 4)
	}

	if got := asym.Value(); !near(got, 4, 1e-12) {
		t.Errorf("asymmetric rms %g, want 2 + 0.5·4", got)
	}
}

func TestWindowedAverage(t *testing.T) {
	t.Parallel()

	win := mov.NewWindowedAverage(1)

	for range 3 {
		win.Accumulate(0, 16)
	}

	if got := win.Value(); got != 0 {
		t.Errorf("no complete window yet, got %g", got)
	}

	for range 5 {
		win.Accumulate(0, 16)
	}

	// Every window averages sqrt(16) = 4, raised to the 4th power then square rooted.
	if got := win.Value(); !near(got, 16, 1e-9) {
		t.Errorf("windowed average %g, want 16", got)
	}
}

func TestFilteredMax(t *testing.T) {
	t.Parallel()

	filtered := mov.NewFilteredMax()
	filtered.Accumulate(1)
	filtered.Accumulate(1)
	filtered.Accumulate(0)

	if got := filtered.Value(); !near(got, 0.19, 1e-12) {
		t.Errorf("filtered maximum %g, want 0.19", got)
	}
}

func TestADB(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		feed  [][2]float64
		value float64
	}{
		{name: "no distorted frame", feed: [][2]float64{{0.2, 5}, {0.5, 3}}, value: 0},
		{name: "distorted without steps", feed: [][2]float64{{0.9, 0}}, value: -0.5},
		{name: "distorted", feed: [][2]float64{{0.9, 10}, {0.7, 990}, {0.1, 50}}, value: math.Log10(500)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			adb := mov.NewADB()
			for _, frame := range tc.feed {
				adb.Accumulate(frame[0], frame[1])
			}

			if got := adb.Value(); !near(got, tc.value, 1e-12) {
				t.Errorf("got %g, want %g", got, tc.value)
			}
		})
	}
}

func TestBandwidth(t *testing.T) {
	t.Parallel()

	ref := make([]float64, 1025)
	test := make([]float64, 1025)

	for k := range ref {
		ref[k] = 1e-6
		test[k] = 1e-6
	}

	for k := range 700 {
		ref[k] = 1
	}

	for k := range 500 {
		test[k] = 1
	}

	bwRef, bwTest := mov.Bandwidth(ref, test)
	if bwRef != 700 || bwTest != 500 {
		t.Errorf("bandwidths %d/%d, want 700/500", bwRef, bwTest)
	}

	flat := make([]float64, 1025)
	for k := range flat {
		flat[k] = 1
	}

	if bwRef, _ := mov.Bandwidth(flat, flat); bwRef != 0 {
		t.Errorf("a flat spectrum has no bandwidth edge, got %d", bwRef)
	}
}

func TestBandwidthTestMargin(t *testing.T) {
	t.Parallel()

	ref := make([]float64, 1025)
	test := make([]float64, 1025)

	for k := range ref {
		ref[k] = 1e-6
		test[k] = 1e-6
	}

	for k := range 700 {
		ref[k] = 1
	}

	// The test edge needs 5 dB over the floor: 3.2e-6 clears it, 3.1e-6 does not.
	for k := range 700 {
		switch {
		case k < 500:
			test[k] = 1
		case k < 600:
			test[k] = 3.2e-6
		default:
			test[k] = 3.1e-6
		}
	}

	if _, bwTest := mov.Bandwidth(ref, test); bwTest != 600 {
		t.Errorf("test bandwidth %d, want 600", bwTest)
	}
}

func TestModulationDifference(t *testing.T) {
	t.Parallel()

	ref := []float64{1, 1}
	test := []float64{3, 0}

	// Band 0: |3-1|/(1+1) = 1, band 1: 0.1·|0-1|/(1+1) = 0.05.
	if got := mov.ModulationDifference(ref, test, 1, 0.1); !near(got, 100*1.05/2, 1e-12) {
		t.Errorf("modulation difference %g", got)
	}

	if got := mov.ModulationDifference(ref, ref, 0.01, 0.1); got != 0 {
		t.Errorf("identical modulation gives %g", got)
	}
}

func TestTemporalWeight(t *testing.T) {
	t.Parallel()

	noise := []float64{1, 1, 1}
	loud := []float64{1e6, 1e6, 1e6}

	if got := mov.TemporalWeight(loud, noise, 1); !near(got, 3, 1e-5) {
		t.Errorf("loud frames weigh %g, want about the band count", got)
	}

	if got := mov.TemporalWeight([]float64{0, 0, 0}, noise, 100); got != 0 {
		t.Errorf("silent frames weigh %g", got)
	}
}

func TestNoiseLoudness(t *testing.T) {
	t.Parallel()

	const bands = 40

	flat := func(value float64) []float64 {
		out := make([]float64, bands)
		for band := range out {
			out[band] = value
		}

		return out
	}

	mod := flat(0.5)
	noise := flat(10)
	ref := flat(1e5)

	if got := mov.NoiseLoudness(mov.NoiseLoudnessBasic, mod, mod, ref, ref, noise); got != 0 {
		t.Errorf("identical patterns have noise loudness %g", got)
	}

	louder := flat(4e5)
	quieter := mov.NoiseLoudness(mov.NoiseLoudnessBasic, mod, mod, ref, flat(2e5), noise)
	loudest := mov.NoiseLoudness(mov.NoiseLoudnessBasic, mod, mod, ref, louder, noise)

	if quieter <= 0 || loudest <= quieter {
		t.Errorf("noise loudness not increasing with distortion: %g then %g", quieter, loudest)
	}

	if got := mov.NoiseLoudness(mov.NoiseLoudnessAdvanced, mod, mod, ref, flat(1.0001e5), noise); got != 0 {
		t.Errorf("loudness below the minimum must be dropped, got %g", got)
	}
}

func TestDetection(t *testing.T) {
	t.Parallel()

	const bands = 109

	ref := make([]float64, bands)
	for band := range ref {
		ref[band] = 1e6
	}

	det := mov.NewDetection(bands)
	det.AddChannel(ref, ref)

	if p, q := det.Total(); p != 0 || q != 0 {
		t.Errorf("identical patterns detected with p=%g q=%g", p, q)
	}

	test := make([]float64, bands)
	copy(test, ref)
	test[50] = 1e8

	det.AddChannel(ref, test)

	p, q := det.Total()
	if p < 0.99 || q <= 0 {
		t.Errorf("a 20 dB band error detected with p=%g q=%g", p, q)
	}

	det.Reset()

	if p, q := det.Total(); p != 0 || q != 0 {
		t.Errorf("reset left p=%g q=%g", p, q)
	}
}

func TestNoiseToMaskIdentical(t *testing.T) {
	t.Parallel()

	model, err := earmodel.NewFFT(earmodel.BasicBands, earmodel.DefaultPlaybackLevel)
	if err != nil {
		t.Fatal(err)
	}

	spectrum := make([]float64, model.SpectrumSize())
	for k := range spectrum {
		spectrum[k] = 1 + float64(k%7)
	}

	excitation := make([]float64, model.BandCount())
	for band := range excitation {
		excitation[band] = 100
	}

	nmr := mov.NewNoiseToMask(model)

	mean, peak := nmr.Frame(spectrum, spectrum, excitation)
	if mean > 1e-12 || peak > -100 {
		t.Errorf("identical spectra give NMR %g (peak %g dB)", mean, peak)
	}

	noisy := make([]float64, len(spectrum))
	for k := range noisy {
		noisy[k] = 4 * spectrum[k]
	}

	mean, peak = nmr.Frame(spectrum, noisy, excitation)
	if mean <= 0 || peak < mov.DistortedBandDB {
		t.Errorf("a 6 dB spectral error gives NMR %g (peak %g dB)", mean, peak)
	}
}

func TestHarmonicStructure(t *testing.T) {
	t.Parallel()

	ehs := mov.NewHarmonicStructure()

	ref := make([]float64, 1025)
	for k := range ref {
		ref[k] = 1 + float64(k)
	}

	if got := ehs.Frame(ref, ref); got != 0 {
		t.Errorf("identical spectra give EHS %g", got)
	}

	// A test spectrum whose error ripples with a 16 bin period.
	test := make([]float64, len(ref))
	for k := range test {
		test[k] = ref[k] * math.Exp(math.Cos(2*math.Pi*float64(k)/16))
	}

	if got := ehs.Frame(ref, test); got <= 0 {
		t.Errorf("harmonic error gives EHS %g", got)
	}
}
