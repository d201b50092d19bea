package algo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/farcloser/peaq/internal/earmodel"
	"github.com/farcloser/peaq/internal/nn"
)

func defaultOptions() Options {
	return Options{PlaybackLevel: earmodel.DefaultPlaybackLevel, Slope: earmodel.SlopeSmoothed}
}

// sine returns an interleaved signal with the same tone on every channel, plus optional white noise.
func sine(seconds float64, channels int, amplitude, noise float64, seed uint64) []float64 {
	frames := int(seconds * earmodel.SampleRate)
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, frames*channels)

	for n := range frames {
		tone := amplitude * math.Sin(2*math.Pi*1000*float64(n)/earmodel.SampleRate)

		for channel := range channels {
			out[n*channels+channel] = tone + noise*(2*rng.Float64()-1)
		}
	}

	return out
}

type scorer interface {
	Process(ref, test []float64) error
	Flush()
	Score() Score
}

func run(t *testing.T, analyzer scorer, ref, test []float64, chunks []int) Score {
	t.Helper()

	pos := 0
	for i := 0; pos < len(ref); i++ {
		size := len(ref) - pos
		if len(chunks) > 0 {
			size = min(chunks[i%len(chunks)], size)
		}

		if err := analyzer.Process(ref[pos:pos+size], test[pos:pos+size]); err != nil {
			t.Fatalf("process: %v", err)
		}

		pos += size
	}

	analyzer.Flush()

	return analyzer.Score()
}

func TestChunkInvariance(t *testing.T) {
	t.Parallel()

	const channels = 2

	ref := sine(0.8, channels, 0.4, 0, 1)
	test := sine(0.8, channels, 0.4, 0.02, 2)

	// Chunk sizes in samples, all whole stereo frames.
	splits := [][]int{nil, {2}, {2 * 191, 2 * 1025, 2 * 7}, {2 * 4096}, {2 * 3, 2 * 2048, 2 * 193}}

	variants := map[string]func() (scorer, error){
		"basic": func() (scorer, error) { return NewBasic(channels, defaultOptions()) },
		"advanced": func() (scorer, error) {
			return NewAdvanced(channels, defaultOptions())
		},
	}

	for name, build := range variants {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var want Score

			for i, chunks := range splits {
				analyzer, err := build()
				if err != nil {
					t.Fatal(err)
				}

				got := run(t, analyzer, ref, test, chunks)

				if i == 0 {
					want = got

					continue
				}

				for m := range want.MOVs {
					w, g := want.MOVs[m].Value, got.MOVs[m].Value
					if math.Abs(w-g) > 1e-9*math.Max(1, math.Abs(w)) {
						t.Errorf("chunks %v: %s = %.15g, want %.15g", chunks, want.MOVs[m].Name, g, w)
					}
				}

				if math.Abs(want.DistortionIndex-got.DistortionIndex) > 1e-9 {
					t.Errorf("chunks %v: DI %.15g, want %.15g", chunks, got.DistortionIndex, want.DistortionIndex)
				}
			}
		})
	}
}

func TestSilenceNeverAboveThreshold(t *testing.T) {
	t.Parallel()

	fft, err := earmodel.NewFFT(earmodel.BasicBands, earmodel.DefaultPlaybackLevel)
	if err != nil {
		t.Fatal(err)
	}

	filterbank, err := earmodel.NewFilterbank(earmodel.DefaultPlaybackLevel, earmodel.SlopeSmoothed)
	if err != nil {
		t.Fatal(err)
	}

	frames := 0
	above := 0

	base, err := NewBase(2, func(frame *Frame) {
		frames++

		if frame.Above {
			above++
		}
	}, filterbank, fft)
	if err != nil {
		t.Fatal(err)
	}

	silence := make([]float64, 2*earmodel.SampleRate)
	if err := base.Process(silence, silence); err != nil {
		t.Fatal(err)
	}

	base.Flush()

	if frames == 0 {
		t.Fatal("no frame was processed")
	}

	if above != 0 {
		t.Errorf("%d of %d silent frames flagged above threshold", above, frames)
	}

	if base.LoudnessFrame() != -1 {
		t.Errorf("silence reached audible loudness at frame %d", base.LoudnessFrame())
	}
}

func TestAboveThreshold(t *testing.T) {
	t.Parallel()

	frame := make([]float64, 192)
	if aboveThreshold(frame) {
		t.Error("silence is above threshold")
	}

	// Five samples just reaching the threshold together.
	for n := 100; n < 105; n++ {
		frame[n] = energyThreshold / 5
	}

	if !aboveThreshold(frame) {
		t.Error("five samples summing to the threshold are not detected")
	}

	frame[102] = 0
	if aboveThreshold(frame) {
		t.Error("four samples below the threshold are detected")
	}
}

func TestFrameScheduling(t *testing.T) {
	t.Parallel()

	fft, err := earmodel.NewFFT(earmodel.AdvancedBands, earmodel.DefaultPlaybackLevel)
	if err != nil {
		t.Fatal(err)
	}

	filterbank, err := earmodel.NewFilterbank(earmodel.DefaultPlaybackLevel, earmodel.SlopeSmoothed)
	if err != nil {
		t.Fatal(err)
	}

	counts := map[int]int{}

	base, err := NewBase(1, func(frame *Frame) {
		if frame.Index != counts[frame.Model] {
			t.Errorf("model %d delivered frame %d out of order", frame.Model, frame.Index)
		}

		counts[frame.Model]++
	}, filterbank, fft)
	if err != nil {
		t.Fatal(err)
	}

	signal := make([]float64, 5000)
	for n := range signal {
		signal[n] = 0.1 * math.Sin(float64(n)/7)
	}

	for pos := 0; pos < len(signal); pos += 333 {
		end := min(pos+333, len(signal))
		if err := base.Process(signal[pos:end], signal[pos:end]); err != nil {
			t.Fatal(err)
		}
	}

	if counts[0] != 5000/192 || counts[1] != 3 {
		t.Errorf("before flush: %d filter bank and %d FFT frames, want 26 and 3", counts[0], counts[1])
	}

	base.Flush()
	base.Flush()

	if counts[0] != 27 || counts[1] != 4 {
		t.Errorf("after flush: %d filter bank and %d FFT frames, want 27 and 4", counts[0], counts[1])
	}

	if base.Frames() != 27 || base.Received() != 5000 {
		t.Errorf("base reports %d frames for %d samples", base.Frames(), base.Received())
	}

	if err := base.Process(signal[:10], signal[:10]); !errors.Is(err, ErrFlushed) {
		t.Errorf("process after flush: %v", err)
	}
}

func TestConfigurationErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewBasic(0, defaultOptions()); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("zero channels: %v", err)
	}

	if _, err := NewBase(1, nil); !errors.Is(err, ErrNoModel) {
		t.Errorf("no model: %v", err)
	}

	halfBand, err := earmodel.NewFFT(earmodel.AdvancedBands, earmodel.DefaultPlaybackLevel)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := newBasic(1, halfBand, defaultOptions()); !errors.Is(err, ErrBandMismatch) {
		t.Errorf("55 band model in the basic version: %v", err)
	}

	opts := defaultOptions()
	opts.PlaybackLevel = -1

	if _, err := NewAdvanced(1, opts); !errors.Is(err, earmodel.ErrInvalidPlaybackLevel) {
		t.Errorf("negative playback level: %v", err)
	}

	basic, err := NewBasic(2, defaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if err := basic.Process(make([]float64, 4), make([]float64, 6)); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("length mismatch: %v", err)
	}

	if err := basic.Process(make([]float64, 3), make([]float64, 3)); !errors.Is(err, ErrPartialFrame) {
		t.Errorf("partial frame: %v", err)
	}
}

func TestBasicIdenticalSignals(t *testing.T) {
	t.Parallel()

	signal := sine(1.5, 1, 0.5, 0, 4)

	opts := defaultOptions()
	opts.ClampMOVs = true

	basic, err := NewBasic(1, opts)
	if err != nil {
		t.Fatal(err)
	}

	got := run(t, basic, signal, signal, []int{4096})

	if len(got.MOVs) != 11 {
		t.Fatalf("basic version produced %d MOVs", len(got.MOVs))
	}

	if got.DistortionIndex <= 2.3 || got.ODG <= -0.2 {
		t.Errorf("reference against itself scores DI %.3f ODG %.3f", got.DistortionIndex, got.ODG)
	}

	for _, m := range got.MOVs {
		switch m.Name {
		case "WinModDiff1B", "AvgModDiff1B", "AvgModDiff2B", "RmsNoiseLoudB", "MFPDB", "RelDistFramesB", "EHSB", "ADBB":
			if m.Value != 0 {
				t.Errorf("%s = %g for identical signals", m.Name, m.Value)
			}
		case "TotalNMRB":
			if m.Value > -50 {
				t.Errorf("TotalNMRB = %g dB for identical signals", m.Value)
			}
		}
	}
}

func TestSelfComparisonIsImperceptible(t *testing.T) {
	t.Parallel()

	// ODG -0.5, the imperceptible boundary, sits at DI 1.58.
	const minDI = 2.0

	tests := []struct {
		name     string
		channels int
		advanced bool
		clamp    bool
	}{
		{"basic", 1, false, false},
		{"basic clamped", 1, false, true},
		{"advanced", 2, true, false},
		{"advanced clamped", 2, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			signal := sine(1.5, tt.channels, 0.5, 0, 4)

			opts := defaultOptions()
			opts.ClampMOVs = tt.clamp

			var (
				analyzer scorer
				err      error
			)

			if tt.advanced {
				analyzer, err = NewAdvanced(tt.channels, opts)
			} else {
				analyzer, err = NewBasic(tt.channels, opts)
			}

			if err != nil {
				t.Fatal(err)
			}

			got := run(t, analyzer, signal, signal, nil)

			if got.DistortionIndex <= minDI || got.ODG <= -0.5 {
				t.Errorf("reference against itself scores DI %.3f ODG %.3f", got.DistortionIndex, got.ODG)
			}
		})
	}
}

func TestBasicDistortionLowersGrade(t *testing.T) {
	t.Parallel()

	ref := sine(1.5, 1, 0.3, 0, 5)
	noisy := sine(1.5, 1, 0.3, 0.05, 6)

	opts := defaultOptions()
	opts.ClampMOVs = true

	clean, err := NewBasic(1, opts)
	if err != nil {
		t.Fatal(err)
	}

	distorted, err := NewBasic(1, opts)
	if err != nil {
		t.Fatal(err)
	}

	identical := run(t, clean, ref, ref, nil)
	degraded := run(t, distorted, ref, noisy, nil)

	if degraded.ODG >= identical.ODG {
		t.Errorf("added noise scores ODG %.3f, not below %.3f", degraded.ODG, identical.ODG)
	}
}

func TestAdvancedIdenticalSignals(t *testing.T) {
	t.Parallel()

	signal := sine(1.5, 2, 0.5, 0, 7)

	opts := defaultOptions()
	opts.ClampMOVs = true

	advanced, err := NewAdvanced(2, opts)
	if err != nil {
		t.Fatal(err)
	}

	got := run(t, advanced, signal, signal, []int{2 * 1000})

	if len(got.MOVs) != 5 {
		t.Fatalf("advanced version produced %d MOVs", len(got.MOVs))
	}

	// Every MOV sits at or below the lower bound of its range: only the biases of the network remain.
	network := nn.Advanced()
	want := network.DistortionIndex(network.Min(), true)

	if math.Abs(got.DistortionIndex-want) > 1e-6 {
		t.Errorf("DI %.9f, want %.9f (MOVs %+v)", got.DistortionIndex, want, got.MOVs)
	}

	if math.Abs(got.ODG-nn.ODG(want)) > 1e-6 {
		t.Errorf("ODG %.9f, want %.9f", got.ODG, nn.ODG(want))
	}
}

func TestAdvancedSlopeFilterToggle(t *testing.T) {
	t.Parallel()

	ref := sine(1.5, 1, 0.3, 0, 8)
	test := sine(1.5, 1, 0.3, 0.03, 9)

	results := make(map[earmodel.SlopeFilter]Score)

	for _, slope := range []earmodel.SlopeFilter{earmodel.SlopeSmoothed, earmodel.SlopeSwapped} {
		opts := defaultOptions()
		opts.Slope = slope

		advanced, err := NewAdvanced(1, opts)
		if err != nil {
			t.Fatal(err)
		}

		results[slope] = run(t, advanced, ref, test, nil)
	}

	smoothed := results[earmodel.SlopeSmoothed]
	swapped := results[earmodel.SlopeSwapped]

	if smoothed.MOVs[0].Value == swapped.MOVs[0].Value {
		t.Errorf("slope filter variants agree on %s = %g", smoothed.MOVs[0].Name, smoothed.MOVs[0].Value)
	}

	if smoothed.DistortionIndex == swapped.DistortionIndex {
		t.Error("slope filter variants produce the same distortion index")
	}
}
