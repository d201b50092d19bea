// Package algo drives the ear models over a stream of reference and test samples and feeds the model output
// variables of the basic and advanced versions of ITU-R BS.1387.
package algo

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/farcloser/peaq/internal/adapt"
	"github.com/farcloser/peaq/internal/earmodel"
)

var (
	ErrInvalidChannels = errors.New("channel count must be positive")
	ErrNoModel         = errors.New("at least one ear model is required")
	ErrBandMismatch    = errors.New("ear model band count does not match")
	ErrLengthMismatch  = errors.New("reference and test chunks differ in length")
	ErrPartialFrame    = errors.New("interleaved chunk length is not a multiple of the channel count")
	ErrFlushed         = errors.New("stream already flushed")
)

const (
	// Full scale amplitude summed over five consecutive samples that marks a frame as not silent.
	energyThreshold = 200.0 / 32768
	energyWindow    = 5

	// Overall loudness (sone) both signals must exceed before noise loudness is measured.
	loudnessThreshold = 0.1
)

// Channel holds the outputs of one channel for the frame being delivered. Adaptation and modulation are
// only filled for the primary model.
type Channel struct {
	Ref, Test earmodel.State

	AdaptedRef, AdaptedTest []float64
	ModRef, ModTest         []float64
	// AverageRef is the filtered reference loudness pattern of the modulation processor.
	AverageRef []float64
}

// Frame is what a variant sees after a model processed one frame on every channel.
type Frame struct {
	// Model is the position of the model in the list given to NewBase.
	Model int
	// Index counts the frames of this model, starting at zero.
	Index int
	// Above reports whether any channel of either signal is above the silence threshold in this frame.
	Above bool
	// LoudnessFrame is the primary model frame at which both signals first became audible, or -1.
	LoudnessFrame int
	Channels      []Channel
}

// Hook consumes the frames a Base produces. The slices reachable from the frame are only valid during the call.
type Hook func(frame *Frame)

type modelRun struct {
	model  earmodel.Model
	ref    []earmodel.State
	test   []earmodel.State
	offset int
	index  int
	frame  Frame
}

type channelAdapt struct {
	level   *adapt.LevelAdapter
	modRef  *adapt.Modulation
	modTest *adapt.Modulation
}

// Base is the streaming orchestrator. The first model is the primary one: it drives level adaptation, modulation
// and the loudness latch. Base is not safe for concurrent use.
type Base struct {
	channels int
	hook     Hook
	runs     []*modelRun
	adapters []channelAdapt

	// Per channel linear buffers; samples before the smallest model offset are dropped on compaction.
	ref, test [][]float64
	valid     int
	capacity  int

	received      int
	loudnessFrame int
	flushed       bool
}

// NewBase builds an orchestrator for the given channel count and models.
func NewBase(channels int, hook Hook, models ...earmodel.Model) (*Base, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	if len(models) == 0 {
		return nil, ErrNoModel
	}

	base := &Base{
		channels:      channels,
		hook:          hook,
		ref:           make([][]float64, channels),
		test:          make([][]float64, channels),
		adapters:      make([]channelAdapt, channels),
		loudnessFrame: -1,
	}

	for _, model := range models {
		base.capacity = max(base.capacity, model.FrameSize())

		run := &modelRun{
			model: model,
			ref:   make([]earmodel.State, channels),
			test:  make([]earmodel.State, channels),
			frame: Frame{Channels: make([]Channel, channels)},
		}

		for channel := range channels {
			run.ref[channel] = model.NewState()
			run.test[channel] = model.NewState()
		}

		base.runs = append(base.runs, run)
	}

	primary := models[0]

	for channel := range channels {
		base.ref[channel] = make([]float64, base.capacity)
		base.test[channel] = make([]float64, base.capacity)
		base.adapters[channel] = channelAdapt{
			level:   adapt.NewLevelAdapter(primary.CenterFrequencies(), primary.StepSize()),
			modRef:  adapt.NewModulation(primary.CenterFrequencies(), primary.StepSize()),
			modTest: adapt.NewModulation(primary.CenterFrequencies(), primary.StepSize()),
		}
	}

	return base, nil
}

// Channels is the channel count the orchestrator was built for.
func (b *Base) Channels() int { return b.channels }

// Frames is the number of frames the primary model processed.
func (b *Base) Frames() int { return b.runs[0].index }

// Received is the number of sample frames (one sample per channel) consumed.
func (b *Base) Received() int { return b.received }

// LoudnessFrame is the primary model frame at which both signals first became audible, or -1.
func (b *Base) LoudnessFrame() int { return b.loudnessFrame }

// Process consumes interleaved reference and test samples. Chunks may have any length that is a whole number
// of sample frames; the result does not depend on how the stream is split.
func (b *Base) Process(ref, test []float64) error {
	if b.flushed {
		return ErrFlushed
	}

	if len(ref) != len(test) {
		return fmt.Errorf("%w: %d and %d samples", ErrLengthMismatch, len(ref), len(test))
	}

	if len(ref)%b.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(ref), b.channels)
	}

	frames := len(ref) / b.channels

	for pos := 0; pos < frames; {
		count := min(frames-pos, b.capacity-b.valid)

		for n := range count {
			at := (pos + n) * b.channels

			for channel := range b.channels {
				b.ref[channel][b.valid+n] = ref[at+channel]
				b.test[channel][b.valid+n] = test[at+channel]
			}
		}

		b.valid += count
		b.received += count
		pos += count

		b.drain()
	}

	return nil
}

// drain runs every model over all complete frames buffered, then drops the prefix all of them consumed.
func (b *Base) drain() {
	consumed := b.valid

	for position, run := range b.runs {
		frameSize := run.model.FrameSize()
		stepSize := run.model.StepSize()

		for b.valid-run.offset >= frameSize {
			b.step(position, run, b.ref, b.test, run.offset, b.valid)
			run.offset += stepSize
		}

		consumed = min(consumed, run.offset)
	}

	if consumed == 0 {
		return
	}

	for channel := range b.channels {
		copy(b.ref[channel], b.ref[channel][consumed:b.valid])
		copy(b.test[channel], b.test[channel][consumed:b.valid])
	}

	b.valid -= consumed

	for _, run := range b.runs {
		run.offset -= consumed
	}
}

// Flush zero pads what is left and processes one last frame per model. Further calls do nothing.
func (b *Base) Flush() {
	if b.flushed {
		return
	}

	b.flushed = true

	slog.Debug("algo.Base.Flush", "samples", b.received, "buffered", b.valid, "stage", "flush")

	if b.received == 0 {
		return
	}

	for position, run := range b.runs {
		frameSize := run.model.FrameSize()
		padRef := make([][]float64, b.channels)
		padTest := make([][]float64, b.channels)

		for channel := range b.channels {
			padRef[channel] = make([]float64, frameSize)
			padTest[channel] = make([]float64, frameSize)

			if run.offset < b.valid {
				copy(padRef[channel], b.ref[channel][run.offset:b.valid])
				copy(padTest[channel], b.test[channel][run.offset:b.valid])
			}
		}

		b.step(position, run, padRef, padTest, 0, frameSize)
	}

	slog.Debug("algo.Base.Flush", "frames", b.Frames(), "loudness_frame", b.loudnessFrame, "stage", "done")
}

// step processes the frame starting at offset; limit is the number of valid samples in the buffers.
func (b *Base) step(position int, run *modelRun, ref, test [][]float64, offset, limit int) {
	frameSize := run.model.FrameSize()
	frame := &run.frame

	if limit-offset < frameSize {
		panic(fmt.Sprintf("algo: model %d stepped with %d samples for a %d sample frame", position, limit-offset, frameSize))
	}

	frame.Above = false

	for channel := range b.channels {
		refFrame := ref[channel][offset : offset+frameSize]
		testFrame := test[channel][offset : offset+frameSize]

		if aboveThreshold(refFrame) || aboveThreshold(testFrame) {
			frame.Above = true
		}

		run.model.Process(run.ref[channel], refFrame)
		run.model.Process(run.test[channel], testFrame)

		frame.Channels[channel] = Channel{Ref: run.ref[channel], Test: run.test[channel]}
	}

	if position == 0 {
		b.adapt(run)
	}

	frame.Model = position
	frame.Index = run.index
	frame.LoudnessFrame = b.loudnessFrame

	if b.hook != nil {
		b.hook(frame)
	}

	run.index++
}

// adapt runs level adaptation and modulation on the primary model output, and latches the loudness frame.
func (b *Base) adapt(run *modelRun) {
	audible := true

	for channel := range b.channels {
		ch := &run.frame.Channels[channel]
		ad := b.adapters[channel]

		ch.AdaptedRef, ch.AdaptedTest = ad.level.Process(ch.Ref.Excitation(), ch.Test.Excitation())
		ch.ModRef = ad.modRef.Process(ch.Ref.UnsmearedExcitation())
		ch.ModTest = ad.modTest.Process(ch.Test.UnsmearedExcitation())
		ch.AverageRef = ad.modRef.Average()

		if run.model.Loudness(ch.Ref) <= loudnessThreshold || run.model.Loudness(ch.Test) <= loudnessThreshold {
			audible = false
		}
	}

	if b.loudnessFrame < 0 && audible {
		b.loudnessFrame = run.index
	}
}

func aboveThreshold(frame []float64) bool {
	for n := energyWindow - 1; n < len(frame); n++ {
		var sum float64

		for _, sample := range frame[n-energyWindow+1 : n+1] {
			sum += math.Abs(sample)
		}

		if sum >= energyThreshold {
			return true
		}
	}

	return false
}

// framesFor converts a duration in seconds into a number of frames of the given step, rounding up.
func framesFor(seconds float64, stepSize int) int {
	return int(math.Ceil(seconds * earmodel.SampleRate / float64(stepSize)))
}

func checkBands(model earmodel.Model, want int) error {
	if got := model.BandCount(); got != want {
		return fmt.Errorf("%w: %d bands, want %d", ErrBandMismatch, got, want)
	}

	return nil
}
