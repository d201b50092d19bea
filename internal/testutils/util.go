// Package testutils provides test infrastructure for peaq command line tests.
package testutils

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"

	"github.com/farcloser/peaq/internal/integration/wav"
	"github.com/farcloser/peaq/internal/types"
)

// Setup creates a test case configured to run the peaq binary.
func Setup() *test.Case {
	_, thisFile, _, _ := runtime.Caller(0) //nolint:dogsled // runtime.Caller returns 4 values, only file is needed
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	binaryPath := filepath.Join(projectRoot, "bin", "peaq")

	return agar.Setup(binaryPath)
}

// Tone returns one second of an interleaved 1 kHz tone at the given amplitude, with a deterministic hiss added
// when noise is not zero.
func Tone(channels int, amplitude, noise float64) []float64 {
	const rate = 48000

	out := make([]float64, rate*channels)
	state := uint64(1)

	for n := range rate {
		value := amplitude * math.Sin(2*math.Pi*1000*float64(n)/rate)

		for channel := range channels {
			// Park-Miller generator, deterministic across runs.
			state = state*48271%0x7fffffff
			out[n*channels+channel] = value + noise*(float64(state)/0x7fffffff*2-1)
		}
	}

	return out
}

// WriteWAV writes samples as a 16 bit 48 kHz wave file.
func WriteWAV(path string, samples []float64, channels int) error {
	return wav.WriteFile(path, samples, types.PCMFormat{
		SampleRate: 48000,
		BitDepth:   types.Depth16,
		Channels:   uint(channels), //nolint:gosec // test fixture
	})
}

// WritePCM writes samples as raw 16 bit little-endian PCM.
func WritePCM(path string, samples []float64) error {
	raw := make([]byte, 0, 2*len(samples))

	for _, sample := range samples {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(int16(math.Round(sample*32767)))) //nolint:gosec // in range
	}

	return os.WriteFile(path, raw, 0o600)
}
