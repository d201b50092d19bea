package pcm_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/peaq/internal/pcm"
	"github.com/farcloser/peaq/internal/types"
)

func readAll(t *testing.T, reader *pcm.Reader, chunk int) []float64 {
	t.Helper()

	var out []float64

	buf := make([]float64, chunk)

	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)

		if errors.Is(err, io.EOF) {
			return out
		}

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		depth types.BitDepth
		data  []byte
		want  []float64
	}{
		{
			name:  "16 bit",
			depth: types.Depth16,
			data:  []byte{0x00, 0x40, 0x00, 0xC0, 0xFF, 0x7F, 0x00, 0x80},
			want:  []float64{0.5, -0.5, 32767.0 / 32768, -1},
		},
		{
			name:  "24 bit",
			depth: types.Depth24,
			data:  []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0, 0x01, 0x00, 0x00, 0xFF, 0xFF, 0xFF},
			want:  []float64{0.5, -0.5, 1.0 / 8388608, -1.0 / 8388608},
		},
		{
			name:  "32 bit",
			depth: types.Depth32,
			data:  []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00},
			want:  []float64{0.5, -0.5, -1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader, err := pcm.NewReader(bytes.NewReader(tt.data), types.PCMFormat{
				SampleRate: 48000,
				BitDepth:   tt.depth,
				Channels:   2,
			})
			if err != nil {
				t.Fatal(err)
			}

			got := readAll(t, reader, 3)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPartialFrameDropped(t *testing.T) {
	t.Parallel()

	// Two stereo 16 bit frames plus three stray bytes.
	data := []byte{0, 0x40, 0, 0x40, 0, 0x40, 0, 0x40, 1, 2, 3}

	reader, err := pcm.NewReader(bytes.NewReader(data), types.PCMFormat{BitDepth: types.Depth16, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}

	got := readAll(t, reader, 64)
	if len(got) != 4 {
		t.Fatalf("got %d samples, want 4", len(got))
	}
}

func TestReadOddBuffer(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2*2*10)

	reader, err := pcm.NewReader(bytes.NewReader(data), types.PCMFormat{BitDepth: types.Depth16, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]float64, 5)

	n, err := reader.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("got %d, %v; want 4 samples", n, err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestReadFailure(t *testing.T) {
	t.Parallel()

	reader, err := pcm.NewReader(failingReader{}, types.PCMFormat{BitDepth: types.Depth32, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = reader.Read(make([]float64, 8)); !errors.Is(err, fault.ErrReadFailure) {
		t.Fatalf("expected a read failure, got %v", err)
	}
}

func TestInvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := pcm.NewReader(nil, types.PCMFormat{BitDepth: 8, Channels: 1}); !errors.Is(err, pcm.ErrUnsupportedBitDepth) {
		t.Errorf("expected ErrUnsupportedBitDepth, got %v", err)
	}

	if _, err := pcm.NewReader(nil, types.PCMFormat{BitDepth: types.Depth16}); !errors.Is(err, pcm.ErrInvalidChannels) {
		t.Errorf("expected ErrInvalidChannels, got %v", err)
	}

	if pcm.Scale(types.Depth24) != pcm.MaxValue24 {
		t.Error("unexpected 24 bit scale")
	}
}
