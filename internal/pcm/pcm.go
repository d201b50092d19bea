// Package pcm decodes interleaved signed little-endian PCM into normalized float samples.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/peaq/internal/types"
)

const (
	MaxValue16 = 32768.0      // 2^15
	MaxValue24 = 8388608.0    // 2^23
	MaxValue32 = 2147483648.0 // 2^31
)

var (
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrInvalidChannels     = errors.New("channel count must be positive")
)

// Scale returns the normalization divisor for a bit depth, or 0 if the depth is not supported.
func Scale(depth types.BitDepth) float64 {
	switch depth {
	case types.Depth16:
		return MaxValue16
	case types.Depth24:
		return MaxValue24
	case types.Depth32:
		return MaxValue32
	default:
		return 0
	}
}

// Reader yields interleaved samples in [-1, 1) from a raw PCM stream. Only complete frames are returned; a trailing
// partial frame is dropped.
type Reader struct {
	source   io.Reader
	format   types.PCMFormat
	scale    float64
	width    int
	channels int
	buf      []byte
	done     bool
}

func NewReader(source io.Reader, format types.PCMFormat) (*Reader, error) {
	scale := Scale(format.BitDepth)
	if scale == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, format.BitDepth)
	}

	if format.Channels == 0 {
		return nil, ErrInvalidChannels
	}

	return &Reader{
		source:   source,
		format:   format,
		scale:    scale,
		width:    int(format.BitDepth / 8), //nolint:gosec // bit depth is a small constant
		channels: int(format.Channels),     //nolint:gosec // channel count is small
	}, nil
}

// Format is the format the reader decodes.
func (r *Reader) Format() types.PCMFormat {
	return r.format
}

// Read fills dst with as many whole frames as fit and are available. It returns the number of samples written
// (a multiple of the channel count) and io.EOF once the stream is exhausted.
func (r *Reader) Read(dst []float64) (int, error) {
	if r.done {
		return 0, io.EOF
	}

	frames := len(dst) / r.channels
	if frames == 0 {
		return 0, nil
	}

	need := frames * r.width * r.channels
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}

	buf := r.buf[:need]

	n, err := io.ReadFull(r.source, buf)

	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		r.done = true
	default:
		return 0, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
	}

	complete := n / (r.width * r.channels) * r.channels
	r.decode(dst[:complete], buf)

	if r.done && complete == 0 {
		return 0, io.EOF
	}

	return complete, nil
}

func (r *Reader) decode(dst []float64, data []byte) {
	switch r.format.BitDepth {
	case types.Depth16:
		for i := range dst {
			dst[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / r.scale //nolint:gosec // two's complement conversion for signed PCM samples
		}
	case types.Depth24:
		for i := range dst {
			at := 3 * i

			raw := int32(data[at]) | int32(data[at+1])<<8 | int32(data[at+2])<<16
			if raw&0x800000 != 0 {
				raw |= ^0xFFFFFF
			}

			dst[i] = float64(raw) / r.scale
		}
	case types.Depth32:
		for i := range dst {
			dst[i] = float64(int32(binary.LittleEndian.Uint32(data[4*i:]))) / r.scale //nolint:gosec // two's complement conversion for signed PCM samples
		}
	default:
	}
}
