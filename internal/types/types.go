package types

type BitDepth uint

const (
	Depth16 BitDepth = 16
	Depth24 BitDepth = 24
	Depth32 BitDepth = 32
)

// PCMFormat describes interleaved signed little-endian PCM.
type PCMFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   uint
}

// BytesPerFrame is the size of one sample for every channel.
func (f PCMFormat) BytesPerFrame() int {
	return int(f.BitDepth/8) * int(f.Channels) //nolint:gosec // bit depth and channel count are small constants
}

/*
Objective Difference Grade

The ODG maps onto the five grade impairment scale of ITU-R BS.1116, shifted so that an imperceptible
difference scores 0.

| ODG           | Impairment                    |
|---------------|-------------------------------|
| 0 to -0.5     | Imperceptible                 |
| -0.5 to -1.5  | Perceptible, but not annoying |
| -1.5 to -2.5  | Slightly annoying             |
| -2.5 to -3.5  | Annoying                      |
| below -3.5    | Very annoying                 |

The Distortion Index is the network output before the final sigmoid. It has no fixed range: positive values
mean a transparent codec, large negative values a badly impaired one. It keeps discriminating where the ODG
saturates near -3.9 or near 0.2.
*/
