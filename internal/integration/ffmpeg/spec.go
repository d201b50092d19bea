package ffmpeg

import (
	"strconv"

	"github.com/farcloser/peaq/internal/types"
)

// sampleFormat maps a bit depth to the raw muxer name: 32 = s32le, 24 = s24le, 16 = s16le.
func sampleFormat(bitDepth types.BitDepth) string {
	//nolint:gosec // we fine, gosec
	return "s" + strconv.Itoa(int(bitDepth)) + "le"
}

// codecFor is the PCM encoder matching the raw muxer.
func codecFor(bitDepth types.BitDepth) string {
	return "pcm_" + sampleFormat(bitDepth)
}

// arguments builds the decoding command line reading from stdin and writing raw PCM to stdout.
func arguments(streamIndex int, format *types.PCMFormat) []string {
	depth := format.BitDepth
	if depth == 0 {
		depth = types.Depth32
	}

	args := []string{
		"-i", "-",
		"-map", "0:a:" + strconv.Itoa(streamIndex),
		"-f", sampleFormat(depth),
		"-acodec", codecFor(depth),
	}

	if format.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(format.SampleRate))
	}

	if format.Channels > 0 {
		args = append(args, "-ac", strconv.FormatUint(uint64(format.Channels), 10))
	}

	return append(args, "-v", "quiet", "-")
}
