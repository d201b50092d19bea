package ffmpeg

import "time"

const (
	name = "ffmpeg"
	// Decoding and resampling a long track from a slow disk takes a while.
	timeout = 5 * time.Minute
)
