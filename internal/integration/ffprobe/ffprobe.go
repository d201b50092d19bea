package ffprobe

import "time"

const (
	name = "ffprobe"
	// Probing only reads headers, but a sleeping disk or a network mount can still take a while to answer.
	timeout = 60 * time.Second
)
