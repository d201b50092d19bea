package ffmpeg

import (
	"slices"
	"testing"

	"github.com/farcloser/peaq/internal/types"
)

func TestArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream int
		format types.PCMFormat
		want   []string
	}{
		{
			name:   "defaults",
			stream: 0,
			format: types.PCMFormat{},
			want:   []string{"-i", "-", "-map", "0:a:0", "-f", "s32le", "-acodec", "pcm_s32le", "-v", "quiet", "-"},
		},
		{
			name:   "resample",
			stream: 1,
			format: types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth16},
			want: []string{
				"-i", "-", "-map", "0:a:1", "-f", "s16le", "-acodec", "pcm_s16le",
				"-ar", "48000", "-v", "quiet", "-",
			},
		},
		{
			name:   "remix",
			stream: 0,
			format: types.PCMFormat{SampleRate: 48000, BitDepth: types.Depth24, Channels: 2},
			want: []string{
				"-i", "-", "-map", "0:a:0", "-f", "s24le", "-acodec", "pcm_s24le",
				"-ar", "48000", "-ac", "2", "-v", "quiet", "-",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := arguments(tt.stream, &tt.format); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
