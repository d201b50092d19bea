package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/peaq/internal/integration/binary"
	"github.com/farcloser/peaq/internal/types"
)

// ExtractStream decodes one audio stream of a container to raw little-endian PCM. The bit depth defaults to 32;
// a non zero sample rate or channel count in format makes ffmpeg resample or remix to it.
func ExtractStream(
	ctx context.Context,
	input io.Reader,
	output io.Writer,
	streamIndex int,
	format *types.PCMFormat,
) error {
	slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "sample rate", format.SampleRate, "stage", "start")

	ffmpegPath, err := binary.Require(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, arguments(streamIndex, format)...)

	cmd.Stdout = output
	cmd.Stdin = input

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err = cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "timeout")

			return fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "error")

		return fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	slog.Debug("ffmpeg.ExtractStream", "stream index", streamIndex, "stage", "done")

	return nil
}
