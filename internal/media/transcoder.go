package media

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// audioCodecs maps an audio output format to its ffmpeg encoder.
var audioCodecs = map[string]string{
	"mp3": "libmp3lame",
	"m4a": "aac",
}

// Transcoder drives ffmpeg.
type Transcoder struct {
	runner Runner
	bin    string
}

// NewTranscoder creates a Transcoder that invokes bin through runner.
func NewTranscoder(runner Runner, bin string) *Transcoder {
	return &Transcoder{runner: runner, bin: bin}
}

// ToAudio strips video from in and encodes the audio track to out at 192 kbps / 44.1 kHz.
func (t *Transcoder) ToAudio(ctx context.Context, in, out, format string) error {
	codec, ok := audioCodecs[format]
	if !ok {
		return fmt.Errorf("%w: unsupported audio format %q", ErrTranscodeFailed, format)
	}
	_, err := t.runner.Run(ctx, t.bin,
		"-hide_banner", "-loglevel", "error",
		"-i", in,
		"-vn",
		"-acodec", codec,
		"-ab", "192k",
		"-ar", "44100",
		"-y",
		out,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	return nil
}

// Cut copies the [start, end) range of in to out without re-encoding.
// A zero end keeps everything after start.
func (t *Transcoder) Cut(ctx context.Context, in, out string, start, end time.Duration) error {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if start > 0 {
		args = append(args, "-ss", seconds(start))
	}
	if end > 0 {
		args = append(args, "-to", seconds(end))
	}
	args = append(args, "-i", in, "-c", "copy", "-y", out)

	if _, err := t.runner.Run(ctx, t.bin, args...); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	return nil
}

// Remux rewrites in into the container implied by out's extension, copying streams.
func (t *Transcoder) Remux(ctx context.Context, in, out string) error {
	if _, err := t.runner.Run(ctx, t.bin, "-hide_banner", "-loglevel", "error", "-i", in, "-c", "copy", "-y", out); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
