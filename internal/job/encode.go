package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// FFmpegEncoder shells out to ffmpeg for MP3 and M4B output. M4B carries
// chapter markers through an ffmetadata side file.
type FFmpegEncoder struct {
	// Binary defaults to "ffmpeg" on PATH.
	Binary string

	runCommand func(ctx context.Context, name string, args ...string) error
}

// NewFFmpegEncoder builds an encoder using ffmpeg from PATH.
func NewFFmpegEncoder() *FFmpegEncoder {
	return &FFmpegEncoder{Binary: "ffmpeg", runCommand: runFFmpeg}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, wavPath, format string, chapters []Chapter) (string, error) {
	binary := e.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	run := e.runCommand
	if run == nil {
		run = runFFmpeg
	}

	base := strings.TrimSuffix(wavPath, ".wav")
	var outPath string
	var args []string

	switch format {
	case "mp3":
		outPath = base + ".mp3"
		args = []string{"-y", "-i", wavPath, "-codec:a", "libmp3lame", "-qscale:a", "2", outPath}
	case "m4b":
		outPath = base + ".m4b"
		args = []string{"-y", "-i", wavPath}
		if len(chapters) > 0 {
			metaPath := base + ".ffmeta"
			if err := os.WriteFile(metaPath, []byte(ffmetadata(chapters)), 0o644); err != nil {
				return "", apperr.Wrap(apperr.Internal, err, "writing chapter metadata")
			}
			defer os.Remove(metaPath)
			args = append(args, "-i", metaPath, "-map_metadata", "1")
		}
		args = append(args, "-codec:a", "aac", "-f", "ipod", outPath)
	default:
		return "", apperr.New(apperr.BadRequest, "unknown output format %q", format)
	}

	if err := run(ctx, binary, args...); err != nil {
		os.Remove(outPath)
		if isExecNotFound(err) {
			return "", apperr.Wrap(apperr.Unavailable, err,
				"ffmpeg not found; install ffmpeg for %s output", format)
		}
		return "", apperr.Wrap(apperr.Internal, err, "encoding %s", format)
	}
	return outPath, nil
}

// ffmetadata renders chapters in ffmpeg's metadata format with a
// millisecond timebase.
func ffmetadata(chapters []Chapter) string {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	for _, ch := range chapters {
		fmt.Fprintf(&b, "\n[CHAPTER]\nTIMEBASE=1/1000\nSTART=%d\nEND=%d\ntitle=%s\n",
			int(ch.StartSec*1000), int(ch.EndSec*1000), ch.Title)
	}
	return b.String()
}

func runFFmpeg(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func isExecNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}
