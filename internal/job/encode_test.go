package job

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mimikastudio/mimika/internal/apperr"
)

func TestFFmpegEncoderArgs(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audiobook-abc.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotName string
	var gotArgs []string
	enc := &FFmpegEncoder{runCommand: func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}}

	out, err := enc.Encode(context.Background(), wav, "mp3", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if gotName != "ffmpeg" {
		t.Errorf("binary = %q", gotName)
	}
	if out != filepath.Join(dir, "audiobook-abc.mp3") {
		t.Errorf("out = %q", out)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "libmp3lame") {
		t.Errorf("args = %v", gotArgs)
	}
}

func TestFFmpegEncoderM4BChapters(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "audiobook-abc.wav")
	if err := os.WriteFile(wav, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	var metaContent string
	enc := &FFmpegEncoder{runCommand: func(_ context.Context, _ string, args ...string) error {
		for i, a := range args {
			if a == "-i" && i+1 < len(args) && strings.HasSuffix(args[i+1], ".ffmeta") {
				raw, err := os.ReadFile(args[i+1])
				if err != nil {
					return err
				}
				metaContent = string(raw)
			}
		}
		return nil
	}}

	chapters := []Chapter{
		{Title: "Intro", StartSec: 0, EndSec: 12.5},
		{Title: "Body", StartSec: 12.5, EndSec: 90},
	}
	if _, err := enc.Encode(context.Background(), wav, "m4b", chapters); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if !strings.HasPrefix(metaContent, ";FFMETADATA1") {
		t.Errorf("metadata header missing:\n%s", metaContent)
	}
	if !strings.Contains(metaContent, "START=12500") || !strings.Contains(metaContent, "title=Body") {
		t.Errorf("chapter markers missing:\n%s", metaContent)
	}
	// Side file is removed after the run.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.ffmeta"))
	if len(matches) != 0 {
		t.Errorf("metadata side file survived: %v", matches)
	}
}

func TestFFmpegEncoderMissingBinary(t *testing.T) {
	enc := &FFmpegEncoder{runCommand: func(_ context.Context, name string, _ ...string) error {
		return &exec.Error{Name: name, Err: exec.ErrNotFound}
	}}

	_, err := enc.Encode(context.Background(), "/tmp/x.wav", "mp3", nil)
	if apperr.KindOf(err) != apperr.Unavailable {
		t.Fatalf("kind = %v, want Unavailable", apperr.KindOf(err))
	}
}

func TestFFmpegEncoderUnknownFormat(t *testing.T) {
	enc := &FFmpegEncoder{runCommand: func(context.Context, string, ...string) error { return nil }}
	_, err := enc.Encode(context.Background(), "/tmp/x.wav", "ogg", nil)
	if apperr.KindOf(err) != apperr.BadRequest {
		t.Fatalf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestSubtitleTimeFormats(t *testing.T) {
	if got := srtTime(3725.042); got != "01:02:05,042" {
		t.Errorf("srtTime = %q", got)
	}
	if got := vttTime(0.5); got != "00:00:00.500" {
		t.Errorf("vttTime = %q", got)
	}
	if got := srtTime(-1); got != "00:00:00,000" {
		t.Errorf("negative srtTime = %q", got)
	}
}
