package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/voice"
)

// MinCosyVoiceTimeout is the floor for subprocess inference; CosyVoice3 is
// slow to cold-start.
const MinCosyVoiceTimeout = 120 * time.Second

// CosyVoiceConfig configures the subprocess runner.
type CosyVoiceConfig struct {
	// Python is the interpreter carrying the cosyvoice package.
	Python string
	// Timeout bounds one inference run; values below MinCosyVoiceTimeout
	// are raised to it.
	Timeout time.Duration
}

// CosyVoice3 adapts the CosyVoice3 back-end by shelling out to its Python
// runtime; there is no in-process implementation.
type CosyVoice3 struct {
	registry *model.Registry
	voices   *voice.Store
	outDir   func() string
	cfg      CosyVoiceConfig

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, name string, args ...string) error

	mu sync.Mutex
}

// NewCosyVoice3 builds the adapter.
func NewCosyVoice3(registry *model.Registry, voices *voice.Store, outDir func() string,
	cfg CosyVoiceConfig) *CosyVoice3 {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Timeout < MinCosyVoiceTimeout {
		cfg.Timeout = MinCosyVoiceTimeout
	}
	c := &CosyVoice3{registry: registry, voices: voices, outDir: outDir, cfg: cfg}
	c.runCommand = c.execCommand
	return c
}

func (c *CosyVoice3) Engine() string { return "cosyvoice3" }

// Validate rejects bad parameters without touching the subprocess runner.
func (c *CosyVoice3) Validate(p Params) error {
	if _, err := chunkText(p); err != nil {
		return err
	}
	if p.VoiceName == "" {
		return apperr.New(apperr.BadRequest, "voice_name is required")
	}
	_, err := c.voices.Get(p.VoiceName)
	return err
}

func (c *CosyVoice3) Generate(ctx context.Context, p Params) (Result, error) {
	if err := c.Validate(p); err != nil {
		return Result{}, err
	}

	snapshot, err := c.registry.EnsureReady("CosyVoice3-0.5B")
	if err != nil {
		return Result{}, err
	}

	v, err := c.voices.Get(p.VoiceName)
	if err != nil {
		return Result{}, err
	}
	scratch, cleanup, err := promptFile(c.voices, p.VoiceName)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	speed := p.Speed
	if speed <= 0 {
		speed = 1.0
	}

	outFile := filepath.Join(os.TempDir(), artifactName(c.Engine(), p.VoiceName))
	defer os.Remove(outFile)

	c.mu.Lock()
	defer c.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	err = c.runCommand(runCtx, c.cfg.Python,
		"-m", "cosyvoice.cli",
		"--model-dir", snapshot,
		"--prompt-wav", scratch,
		"--prompt-text", v.Transcript,
		"--text", p.Text,
		"--speed", strconv.FormatFloat(speed, 'f', 2, 64),
		"--out", outFile,
	)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{}, apperr.Wrap(apperr.Internal, err,
				"cosyvoice3 inference timed out after %s", c.cfg.Timeout)
		}
		if isExecNotFound(err) {
			return Result{}, apperr.Wrap(apperr.Unavailable, err,
				"cosyvoice3 runtime unavailable; pip install cosyvoice and retry")
		}
		return Result{}, apperr.Wrap(apperr.Internal, err, "cosyvoice3 inference failed")
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "reading cosyvoice3 output")
	}
	samples, sr, err := audio.DecodeWAV(data)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "decoding cosyvoice3 output")
	}

	return writeArtifact(c.outDir(), c.Engine(), p.VoiceName, samples, sr)
}

func (c *CosyVoice3) execCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return err
	}
	return nil
}

func isExecNotFound(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound)
}

func (c *CosyVoice3) SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error) {
	return c.voices.Upload(name, transcript, wavData)
}

func (c *CosyVoice3) ListVoices() ([]voice.Voice, error) {
	return c.voices.List()
}

func (c *CosyVoice3) Info() map[string]any {
	downloaded := false
	if m, ok := model.Lookup("CosyVoice3-0.5B"); ok {
		downloaded = c.registry.IsDownloaded(m)
	}
	return map[string]any{
		"name":       "CosyVoice3",
		"engine":     c.Engine(),
		"mode":       "clone",
		"runtime":    "subprocess",
		"timeout":    c.cfg.Timeout.String(),
		"downloaded": downloaded,
	}
}

// Unload is a no-op; the subprocess holds no resident memory between runs.
func (c *CosyVoice3) Unload() {}
