package engine

import (
	"context"
	"sync"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/voice"
)

// ChatterboxRequest carries the resolved inputs for one Chatterbox call.
type ChatterboxRequest struct {
	Text         string
	RefAudio     string
	RefText      string
	Language     string
	Exaggeration float64
	CFGWeight    float64
	Speed        float64
}

// ChatterboxCore performs the actual synthesis.
type ChatterboxCore interface {
	Synthesize(ctx context.Context, req ChatterboxRequest) ([]float32, int, error)
	Languages() []string
	Close()
}

// DictaProbe reports whether the Hebrew phonemizer model is installed.
type DictaProbe interface {
	Status() model.DictaStatus
}

// Chatterbox adapts the multilingual cloning back-end. Hebrew synthesis
// additionally requires the dicta model on disk.
type Chatterbox struct {
	registry *model.Registry
	voices   *voice.Store
	dicta    DictaProbe
	outDir   func() string
	factory  func(snapshotPath string) (ChatterboxCore, error)

	mu   sync.Mutex
	core ChatterboxCore
}

// NewChatterbox builds the adapter.
func NewChatterbox(registry *model.Registry, voices *voice.Store, dicta DictaProbe,
	outDir func() string, factory func(snapshotPath string) (ChatterboxCore, error)) *Chatterbox {
	return &Chatterbox{
		registry: registry,
		voices:   voices,
		dicta:    dicta,
		outDir:   outDir,
		factory:  factory,
	}
}

func (c *Chatterbox) Engine() string { return "chatterbox" }

// Validate rejects bad parameters without loading a core, mirroring the
// checks Generate performs before synthesis.
func (c *Chatterbox) Validate(p Params) error {
	if _, err := chunkText(p); err != nil {
		return err
	}
	if p.VoiceName == "" {
		return apperr.New(apperr.BadRequest, "voice_name is required")
	}
	if p.Language == "he" && c.dicta != nil && !c.dicta.Status().Installed {
		return apperr.New(apperr.Conflict,
			"hebrew synthesis requires the dicta model; download it via /api/chatterbox/dicta/download")
	}
	_, err := c.voices.Get(p.VoiceName)
	return err
}

func (c *Chatterbox) Generate(ctx context.Context, p Params) (Result, error) {
	chunks, err := chunkText(p)
	if err != nil {
		return Result{}, err
	}
	if err := c.Validate(p); err != nil {
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

	req := ChatterboxRequest{
		RefAudio:     scratch,
		RefText:      v.Transcript,
		Language:     p.Language,
		Exaggeration: p.Exaggeration,
		CFGWeight:    p.CFGWeight,
		Speed:        p.Speed,
	}
	if req.Exaggeration == 0 {
		req.Exaggeration = 0.5
	}
	if req.CFGWeight == 0 {
		req.CFGWeight = 0.5
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	core, err := c.ensureCore()
	if err != nil {
		return Result{}, err
	}

	samples, sr, err := synthesizeChunks(ctx, chunks, crossfade(p),
		func(ctx context.Context, chunk string) ([]float32, int, error) {
			r := req
			r.Text = chunk
			return core.Synthesize(ctx, r)
		})
	if err != nil {
		return Result{}, err
	}

	return writeArtifact(c.outDir(), c.Engine(), p.VoiceName, samples, sr)
}

func (c *Chatterbox) ensureCore() (ChatterboxCore, error) {
	if c.core != nil {
		return c.core, nil
	}
	snapshot, err := c.registry.EnsureReady("Chatterbox Multilingual")
	if err != nil {
		return nil, err
	}
	core, err := c.factory(snapshot)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err,
			"chatterbox back-end unavailable; install the runtime and retry")
	}
	c.core = core
	return core, nil
}

// Languages lists the supported language codes. Hebrew is always offered;
// the dicta requirement is enforced at generation time.
func (c *Chatterbox) Languages() []string {
	c.mu.Lock()
	core := c.core
	c.mu.Unlock()

	langs := []string{"en", "he"}
	if core != nil {
		langs = core.Languages()
		hasHE := false
		for _, l := range langs {
			if l == "he" {
				hasHE = true
				break
			}
		}
		if !hasHE {
			langs = append(langs, "he")
		}
	}
	return langs
}

func (c *Chatterbox) SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error) {
	return c.voices.Upload(name, transcript, wavData)
}

func (c *Chatterbox) ListVoices() ([]voice.Voice, error) {
	return c.voices.List()
}

func (c *Chatterbox) Info() map[string]any {
	info := map[string]any{
		"name":   "Chatterbox Multilingual",
		"engine": c.Engine(),
		"mode":   "clone",
	}
	if c.dicta != nil {
		info["dicta_installed"] = c.dicta.Status().Installed
	}
	return info
}

func (c *Chatterbox) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.core != nil {
		c.core.Close()
		c.core = nil
	}
}
