package engine

import (
	"context"
	"sync"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/model"
)

// KokoroVoiceInfo describes one preset Kokoro voice.
type KokoroVoiceInfo struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Accent string `json:"accent"`
	Grade  string `json:"grade"`
}

// KokoroDefaultVoice is used when the requested voice is unknown.
const KokoroDefaultVoice = "af_heart"

// KokoroVoices is the full Kokoro-82M voice catalog. The id prefix encodes
// language: a = American English, b = British English.
var KokoroVoices = map[string]KokoroVoiceInfo{
	"af_alloy":    {Name: "Alloy", Gender: "female", Accent: "american", Grade: "B"},
	"af_aoede":    {Name: "Aoede", Gender: "female", Accent: "american", Grade: "B+"},
	"af_heart":    {Name: "Heart", Gender: "female", Accent: "american", Grade: "A"},
	"af_jessica":  {Name: "Jessica", Gender: "female", Accent: "american", Grade: "B+"},
	"af_kore":     {Name: "Kore", Gender: "female", Accent: "american", Grade: "B+"},
	"af_nova":     {Name: "Nova", Gender: "female", Accent: "american", Grade: "A-"},
	"af_river":    {Name: "River", Gender: "female", Accent: "american", Grade: "B"},
	"af_sarah":    {Name: "Sarah", Gender: "female", Accent: "american", Grade: "B+"},
	"af_sky":      {Name: "Sky", Gender: "female", Accent: "american", Grade: "B-"},
	"am_adam":     {Name: "Adam", Gender: "male", Accent: "american", Grade: "B+"},
	"am_echo":     {Name: "Echo", Gender: "male", Accent: "american", Grade: "B"},
	"am_eric":     {Name: "Eric", Gender: "male", Accent: "american", Grade: "B+"},
	"am_fenrir":   {Name: "Fenrir", Gender: "male", Accent: "american", Grade: "B"},
	"am_liam":     {Name: "Liam", Gender: "male", Accent: "american", Grade: "B+"},
	"am_michael":  {Name: "Michael", Gender: "male", Accent: "american", Grade: "B"},
	"am_onyx":     {Name: "Onyx", Gender: "male", Accent: "american", Grade: "B"},
	"am_puck":     {Name: "Puck", Gender: "male", Accent: "american", Grade: "B"},
	"am_santa":    {Name: "Santa", Gender: "male", Accent: "american", Grade: "C"},
	"bf_emma":     {Name: "Emma", Gender: "female", Accent: "british", Grade: "B-"},
	"bf_alice":    {Name: "Alice", Gender: "female", Accent: "british", Grade: "D"},
	"bf_isabella": {Name: "Isabella", Gender: "female", Accent: "british", Grade: "C"},
	"bf_lily":     {Name: "Lily", Gender: "female", Accent: "british", Grade: "D"},
	"bm_daniel":   {Name: "Daniel", Gender: "male", Accent: "british", Grade: "D"},
	"bm_fable":    {Name: "Fable", Gender: "male", Accent: "british", Grade: "C"},
	"bm_george":   {Name: "George", Gender: "male", Accent: "british", Grade: "C"},
	"bm_lewis":    {Name: "Lewis", Gender: "male", Accent: "british", Grade: "D+"},
}

// KokoroCore performs the actual synthesis for one chunk.
type KokoroCore interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]float32, int, error)
	Close()
}

// Kokoro adapts the Kokoro preset-voice back-end.
type Kokoro struct {
	registry *model.Registry
	outDir   func() string
	factory  func(snapshotPath string) (KokoroCore, error)

	mu   sync.Mutex
	core KokoroCore
}

// NewKokoro builds the adapter. outDir resolves the active output directory
// at call time so runtime retargeting is honored; factory constructs the
// back-end lazily from a ready snapshot.
func NewKokoro(registry *model.Registry, outDir func() string,
	factory func(snapshotPath string) (KokoroCore, error)) *Kokoro {
	return &Kokoro{registry: registry, outDir: outDir, factory: factory}
}

func (k *Kokoro) Engine() string { return "kokoro" }

// ResolveVoice maps a requested voice id onto the catalog, falling back to
// the default for unknown ids.
func (k *Kokoro) ResolveVoice(requested string) string {
	if _, ok := KokoroVoices[requested]; ok {
		return requested
	}
	return KokoroDefaultVoice
}

// Validate rejects bad parameters without loading the core. Unknown voices
// fall back to the default, so only the text is checked.
func (k *Kokoro) Validate(p Params) error {
	_, err := chunkText(p)
	return err
}

func (k *Kokoro) Generate(ctx context.Context, p Params) (Result, error) {
	chunks, err := chunkText(p)
	if err != nil {
		return Result{}, err
	}
	voiceID := k.ResolveVoice(p.Voice)

	speed := p.Speed
	if speed <= 0 {
		speed = 1.0
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	core, err := k.ensureCore()
	if err != nil {
		return Result{}, err
	}

	samples, sr, err := synthesizeChunks(ctx, chunks, crossfade(p),
		func(ctx context.Context, chunk string) ([]float32, int, error) {
			return core.Synthesize(ctx, chunk, voiceID, speed)
		})
	if err != nil {
		return Result{}, err
	}

	return writeArtifact(k.outDir(), k.Engine(), voiceID, samples, sr)
}

// SynthesizeChunk renders one chunk of text without writing an artifact.
// Long-running callers invoke it per chunk so other requests can interleave
// at chunk boundaries.
func (k *Kokoro) SynthesizeChunk(ctx context.Context, text, voice string, speed float64) ([]float32, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	core, err := k.ensureCore()
	if err != nil {
		return nil, 0, err
	}
	return core.Synthesize(ctx, text, voice, speed)
}

// Ready reports whether the model snapshot is present, without loading it.
func (k *Kokoro) Ready() error {
	_, err := k.registry.EnsureReady("Kokoro")
	return err
}

// ensureCore lazily initializes the back-end. Callers hold k.mu.
func (k *Kokoro) ensureCore() (KokoroCore, error) {
	if k.core != nil {
		return k.core, nil
	}
	snapshot, err := k.registry.EnsureReady("Kokoro")
	if err != nil {
		return nil, err
	}
	core, err := k.factory(snapshot)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err,
			"kokoro back-end unavailable; install the runtime and retry")
	}
	k.core = core
	return core, nil
}

func (k *Kokoro) Info() map[string]any {
	downloaded := false
	if m, ok := model.Lookup("Kokoro"); ok {
		downloaded = k.registry.IsDownloaded(m)
	}
	return map[string]any{
		"name":          "Kokoro",
		"engine":        k.Engine(),
		"mode":          "tts",
		"default_voice": KokoroDefaultVoice,
		"voice_count":   len(KokoroVoices),
		"downloaded":    downloaded,
	}
}

func (k *Kokoro) Unload() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.core != nil {
		k.core.Close()
		k.core = nil
	}
}
