package engine

import (
	"context"
	"sync"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/voice"
)

// IndexTTS2Core performs the actual synthesis. The back-end ships as a
// Python package, so a core only exists when one was injected at startup.
type IndexTTS2Core interface {
	Synthesize(ctx context.Context, text, refAudio, refText string) ([]float32, int, error)
	Close()
}

// IndexTTS2 adapts the pip-installed cloning back-end. Without an injected
// core every generation fails with an install hint.
type IndexTTS2 struct {
	voices *voice.Store
	outDir func() string

	mu   sync.Mutex
	core IndexTTS2Core
}

// NewIndexTTS2 builds the adapter. core may be nil.
func NewIndexTTS2(voices *voice.Store, outDir func() string, core IndexTTS2Core) *IndexTTS2 {
	return &IndexTTS2{voices: voices, outDir: outDir, core: core}
}

func (i *IndexTTS2) Engine() string { return "indextts2" }

// Validate rejects bad parameters without touching the core.
func (i *IndexTTS2) Validate(p Params) error {
	if _, err := chunkText(p); err != nil {
		return err
	}
	if p.VoiceName == "" {
		return apperr.New(apperr.BadRequest, "voice_name is required")
	}
	return nil
}

func (i *IndexTTS2) Generate(ctx context.Context, p Params) (Result, error) {
	chunks, err := chunkText(p)
	if err != nil {
		return Result{}, err
	}
	if p.VoiceName == "" {
		return Result{}, apperr.New(apperr.BadRequest, "voice_name is required")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.core == nil {
		return Result{}, apperr.New(apperr.Unavailable,
			"indextts2 runtime unavailable; this build supports MLX-Audio engines only")
	}

	v, err := i.voices.Get(p.VoiceName)
	if err != nil {
		return Result{}, err
	}
	scratch, cleanup, err := promptFile(i.voices, p.VoiceName)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	samples, sr, err := synthesizeChunks(ctx, chunks, crossfade(p),
		func(ctx context.Context, chunk string) ([]float32, int, error) {
			return i.core.Synthesize(ctx, chunk, scratch, v.Transcript)
		})
	if err != nil {
		return Result{}, err
	}

	return writeArtifact(i.outDir(), i.Engine(), p.VoiceName, samples, sr)
}

func (i *IndexTTS2) SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error) {
	return i.voices.Upload(name, transcript, wavData)
}

func (i *IndexTTS2) ListVoices() ([]voice.Voice, error) {
	return i.voices.List()
}

func (i *IndexTTS2) Info() map[string]any {
	i.mu.Lock()
	installed := i.core != nil
	i.mu.Unlock()
	return map[string]any{
		"name":      "IndexTTS-2",
		"engine":    i.Engine(),
		"mode":      "clone",
		"installed": installed,
	}
}

func (i *IndexTTS2) Unload() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.core != nil {
		i.core.Close()
	}
}
