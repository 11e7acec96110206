// Package engine defines the adapter contract over each synthesis back-end
// and the registry the gateway resolves adapters from. Adapters serialize
// inference behind an internal lock and lazily initialize their back-end on
// first use; a missing optional runtime surfaces as Unavailable with an
// install hint.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/text"
	"github.com/mimikastudio/mimika/internal/voice"
)

// Params is the union of per-engine generation parameters. Each adapter
// reads the fields it understands and ignores the rest.
type Params struct {
	Text      string `json:"text"`
	Voice     string `json:"voice,omitempty"`
	VoiceName string `json:"voice_name,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Language  string `json:"language,omitempty"`
	Model     string `json:"model,omitempty"`

	ModelSize    string `json:"model_size,omitempty"`
	Quantization string `json:"model_quantization,omitempty"`
	Instruct     string `json:"instruct,omitempty"`

	Speed             float64 `json:"speed,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
	TopP              float64 `json:"top_p,omitempty"`
	TopK              int     `json:"top_k,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
	Seed              int64   `json:"seed,omitempty"`
	Exaggeration      float64 `json:"exaggeration,omitempty"`
	CFGWeight         float64 `json:"cfg_weight,omitempty"`
	Steps             int     `json:"steps,omitempty"`
	StreamingInterval float64 `json:"streaming_interval,omitempty"`

	SmartChunking    *bool `json:"smart_chunking,omitempty"`
	MaxCharsPerChunk int   `json:"max_chars_per_chunk,omitempty"`
	CrossfadeMS      int   `json:"crossfade_ms,omitempty"`

	Enqueue     bool `json:"enqueue,omitempty"`
	UnloadAfter bool `json:"unload_after,omitempty"`
}

// DefaultMaxChars bounds one synthesis chunk when the caller does not say.
const DefaultMaxChars = 1500

// DefaultCrossfadeMS is the seam blend applied between chunks.
const DefaultCrossfadeMS = 40

// Result describes a finished generation.
type Result struct {
	Path        string  `json:"path"`
	Filename    string  `json:"filename"`
	DurationSec float64 `json:"duration_sec"`
	SampleRate  int     `json:"sample_rate"`
}

// Adapter is the minimal capability set every back-end provides.
type Adapter interface {
	// Engine returns the back-end tag, e.g. "kokoro".
	Engine() string
	// Generate synthesizes text and writes a WAV artifact into the output
	// directory.
	Generate(ctx context.Context, p Params) (Result, error)
	// Info describes the adapter for the info endpoints.
	Info() map[string]any
	// Unload releases back-end memory; the next call re-initializes.
	Unload()
}

// FrameSource yields successive PCM sample frames until io.EOF. Sources are
// finite and non-restartable; Close releases producer resources and any
// scratch files.
type FrameSource interface {
	Next() ([]float32, error)
	Close() error
}

// Streamer is implemented by adapters that can produce incremental PCM.
type Streamer interface {
	Stream(ctx context.Context, p Params) (FrameSource, error)
}

// VoiceSaver is implemented by clone adapters backed by the voice pool.
type VoiceSaver interface {
	SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error)
	ListVoices() ([]voice.Voice, error)
}

// Registry owns one adapter per back-end tag.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register installs an adapter, replacing any previous one for the tag.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Engine()] = a
}

// Get resolves a back-end tag to its adapter.
func (r *Registry) Get(engine string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[engine]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown engine %q", engine)
	}
	return a, nil
}

// Engines lists the registered back-end tags, sorted.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UnloadAll releases every adapter's back-end memory.
func (r *Registry) UnloadAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		a.Unload()
	}
}

var tagStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// safeTag compresses a free-form label into the artifact-name alphabet.
func safeTag(value, fallback string) string {
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, " ", "-")
	tag := strings.Trim(tagStrip.ReplaceAllString(value, ""), "-_")
	if len(tag) > 32 {
		tag = tag[:32]
	}
	if tag == "" {
		return fallback
	}
	return tag
}

// artifactName builds "<engine>-<label>-<8hex>.wav".
func artifactName(engine, label string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s.wav", engine, safeTag(label, "model"), id)
}

// writeArtifact encodes samples and writes them into outDir under the
// artifact naming convention.
func writeArtifact(outDir, engine, label string, samples []float32, sampleRate int) (Result, error) {
	if len(samples) == 0 {
		return Result{}, apperr.New(apperr.Internal, "no audio generated")
	}

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "encoding artifact")
	}

	name := artifactName(engine, label)
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, err, "writing artifact")
	}

	return Result{
		Path:        path,
		Filename:    name,
		DurationSec: float64(len(samples)) / float64(sampleRate),
		SampleRate:  sampleRate,
	}, nil
}

// chunkText applies the chunking parameters to the request text. An empty
// result is a caller error.
func chunkText(p Params) ([]string, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, apperr.New(apperr.BadRequest, "text cannot be empty")
	}

	smart := true
	if p.SmartChunking != nil {
		smart = *p.SmartChunking
	}
	if !smart {
		return []string{strings.TrimSpace(p.Text)}, nil
	}

	maxChars := p.MaxCharsPerChunk
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	chunks := text.SmartChunk(p.Text, maxChars)
	if len(chunks) == 0 {
		return nil, apperr.New(apperr.BadRequest, "text cannot be empty")
	}
	return chunks, nil
}

// crossfade returns the effective crossfade for a request.
func crossfade(p Params) int {
	if p.CrossfadeMS > 0 {
		return p.CrossfadeMS
	}
	return DefaultCrossfadeMS
}

// synthesizeChunks runs gen over each chunk in order and merges the pieces,
// resampling stragglers onto the first chunk's rate.
func synthesizeChunks(ctx context.Context, chunks []string, crossfadeMS int,
	gen func(ctx context.Context, chunk string) ([]float32, int, error)) ([]float32, int, error) {

	var pieces [][]float32
	sampleRate := 0

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, 0, apperr.Wrap(apperr.Internal, err, "generation cancelled")
		}
		samples, sr, err := gen(ctx, chunk)
		if err != nil {
			return nil, 0, err
		}
		if len(samples) == 0 {
			continue
		}
		if sampleRate == 0 {
			sampleRate = sr
		} else if sr != sampleRate {
			samples = audio.Resample(samples, sr, sampleRate)
		}
		pieces = append(pieces, samples)
	}

	if len(pieces) == 0 || sampleRate == 0 {
		return nil, 0, apperr.New(apperr.Internal, "no audio generated")
	}
	return audio.Merge(pieces, sampleRate, crossfadeMS), sampleRate, nil
}

// promptFile stages a voice's reference audio into a scratch WAV for a
// clone back-end. The caller must invoke the returned cleanup in every
// path.
func promptFile(store *voice.Store, voiceName string) (path string, cleanup func(), err error) {
	audioPath, err := store.AudioPath(voiceName)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "reading voice %q", voiceName)
	}
	normalized, err := audio.Normalize(data)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "normalizing voice %q", voiceName)
	}

	f, err := os.CreateTemp("", "mimika-prompt-*.wav")
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "creating scratch file")
	}
	if _, err := f.Write(normalized); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, apperr.Wrap(apperr.Internal, err, "writing scratch file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, apperr.Wrap(apperr.Internal, err, "closing scratch file")
	}

	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}
