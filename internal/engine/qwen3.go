package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/voice"
)

// Qwen3Request carries the resolved inputs for one Qwen3 synthesis call.
type Qwen3Request struct {
	Text     string
	Mode     string // "clone" or "custom"
	RefAudio string // scratch WAV path, clone mode
	RefText  string // transcript, clone mode
	Speaker  string // preset, custom mode
	Language string
	Instruct string
	Speed    float64
	Interval float64 // streaming interval in seconds
	Params   Params
}

// Qwen3Core performs the actual synthesis.
type Qwen3Core interface {
	Synthesize(ctx context.Context, req Qwen3Request) ([]float32, int, error)
	// StreamPCM yields successive sample frames; the channel closes on
	// completion and errc carries at most one error.
	StreamPCM(ctx context.Context, req Qwen3Request) (frames <-chan []float32, errc <-chan error, err error)
	Close()
}

// Qwen3 adapts the Qwen3-TTS back-end in clone and custom modes.
type Qwen3 struct {
	registry *model.Registry
	voices   *voice.Store
	outDir   func() string
	factory  func(snapshotPath, mode string) (Qwen3Core, error)

	mu    sync.Mutex
	cores map[string]Qwen3Core // keyed by catalog model name
}

// NewQwen3 builds the adapter. One core is kept per catalog model so
// switching size or quantization does not thrash a single instance.
func NewQwen3(registry *model.Registry, voices *voice.Store, outDir func() string,
	factory func(snapshotPath, mode string) (Qwen3Core, error)) *Qwen3 {
	return &Qwen3{
		registry: registry,
		voices:   voices,
		outDir:   outDir,
		factory:  factory,
		cores:    make(map[string]Qwen3Core),
	}
}

func (q *Qwen3) Engine() string { return "qwen3" }

// ModelName resolves the catalog entry for a parameter combination.
func (q *Qwen3) ModelName(p Params) (string, error) {
	if p.Model != "" {
		return p.Model, nil
	}

	size := p.ModelSize
	if size == "" {
		size = "0.6B"
	}
	if size != "0.6B" && size != "1.7B" {
		return "", apperr.New(apperr.BadRequest, "model_size must be '0.6B' or '1.7B'")
	}

	quant := p.Quantization
	if quant == "" {
		quant = "bf16"
	}
	if quant != "bf16" && quant != "8bit" {
		return "", apperr.New(apperr.BadRequest, "model_quantization must be 'bf16' or '8bit'")
	}

	variant := "Base"
	if p.Mode == "custom" {
		variant = "CustomVoice"
	}
	name := fmt.Sprintf("Qwen3-TTS-12Hz-%s-%s", size, variant)
	if quant == "8bit" {
		name += "-8bit"
	}
	return name, nil
}

// resolve validates the request and stages clone reference audio. The
// returned cleanup must run in every path.
func (q *Qwen3) resolve(p Params) (req Qwen3Request, label string, cleanup func(), err error) {
	noop := func() {}

	if strings.TrimSpace(p.Text) == "" {
		return req, "", noop, apperr.New(apperr.BadRequest, "text cannot be empty")
	}

	req = Qwen3Request{
		Text:     p.Text,
		Mode:     p.Mode,
		Language: p.Language,
		Instruct: p.Instruct,
		Speed:    p.Speed,
		Interval: p.StreamingInterval,
		Params:   p,
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	switch p.Mode {
	case "clone":
		if p.VoiceName == "" {
			return req, "", noop, apperr.New(apperr.BadRequest, "clone mode requires voice_name")
		}
		v, err := q.voices.Get(p.VoiceName)
		if err != nil {
			return req, "", noop, err
		}
		scratch, clean, err := promptFile(q.voices, p.VoiceName)
		if err != nil {
			return req, "", noop, err
		}
		req.RefAudio = scratch
		req.RefText = v.Transcript
		return req, p.VoiceName, clean, nil

	case "custom":
		if p.Speaker == "" {
			return req, "", noop, apperr.New(apperr.BadRequest, "custom mode requires speaker")
		}
		valid := false
		for _, s := range model.QwenSpeakers {
			if s == p.Speaker {
				valid = true
				break
			}
		}
		if !valid {
			return req, "", noop, apperr.New(apperr.BadRequest,
				"unknown speaker %q; available: %s", p.Speaker, strings.Join(model.QwenSpeakers, ", "))
		}
		req.Speaker = p.Speaker
		return req, p.Speaker, noop, nil

	default:
		return req, "", noop, apperr.New(apperr.BadRequest,
			"unknown mode %q; use 'clone' or 'custom'", p.Mode)
	}
}

// Validate rejects bad parameters without loading a core, mirroring the
// checks Generate performs before synthesis.
func (q *Qwen3) Validate(p Params) error {
	_, _, cleanup, err := q.resolve(p)
	cleanup()
	if err != nil {
		return err
	}
	_, err = q.ModelName(p)
	return err
}

func (q *Qwen3) Generate(ctx context.Context, p Params) (Result, error) {
	req, label, cleanup, err := q.resolve(p)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	modelName, err := q.ModelName(p)
	if err != nil {
		return Result{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	core, err := q.ensureCore(modelName, p.Mode)
	if err != nil {
		return Result{}, err
	}

	samples, sr, err := core.Synthesize(ctx, req)
	if err != nil {
		return Result{}, err
	}

	return writeArtifact(q.outDir(), q.Engine(), label, samples, sr)
}

// Stream starts incremental synthesis and hands back a frame source. The
// scratch reference file lives until the source is closed.
func (q *Qwen3) Stream(ctx context.Context, p Params) (FrameSource, error) {
	req, _, cleanup, err := q.resolve(p)
	if err != nil {
		return nil, err
	}

	modelName, err := q.ModelName(p)
	if err != nil {
		cleanup()
		return nil, err
	}

	q.mu.Lock()
	core, err := q.ensureCore(modelName, p.Mode)
	q.mu.Unlock()
	if err != nil {
		cleanup()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	frames, errc, err := core.StreamPCM(streamCtx, req)
	if err != nil {
		cancel()
		cleanup()
		return nil, err
	}

	return &qwen3FrameSource{
		frames: frames,
		errc:   errc,
		cancel: cancel,
		clean:  cleanup,
	}, nil
}

// ensureCore lazily initializes the back-end for one model. Callers hold
// q.mu.
func (q *Qwen3) ensureCore(modelName, mode string) (Qwen3Core, error) {
	if core, ok := q.cores[modelName]; ok {
		return core, nil
	}
	snapshot, err := q.registry.EnsureReady(modelName)
	if err != nil {
		return nil, err
	}
	core, err := q.factory(snapshot, mode)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err,
			"qwen3 back-end unavailable; install the runtime and retry")
	}
	q.cores[modelName] = core
	return core, nil
}

// SaveVoice stores a cloning voice in the shared pool.
func (q *Qwen3) SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error) {
	return q.voices.Upload(name, transcript, wavData)
}

// ListVoices returns the shared pool.
func (q *Qwen3) ListVoices() ([]voice.Voice, error) {
	return q.voices.List()
}

func (q *Qwen3) Info() map[string]any {
	return map[string]any{
		"name":     "Qwen3-TTS",
		"engine":   q.Engine(),
		"modes":    []string{"clone", "custom"},
		"speakers": model.QwenSpeakers,
	}
}

func (q *Qwen3) Unload() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for name, core := range q.cores {
		core.Close()
		delete(q.cores, name)
	}
}

// qwen3FrameSource adapts the core's channel pair to FrameSource.
type qwen3FrameSource struct {
	frames <-chan []float32
	errc   <-chan error
	cancel context.CancelFunc
	clean  func()

	closeOnce sync.Once
	done      bool
}

func (s *qwen3FrameSource) Next() ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}
	frame, ok := <-s.frames
	if ok {
		return frame, nil
	}
	s.done = true
	select {
	case err, ok := <-s.errc:
		if ok && err != nil {
			return nil, err
		}
	default:
	}
	return nil, io.EOF
}

func (s *qwen3FrameSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain so the producer can observe cancellation and exit.
		for range s.frames {
		}
		s.clean()
	})
	return nil
}
