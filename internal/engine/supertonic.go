package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/model"
)

// SupertonicCore performs the actual synthesis.
type SupertonicCore interface {
	Synthesize(ctx context.Context, text string, speed float64) ([]float32, int, error)
	Close()
}

// Supertonic adapts the ONNX-based low-latency English back-end.
type Supertonic struct {
	registry *model.Registry
	outDir   func() string
	factory  func(snapshotPath string) (SupertonicCore, error)

	mu   sync.Mutex
	core SupertonicCore
}

// NewSupertonic builds the adapter. A nil factory uses the ONNX Runtime
// backed implementation.
func NewSupertonic(registry *model.Registry, outDir func() string,
	factory func(snapshotPath string) (SupertonicCore, error)) *Supertonic {
	if factory == nil {
		factory = newORTSupertonicCore
	}
	return &Supertonic{registry: registry, outDir: outDir, factory: factory}
}

func (s *Supertonic) Engine() string { return "supertonic" }

// Validate rejects bad parameters without loading the core.
func (s *Supertonic) Validate(p Params) error {
	_, err := chunkText(p)
	return err
}

func (s *Supertonic) Generate(ctx context.Context, p Params) (Result, error) {
	chunks, err := chunkText(p)
	if err != nil {
		return Result{}, err
	}
	speed := p.Speed
	if speed <= 0 {
		speed = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	core, err := s.ensureCore()
	if err != nil {
		return Result{}, err
	}

	samples, sr, err := synthesizeChunks(ctx, chunks, crossfade(p),
		func(ctx context.Context, chunk string) ([]float32, int, error) {
			return core.Synthesize(ctx, chunk, speed)
		})
	if err != nil {
		return Result{}, err
	}

	return writeArtifact(s.outDir(), s.Engine(), "en", samples, sr)
}

func (s *Supertonic) ensureCore() (SupertonicCore, error) {
	if s.core != nil {
		return s.core, nil
	}
	snapshot, err := s.registry.EnsureReady("Supertonic")
	if err != nil {
		return nil, err
	}
	core, err := s.factory(snapshot)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err,
			"supertonic back-end unavailable; install ONNX Runtime and set ORT_LIBRARY_PATH")
	}
	s.core = core
	return core, nil
}

func (s *Supertonic) Info() map[string]any {
	downloaded := false
	if m, ok := model.Lookup("Supertonic"); ok {
		downloaded = s.registry.IsDownloaded(m)
	}
	return map[string]any{
		"name":       "Supertonic",
		"engine":     s.Engine(),
		"mode":       "tts",
		"runtime":    "onnxruntime",
		"downloaded": downloaded,
	}
}

func (s *Supertonic) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.core != nil {
		s.core.Close()
		s.core = nil
	}
}

// ortLibraryPath locates the ONNX Runtime shared library from the
// environment or a handful of conventional install locations.
func ortLibraryPath() (string, error) {
	if path := os.Getenv("ORT_LIBRARY_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("onnx runtime library path check failed: %w", err)
		}
		return path, nil
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"C:/onnxruntime/lib/onnxruntime.dll",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errors.New("unable to detect ONNX Runtime library path")
}

// ortCore drives the supertonic ONNX graph through onnxruntime-purego.
type ortCore struct {
	runtime *ort.Runtime
	env     *ort.Env
	session *ort.Session
}

func newORTSupertonicCore(snapshotPath string) (SupertonicCore, error) {
	modelPath, err := findONNXGraph(snapshotPath)
	if err != nil {
		return nil, err
	}

	libPath, err := ortLibraryPath()
	if err != nil {
		return nil, err
	}

	runtime, err := ort.NewRuntime(libPath, 23)
	if err != nil {
		return nil, fmt.Errorf("ort runtime: %w", err)
	}
	env, err := runtime.NewEnv("mimika-supertonic", ort.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("ort env: %w", err)
	}
	session, err := runtime.NewSession(env, modelPath, nil)
	if err != nil {
		env.Close()
		_ = runtime.Close()
		return nil, fmt.Errorf("ort session for %s: %w", modelPath, err)
	}

	return &ortCore{runtime: runtime, env: env, session: session}, nil
}

func (c *ortCore) Synthesize(ctx context.Context, text string, speed float64) ([]float32, int, error) {
	ids := make([]int64, 0, len(text))
	for _, r := range text {
		ids = append(ids, int64(r))
	}
	if len(ids) == 0 {
		return nil, 0, errors.New("empty input")
	}

	input, err := ort.NewTensorValue(c.runtime, ids, []int64{1, int64(len(ids))})
	if err != nil {
		return nil, 0, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Close()

	outputs, err := c.session.Run(ctx, map[string]*ort.Value{"text": input})
	if err != nil {
		return nil, 0, fmt.Errorf("run graph: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			v.Close()
		}
	}()

	out, ok := outputs["audio"]
	if !ok {
		for _, v := range outputs {
			out = v
			break
		}
	}
	if out == nil {
		return nil, 0, errors.New("graph produced no output")
	}

	samples, _, err := ort.GetTensorData[float32](out)
	if err != nil {
		return nil, 0, fmt.Errorf("read output tensor: %w", err)
	}
	return samples, 24000, nil
}

func (c *ortCore) Close() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	if c.env != nil {
		c.env.Close()
		c.env = nil
	}
	if c.runtime != nil {
		_ = c.runtime.Close()
		c.runtime = nil
	}
}

// findONNXGraph locates the primary .onnx file inside a snapshot.
func findONNXGraph(snapshotPath string) (string, error) {
	var found string
	err := filepath.WalkDir(snapshotPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(d.Name()) == ".onnx" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no .onnx graph under %s", snapshotPath)
	}
	return found, nil
}
