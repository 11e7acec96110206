package engine

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/voice"
)

var artifactPattern = regexp.MustCompile(`^[a-z0-9]+-[a-zA-Z0-9_-]+-[0-9a-f]{8}\.wav$`)

func testVoices(t *testing.T) *voice.Store {
	t.Helper()
	s, err := voice.NewStore(filepath.Join(t.TempDir(), "shared"), filepath.Join(t.TempDir(), "user"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	wav, err := audio.EncodeWAV(make([]float32, audio.SampleRate/10), audio.SampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if _, err := s.Upload("Natasha", "sample words", wav); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return s
}

func readyRegistry(t *testing.T, modelNames ...string) *model.Registry {
	t.Helper()
	hub := t.TempDir()
	for _, name := range modelNames {
		m, ok := model.Lookup(name)
		if !ok {
			t.Fatalf("model %q not in catalog", name)
		}
		dir := filepath.Join(model.CacheDir(hub, m.Repo), "snapshots", "rev")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("w"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return model.NewRegistry(hub)
}

func fixedDir(dir string) func() string {
	return func() string { return dir }
}

func TestRegistryResolution(t *testing.T) {
	r := NewRegistry()
	k := NewKokoro(readyRegistry(t), fixedDir(t.TempDir()), nil)
	r.Register(k)

	got, err := r.Get("kokoro")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Adapter(k) {
		t.Error("Get returned a different adapter")
	}
	if _, err := r.Get("nope"); apperr.KindOf(err) != apperr.NotFound {
		t.Error("unknown engine did not return NotFound")
	}
	if ids := r.Engines(); len(ids) != 1 || ids[0] != "kokoro" {
		t.Errorf("Engines = %v", ids)
	}
}

func TestSafeTag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bf_emma", "bf_emma"},
		{"mlx-community/Kokoro", "mlx-community-Kokoro"},
		{"weird name!!", "weird-name"},
		{"", "model"},
		{"!!!", "model"},
	}
	for _, tt := range tests {
		if got := safeTag(tt.in, "model"); got != tt.want {
			t.Errorf("safeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChunkTextModes(t *testing.T) {
	off := false
	chunks, err := chunkText(Params{Text: "One. Two. Three.", SmartChunking: &off})
	if err != nil {
		t.Fatalf("chunkText: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("smart off: %d chunks, want 1", len(chunks))
	}

	chunks, err = chunkText(Params{Text: "One. Two. Three.", MaxCharsPerChunk: 5})
	if err != nil {
		t.Fatalf("chunkText: %v", err)
	}
	if len(chunks) != 3 {
		t.Errorf("smart on: %d chunks, want 3", len(chunks))
	}

	if _, err := chunkText(Params{Text: "   "}); apperr.KindOf(err) != apperr.BadRequest {
		t.Error("empty text did not return BadRequest")
	}
}

type fakeKokoroCore struct {
	calls  int
	voices []string
	closed bool
}

func (f *fakeKokoroCore) Synthesize(_ context.Context, text, voice string, _ float64) ([]float32, int, error) {
	f.calls++
	f.voices = append(f.voices, voice)
	return make([]float32, audio.SampleRate/10), audio.SampleRate, nil
}

func (f *fakeKokoroCore) Close() { f.closed = true }

func TestKokoroGenerate(t *testing.T) {
	out := t.TempDir()
	core := &fakeKokoroCore{}
	k := NewKokoro(readyRegistry(t, "Kokoro"), fixedDir(out),
		func(string) (KokoroCore, error) { return core, nil })

	res, err := k.Generate(context.Background(), Params{Text: "hello there", Voice: "bf_emma"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !artifactPattern.MatchString(res.Filename) {
		t.Errorf("filename %q does not match artifact grammar", res.Filename)
	}
	if !regexp.MustCompile(`^kokoro-bf_emma-[0-9a-f]{8}\.wav$`).MatchString(res.Filename) {
		t.Errorf("filename %q does not encode engine and voice", res.Filename)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if res.DurationSec <= 0 {
		t.Error("duration not reported")
	}
}

func TestKokoroUnknownVoiceFallsBack(t *testing.T) {
	core := &fakeKokoroCore{}
	k := NewKokoro(readyRegistry(t, "Kokoro"), fixedDir(t.TempDir()),
		func(string) (KokoroCore, error) { return core, nil })

	if _, err := k.Generate(context.Background(), Params{Text: "hi", Voice: "not_a_voice"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(core.voices) == 0 || core.voices[0] != KokoroDefaultVoice {
		t.Errorf("voices = %v, want fallback to %q", core.voices, KokoroDefaultVoice)
	}
}

func TestKokoroModelNotReady(t *testing.T) {
	k := NewKokoro(readyRegistry(t), fixedDir(t.TempDir()),
		func(string) (KokoroCore, error) { return &fakeKokoroCore{}, nil })

	_, err := k.Generate(context.Background(), Params{Text: "hi"})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("kind = %v, want Conflict", apperr.KindOf(err))
	}
}

func TestKokoroUnloadClosesCore(t *testing.T) {
	core := &fakeKokoroCore{}
	k := NewKokoro(readyRegistry(t, "Kokoro"), fixedDir(t.TempDir()),
		func(string) (KokoroCore, error) { return core, nil })

	if _, err := k.Generate(context.Background(), Params{Text: "hi"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	k.Unload()
	if !core.closed {
		t.Error("Unload did not close the core")
	}
}
