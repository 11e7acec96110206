package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
)

type fakeQwen3Core struct {
	lastReq Qwen3Request
	frames  [][]float32
	err     error
}

func (f *fakeQwen3Core) Synthesize(_ context.Context, req Qwen3Request) ([]float32, int, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, 0, f.err
	}
	return make([]float32, audio.SampleRate/10), audio.SampleRate, nil
}

func (f *fakeQwen3Core) StreamPCM(ctx context.Context, req Qwen3Request) (<-chan []float32, <-chan error, error) {
	f.lastReq = req
	frames := make(chan []float32)
	errc := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errc)
		for _, fr := range f.frames {
			select {
			case frames <- fr:
			case <-ctx.Done():
				return
			}
		}
		if f.err != nil {
			errc <- f.err
		}
	}()
	return frames, errc, nil
}

func (f *fakeQwen3Core) Close() {}

func newTestQwen3(t *testing.T, core Qwen3Core, ready bool) *Qwen3 {
	t.Helper()
	models := []string{}
	if ready {
		models = []string{"Qwen3-TTS-12Hz-0.6B-Base", "Qwen3-TTS-12Hz-0.6B-CustomVoice"}
	}
	return NewQwen3(readyRegistry(t, models...), testVoices(t), fixedDir(t.TempDir()),
		func(string, string) (Qwen3Core, error) { return core, nil })
}

func TestQwen3ModelName(t *testing.T) {
	q := newTestQwen3(t, &fakeQwen3Core{}, false)

	tests := []struct {
		name string
		p    Params
		want string
	}{
		{"clone defaults", Params{Mode: "clone"}, "Qwen3-TTS-12Hz-0.6B-Base"},
		{"custom defaults", Params{Mode: "custom"}, "Qwen3-TTS-12Hz-0.6B-CustomVoice"},
		{"large 8bit clone", Params{Mode: "clone", ModelSize: "1.7B", Quantization: "8bit"},
			"Qwen3-TTS-12Hz-1.7B-Base-8bit"},
		{"explicit model wins", Params{Mode: "clone", Model: "Kokoro"}, "Kokoro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.ModelName(tt.p)
			if err != nil {
				t.Fatalf("ModelName: %v", err)
			}
			if got != tt.want {
				t.Errorf("ModelName = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := q.ModelName(Params{Quantization: "4bit"}); apperr.KindOf(err) != apperr.BadRequest {
		t.Error("bad quantization did not return BadRequest")
	}
	if _, err := q.ModelName(Params{ModelSize: "9B"}); apperr.KindOf(err) != apperr.BadRequest {
		t.Error("bad size did not return BadRequest")
	}
}

func TestQwen3GenerateClone(t *testing.T) {
	core := &fakeQwen3Core{}
	q := newTestQwen3(t, core, true)

	res, err := q.Generate(context.Background(), Params{
		Text: "hello", Mode: "clone", VoiceName: "Natasha",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !artifactPattern.MatchString(res.Filename) {
		t.Errorf("filename %q does not match artifact grammar", res.Filename)
	}
	if core.lastReq.RefText != "sample words" {
		t.Errorf("transcript = %q, want sample words", core.lastReq.RefText)
	}
	// Scratch reference is removed after generation.
	if _, err := os.Stat(core.lastReq.RefAudio); !os.IsNotExist(err) {
		t.Error("scratch reference file survived generation")
	}
}

func TestQwen3Validation(t *testing.T) {
	q := newTestQwen3(t, &fakeQwen3Core{}, true)

	tests := []struct {
		name     string
		p        Params
		wantKind apperr.Kind
	}{
		{"empty text", Params{Mode: "clone", VoiceName: "Natasha"}, apperr.BadRequest},
		{"clone without voice", Params{Text: "hi", Mode: "clone"}, apperr.BadRequest},
		{"unknown voice", Params{Text: "hi", Mode: "clone", VoiceName: "ghost"}, apperr.NotFound},
		{"custom without speaker", Params{Text: "hi", Mode: "custom"}, apperr.BadRequest},
		{"unknown speaker", Params{Text: "hi", Mode: "custom", Speaker: "Nobody"}, apperr.BadRequest},
		{"unknown mode", Params{Text: "hi", Mode: "design"}, apperr.BadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Generate(context.Background(), tt.p)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := apperr.KindOf(err); kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
			// Validate rejects the same parameters without synthesis.
			if kind := apperr.KindOf(q.Validate(tt.p)); kind != tt.wantKind {
				t.Errorf("Validate kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}

	if err := q.Validate(Params{Text: "hi", Mode: "clone", VoiceName: "Natasha"}); err != nil {
		t.Errorf("Validate rejected good parameters: %v", err)
	}
}

func TestQwen3GenerateModelNotReady(t *testing.T) {
	q := newTestQwen3(t, &fakeQwen3Core{}, false)

	_, err := q.Generate(context.Background(), Params{
		Text: "hi", Mode: "custom", Speaker: "Ryan",
	})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("kind = %v, want Conflict", apperr.KindOf(err))
	}
}

func TestQwen3StreamDeliversFrames(t *testing.T) {
	core := &fakeQwen3Core{frames: [][]float32{{0.1, 0.2}, {0.3}}}
	q := newTestQwen3(t, core, true)

	src, err := q.Stream(context.Background(), Params{
		Text: "hi", Mode: "custom", Speaker: "Ryan",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer src.Close()

	var total int
	for {
		frame, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		total += len(frame)
	}
	if total != 3 {
		t.Errorf("streamed %d samples, want 3", total)
	}
}

func TestQwen3StreamSurfacesProducerError(t *testing.T) {
	wantErr := errors.New("synthesis exploded")
	core := &fakeQwen3Core{frames: [][]float32{{0.1}}, err: wantErr}
	q := newTestQwen3(t, core, true)

	src, err := q.Stream(context.Background(), Params{
		Text: "hi", Mode: "custom", Speaker: "Ryan",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer src.Close()

	if _, err := src.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := src.Next(); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want producer error", err)
	}
}

func TestQwen3StreamCloseRemovesScratch(t *testing.T) {
	core := &fakeQwen3Core{frames: [][]float32{{0.1}, {0.2}, {0.3}}}
	q := newTestQwen3(t, core, true)

	src, err := q.Stream(context.Background(), Params{
		Text: "hi", Mode: "clone", VoiceName: "Natasha",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// Abandon the stream after one frame, as a disconnecting client would.
	if _, err := src.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(core.lastReq.RefAudio); !os.IsNotExist(err) {
		t.Error("scratch reference file survived stream close")
	}
}
