package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/config"
	"github.com/mimikastudio/mimika/internal/doc"
	"github.com/mimikastudio/mimika/internal/engine"
	"github.com/mimikastudio/mimika/internal/job"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/outputs"
	"github.com/mimikastudio/mimika/internal/paths"
	"github.com/mimikastudio/mimika/internal/settings"
	"github.com/mimikastudio/mimika/internal/voice"
)

// fakeAdapter is a minimal back-end for gateway tests. It writes real
// artifacts so the static file routes can be exercised.
type fakeAdapter struct {
	name   string
	outDir func() string
	genErr error
	frames [][]float32
	voices *voice.Store

	unloaded bool
}

func (f *fakeAdapter) Engine() string { return f.name }

func (f *fakeAdapter) Generate(ctx context.Context, p engine.Params) (engine.Result, error) {
	if f.genErr != nil {
		return engine.Result{}, f.genErr
	}
	if strings.TrimSpace(p.Text) == "" {
		return engine.Result{}, apperr.New(apperr.BadRequest, "text cannot be empty")
	}

	label := p.Voice
	if label == "" {
		label = "model"
	}
	name := fmt.Sprintf("%s-%s-0a1b2c3d.wav", f.name, label)
	data, err := audio.EncodeWAV(make([]float32, 2400), 24000)
	if err != nil {
		return engine.Result{}, err
	}
	path := filepath.Join(f.outDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Path: path, Filename: name, DurationSec: 0.1, SampleRate: 24000}, nil
}

func (f *fakeAdapter) Validate(p engine.Params) error {
	if strings.TrimSpace(p.Text) == "" {
		return apperr.New(apperr.BadRequest, "text cannot be empty")
	}
	return nil
}

func (f *fakeAdapter) Info() map[string]any {
	return map[string]any{"name": f.name, "engine": f.name}
}

func (f *fakeAdapter) Unload() { f.unloaded = true }

func (f *fakeAdapter) SaveVoice(name, transcript string, wavData []byte) (voice.Voice, error) {
	return f.voices.Upload(name, transcript, wavData)
}

func (f *fakeAdapter) ListVoices() ([]voice.Voice, error) { return f.voices.List() }

func (f *fakeAdapter) Stream(ctx context.Context, p engine.Params) (engine.FrameSource, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, apperr.New(apperr.BadRequest, "text cannot be empty")
	}
	return &fakeFrameSource{frames: f.frames}, nil
}

type fakeFrameSource struct {
	frames [][]float32
	pos    int
}

func (s *fakeFrameSource) Next() ([]float32, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

func (s *fakeFrameSource) Close() error { return nil }

type testEnv struct {
	server  *httptest.Server
	outDir  string
	paths   *paths.Service
	voices  *voice.Store
	qwen3   *fakeAdapter
	kokoro  *fakeAdapter
	jobs    *job.Manager
	hubRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	home := t.TempDir()
	p := &paths.Service{
		Getenv: func(name string) string {
			if name == paths.EnvRuntimeHome {
				return filepath.Join(home, "MimikaStudio")
			}
			return ""
		},
		Home: func() (string, error) { return home, nil },
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := settings.Open(settings.Options{InMemory: true})
	if err != nil {
		t.Fatalf("opening settings: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	voices, err := voice.NewStore(p.SharedVoicesDir(), p.UserVoicesDir())
	if err != nil {
		t.Fatalf("voice store: %v", err)
	}

	out := outputs.NewStore(p, st, logger)
	jobs := job.NewManager(logger, nil)

	hubRoot := filepath.Join(home, "hub")
	registry := model.NewRegistry(hubRoot)
	downloads := model.NewManager(registry,
		model.FetcherFunc(func(ctx context.Context, repo, cacheDir string) (string, error) {
			return "", fmt.Errorf("no network in tests")
		}), logger)
	dicta := model.NewDicta(filepath.Join(home, "dicta.onnx"), "", logger)

	engines := engine.NewRegistry()
	kokoro := &fakeAdapter{name: "kokoro", outDir: out.Dir}
	qwen3 := &fakeAdapter{
		name: "qwen3", outDir: out.Dir, voices: voices,
		frames: [][]float32{make([]float32, 500), make([]float32, 500)},
	}
	engines.Register(kokoro)
	engines.Register(qwen3)

	synth := &fakeBookSynth{}
	runner := job.NewAudiobookRunner(jobs, synth, out.Dir, nil, logger)

	srv := New(Deps{
		Config:     config.DefaultConfig(),
		Logger:     logger,
		Version:    "test",
		Engines:    engines,
		Voices:     voices,
		Models:     registry,
		Downloads:  downloads,
		Dicta:      dicta,
		Jobs:       jobs,
		Audiobooks: runner,
		Outputs:    out,
		Settings:   st,
		Paths:      p,
		Docs:       doc.NewSet(),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{
		server: ts, outDir: out.Dir(), paths: p, voices: voices,
		qwen3: qwen3, kokoro: kokoro, jobs: jobs, hubRoot: hubRoot,
	}
}

// fakeBookSynth renders a short burst of audio per chunk.
type fakeBookSynth struct{}

func (f *fakeBookSynth) SynthesizeChunk(ctx context.Context, text, voice string, speed float64) ([]float32, int, error) {
	return make([]float32, 2400), 24000, nil
}

func (f *fakeBookSynth) ResolveVoice(requested string) string {
	if requested == "" {
		return "bf_emma"
	}
	return requested
}

func (f *fakeBookSynth) Ready() error { return nil }

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url string, body any, v any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	resp := getJSON(t, env.server.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["service"] != "mimikastudio" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestIDEcho(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "abc123def456")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc123def456" {
		t.Errorf("X-Request-ID = %q", got)
	}

	resp2, err := http.Get(env.server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if got := resp2.Header.Get("X-Request-ID"); len(got) != 12 {
		t.Errorf("generated id = %q, want 12 hex chars", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	env := newTestEnv(t)

	var body errorEnvelope
	resp := postJSON(t, env.server.URL+"/api/nosuch/generate",
		map[string]string{"text": "hi"}, &body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Error != "not_found" || body.RequestID == "" {
		t.Errorf("envelope = %+v", body)
	}
}

func TestMalformedJSONIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/api/kokoro/generate",
		"application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "validation_error" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestGenerateSynchronous(t *testing.T) {
	env := newTestEnv(t)

	var body generateResponse
	resp := postJSON(t, env.server.URL+"/api/kokoro/generate",
		map[string]any{"text": "hello", "voice": "bf_emma"}, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.AudioURL != "/audio/kokoro-bf_emma-0a1b2c3d.wav" {
		t.Errorf("audio_url = %q", body.AudioURL)
	}
	if _, err := os.Stat(filepath.Join(env.outDir, body.Filename)); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	// The artifact is then servable through the static route.
	audioResp, err := http.Get(env.server.URL + body.AudioURL)
	if err != nil {
		t.Fatal(err)
	}
	defer audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Errorf("audio status = %d", audioResp.StatusCode)
	}
}

func TestGenerateConflictSurfacesCacheDir(t *testing.T) {
	env := newTestEnv(t)
	env.kokoro.genErr = apperr.New(apperr.Conflict,
		"model %q is not downloaded; expected weights under %s", "Kokoro", env.hubRoot)

	var body errorEnvelope
	resp := postJSON(t, env.server.URL+"/api/kokoro/generate",
		map[string]string{"text": "hi"}, &body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body.Detail, env.hubRoot) {
		t.Errorf("detail = %q, want cache dir", body.Detail)
	}
}

func TestGenerateInternalErrorHidesDetail(t *testing.T) {
	env := newTestEnv(t)
	env.kokoro.genErr = fmt.Errorf("backend exploded with secrets")

	var body errorEnvelope
	resp := postJSON(t, env.server.URL+"/api/kokoro/generate",
		map[string]string{"text": "hi"}, &body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Detail != "Internal server error" {
		t.Errorf("detail = %q", body.Detail)
	}
}

func TestGenerateEnqueue(t *testing.T) {
	env := newTestEnv(t)

	var started map[string]string
	resp := postJSON(t, env.server.URL+"/api/qwen3/generate",
		map[string]any{"text": "hi", "enqueue": true, "mode": "custom", "speaker": "Ryan"}, &started)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if started["status"] != "started" || started["job_id"] == "" {
		t.Fatalf("enqueue reply = %v", started)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var rec job.Record
		getJSON(t, env.server.URL+"/api/jobs/"+started["job_id"], &rec)
		if rec.Status.Terminal() {
			if rec.Status != job.StatusCompleted {
				t.Fatalf("job ended %s: %s", rec.Status, rec.Error)
			}
			if rec.AudioURL == "" {
				t.Error("completed job has no audio_url")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerateEnqueueRejectsBadParamsEagerly(t *testing.T) {
	env := newTestEnv(t)

	var envelope map[string]string
	resp := postJSON(t, env.server.URL+"/api/qwen3/generate",
		map[string]any{"text": "", "enqueue": true, "mode": "custom", "speaker": "Ryan"}, &envelope)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope["error"] != "bad_request" {
		t.Errorf("error = %q, want bad_request", envelope["error"])
	}
	// The rejection happens before the job manager is involved.
	if jobs := env.jobs.List(0); len(jobs) != 0 {
		t.Errorf("job created despite invalid parameters: %v", jobs)
	}
}

func TestGenerateStream(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/api/qwen3/generate/stream",
		map[string]string{"text": "hi", "mode": "custom", "speaker": "Ryan"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Audio-Format"); got != "pcm_s16le" {
		t.Errorf("X-Audio-Format = %q", got)
	}
	if got := resp.Header.Get("X-Audio-Sample-Rate"); got != "24000" {
		t.Errorf("X-Audio-Sample-Rate = %q", got)
	}
}

func TestGenerateStreamBody(t *testing.T) {
	env := newTestEnv(t)

	buf, _ := json.Marshal(map[string]string{"text": "hi", "mode": "custom", "speaker": "Ryan"})
	resp, err := http.Post(env.server.URL+"/api/qwen3/generate/stream",
		"application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) == 0 || len(body)%2 != 0 {
		t.Errorf("body length = %d, want positive multiple of 2", len(body))
	}
	// 1000 samples at 2 bytes each.
	if len(body) != 2000 {
		t.Errorf("body length = %d, want 2000", len(body))
	}
}

func wavUpload(t *testing.T) []byte {
	t.Helper()
	data, err := audio.EncodeWAV(make([]float32, 24000), 24000)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func multipartVoice(t *testing.T, fields map[string]string, audioData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if audioData != nil {
		fw, err := mw.CreateFormFile("audio", "ref.wav")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(audioData)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestVoiceUploadAndReservedName(t *testing.T) {
	env := newTestEnv(t)

	// Seed a default voice the upload must not shadow.
	sharedDir := env.paths.SharedVoicesDir()
	if err := os.WriteFile(filepath.Join(sharedDir, "Natasha.wav"), wavUpload(t), 0o644); err != nil {
		t.Fatal(err)
	}

	body, ctype := multipartVoice(t, map[string]string{
		"name": "Natasha", "transcript": "hello there",
	}, wavUpload(t))
	resp, err := http.Post(env.server.URL+"/api/qwen3/voices", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "reserved") {
		t.Errorf("body = %s, want mention of reserved", raw)
	}

	// A non-reserved name succeeds and then lists.
	body, ctype = multipartVoice(t, map[string]string{
		"name": "Casper", "transcript": "hello there",
	}, wavUpload(t))
	resp2, err := http.Post(env.server.URL+"/api/qwen3/voices", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp2.StatusCode)
	}

	var list struct {
		Voices []voiceView `json:"voices"`
	}
	getJSON(t, env.server.URL+"/api/qwen3/voices", &list)
	found := false
	for _, v := range list.Voices {
		if v.Name == "Casper" && v.Source == "user" {
			found = true
		}
	}
	if !found {
		t.Errorf("uploaded voice missing from list: %+v", list.Voices)
	}
}

func TestDefaultVoiceDeleteRefused(t *testing.T) {
	env := newTestEnv(t)

	sharedDir := env.paths.SharedVoicesDir()
	if err := os.WriteFile(filepath.Join(sharedDir, "Stock.wav"), wavUpload(t), 0o644); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/qwen3/voices/Stock", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAudioDeleteGrammar(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{"..%2F..%2Fetc", "no-extension", "kokoro-x-zz.exe"} {
		req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/audio/"+name, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
			t.Errorf("DELETE %q status = %d, want 4xx reject", name, resp.StatusCode)
		}
	}
}

func TestOutputRetarget(t *testing.T) {
	env := newTestEnv(t)

	newDir := t.TempDir()
	var body map[string]any
	req, _ := http.NewRequest(http.MethodPut, env.server.URL+"/api/settings/output-folder",
		strings.NewReader(fmt.Sprintf(`{"path":%q}`, newDir)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if body["output_folder"] != newDir || body["changed"] != true {
		t.Fatalf("retarget reply = %v", body)
	}

	// A file created under the new directory serves through /audio.
	name := "kokoro-bf_emma-deadbeef.wav"
	if err := os.WriteFile(filepath.Join(newDir, name), wavUpload(t), 0o644); err != nil {
		t.Fatal(err)
	}
	audioResp, err := http.Get(env.server.URL + "/audio/" + name)
	if err != nil {
		t.Fatal(err)
	}
	audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Errorf("retargeted audio status = %d", audioResp.StatusCode)
	}
}

func TestJobsListLimitValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := getJSON(t, env.server.URL+"/api/jobs?limit=banana", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	var body struct {
		Jobs  []job.Record `json:"jobs"`
		Count int          `json:"count"`
	}
	resp = getJSON(t, env.server.URL+"/api/jobs?limit=5", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAudiobookLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	var rec job.Record
	resp := postJSON(t, env.server.URL+"/api/audiobook/generate",
		map[string]any{"text": "One sentence. Another sentence here.", "voice": "bf_emma"}, &rec)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if rec.ID == "" || rec.Kind != job.KindAudiobook {
		t.Fatalf("record = %+v", rec)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		var cur job.Record
		getJSON(t, env.server.URL+"/api/audiobook/status/"+rec.ID, &cur)
		if cur.Status.Terminal() {
			if cur.Status != job.StatusCompleted {
				t.Fatalf("audiobook ended %s: %s", cur.Status, cur.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("audiobook never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var listing struct {
		Count int `json:"count"`
	}
	getJSON(t, env.server.URL+"/api/audiobook/list", &listing)
	if listing.Count != 1 {
		t.Errorf("audiobook count = %d", listing.Count)
	}
}

func TestSampleTextsUnknownEngine(t *testing.T) {
	env := newTestEnv(t)

	resp := getJSON(t, env.server.URL+"/api/samples/nosuch", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPut, env.server.URL+"/api/settings",
		strings.NewReader(`{"theme":"dark"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	var body struct {
		Settings map[string]string `json:"settings"`
	}
	getJSON(t, env.server.URL+"/api/settings", &body)
	if body.Settings["theme"] != "dark" {
		t.Errorf("settings = %v", body.Settings)
	}

	var rec settings.Record
	getJSON(t, env.server.URL+"/api/settings/theme", &rec)
	if rec.Value != "dark" {
		t.Errorf("single setting = %+v", rec)
	}
}

func TestModelsStatusListsCatalog(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Models []modelStatus `json:"models"`
	}
	resp := getJSON(t, env.server.URL+"/api/models/status", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body.Models) != len(model.Catalog()) {
		t.Errorf("models = %d, want %d", len(body.Models), len(model.Catalog()))
	}
	for _, m := range body.Models {
		if m.Type == model.AcquireHuggingFace && m.Downloaded {
			t.Errorf("model %q reported downloaded with empty hub", m.Name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestKokoroVoiceCatalog(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Voices []struct {
			ID    string `json:"id"`
			Grade string `json:"grade"`
		} `json:"voices"`
		Default string `json:"default"`
	}
	getJSON(t, env.server.URL+"/api/kokoro/voices", &body)
	if body.Default != engine.KokoroDefaultVoice {
		t.Errorf("default = %q", body.Default)
	}
	if len(body.Voices) != len(engine.KokoroVoices) {
		t.Fatalf("voices = %d, want %d", len(body.Voices), len(engine.KokoroVoices))
	}
	// Best grade first.
	if body.Voices[0].ID != "af_heart" {
		t.Errorf("top voice = %q, want af_heart", body.Voices[0].ID)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
