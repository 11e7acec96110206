package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/engine"
	"github.com/mimikastudio/mimika/internal/job"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/stream"
)

// cloneEnginePrefixes are the artifact prefixes shown on the voice-clone
// library tab.
var cloneEnginePrefixes = []string{"qwen3", "chatterbox", "indextts2", "cosyvoice3"}

// modelResolver is implemented by adapters whose model choice depends on
// request parameters; enqueued requests verify readiness eagerly through it.
type modelResolver interface {
	ModelName(p engine.Params) (string, error)
}

// paramValidator is implemented by adapters that can reject bad request
// parameters without synthesizing.
type paramValidator interface {
	Validate(p engine.Params) error
}

func (s *Server) adapter(w http.ResponseWriter, r *http.Request) (engine.Adapter, bool) {
	name := mux.Vars(r)["engine"]
	a, err := s.deps.Engines.Get(name)
	if err != nil {
		writeError(w, r, s.log, err)
		return nil, false
	}
	return a, true
}

// generateResponse is the synchronous generation reply.
type generateResponse struct {
	AudioURL    string  `json:"audio_url"`
	Filename    string  `json:"filename"`
	DurationSec float64 `json:"duration_seconds"`
	SampleRate  int     `json:"sample_rate"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}

	var p engine.Params
	if !decodeJSON(w, r, &p) {
		return
	}

	if p.Enqueue {
		s.enqueueGenerate(w, r, a, p)
		return
	}

	start := time.Now()
	res, err := a.Generate(r.Context(), p)
	if s.deps.Metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.deps.Metrics.RecordGeneration(r.Context(), a.Engine(), status, time.Since(start).Seconds())
	}
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if p.UnloadAfter {
		a.Unload()
	}

	writeJSON(w, http.StatusOK, generateResponse{
		AudioURL:    "/audio/" + res.Filename,
		Filename:    res.Filename,
		DurationSec: res.DurationSec,
		SampleRate:  res.SampleRate,
	})
}

// enqueueGenerate validates parameters and model readiness up front, exactly
// like the synchronous path, then hands the work to a background job so the
// caller can poll /api/jobs/{id}.
func (s *Server) enqueueGenerate(w http.ResponseWriter, r *http.Request, a engine.Adapter, p engine.Params) {
	if v, ok := a.(paramValidator); ok {
		if err := v.Validate(p); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	if resolver, ok := a.(modelResolver); ok && s.deps.Models != nil {
		name, err := resolver.ModelName(p)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		if _, err := s.deps.Models.EnsureReady(name); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}

	kind := job.KindTTS
	if p.Mode == "clone" {
		kind = job.KindVoiceClone
	}
	rec := job.Record{
		Kind:      kind,
		Engine:    a.Engine(),
		Mode:      p.Mode,
		CharCount: len(p.Text),
		Voice:     p.VoiceName,
		Speaker:   p.Speaker,
		Language:  p.Language,
		Model:     p.Model,
		RequestID: requestIDFrom(r.Context()),
	}
	id := s.deps.Jobs.Enqueue(rec, func(ctx context.Context) (engine.Result, error) {
		res, err := a.Generate(ctx, p)
		if err == nil && p.UnloadAfter {
			a.Unload()
		}
		return res, err
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": id,
		"status": string(job.StatusStarted),
	})
}

func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Engines.Get("qwen3")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	streamer, ok := a.(engine.Streamer)
	if !ok {
		writeError(w, r, s.log, apperr.New(apperr.Unavailable, "engine %q cannot stream", a.Engine()))
		return
	}

	var p engine.Params
	if !decodeJSON(w, r, &p) {
		return
	}

	src, err := streamer.Stream(r.Context(), p)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	frames, err := stream.Serve(r.Context(), w, src, p.Speed, s.log)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordStreamedFrames(r.Context(), int64(frames))
	}
	if err != nil {
		// No frame was delivered yet, so the error envelope still fits.
		writeError(w, r, s.log, err)
	}
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	a.Unload()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine": a.Engine()})
}

func (s *Server) handleEngineInfo(w http.ResponseWriter, r *http.Request) {
	a, ok := s.adapter(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Info())
}

// languageLister is implemented by adapters with a dynamic language set.
type languageLister interface {
	Languages() []string
}

func (s *Server) handleChatterboxLanguages(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Engines.Get("chatterbox")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	langs := []string{"en", "he"}
	if lister, ok := a.(languageLister); ok {
		langs = lister.Languages()
	}
	writeJSON(w, http.StatusOK, map[string]any{"languages": langs})
}

func (s *Server) handleQwen3Speakers(w http.ResponseWriter, r *http.Request) {
	type speaker struct {
		Name        string `json:"name"`
		Language    string `json:"language"`
		Description string `json:"description"`
	}
	out := make([]speaker, 0, len(model.QwenSpeakers))
	for _, name := range model.QwenSpeakers {
		info := model.QwenSpeakerInfo[name]
		out = append(out, speaker{Name: name, Language: info.Language, Description: info.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"speakers": out})
}

func (s *Server) handleQwen3Models(w http.ResponseWriter, r *http.Request) {
	entries := model.ByEngine("qwen3")
	out := make([]map[string]any, 0, len(entries))
	for _, m := range entries {
		out = append(out, map[string]any{
			"name":         m.Name,
			"mode":         m.Mode,
			"quantization": m.Quantization,
			"size_gb":      m.SizeGB,
			"downloaded":   s.deps.Models.IsDownloaded(m),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}
