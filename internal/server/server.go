// Package server is the HTTP gateway. It owns routing, the middleware chain
// and the mapping from error kinds to status codes; everything below it is
// transport-agnostic.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mimikastudio/mimika/internal/config"
	"github.com/mimikastudio/mimika/internal/doc"
	"github.com/mimikastudio/mimika/internal/engine"
	"github.com/mimikastudio/mimika/internal/job"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/observe"
	"github.com/mimikastudio/mimika/internal/outputs"
	"github.com/mimikastudio/mimika/internal/paths"
	"github.com/mimikastudio/mimika/internal/settings"
	"github.com/mimikastudio/mimika/internal/voice"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Deps carries every collaborator the gateway routes to. Tests populate only
// what the exercised endpoints need.
type Deps struct {
	Config  config.Config
	Logger  *slog.Logger
	Version string

	Engines    *engine.Registry
	Voices     *voice.Store
	Models     *model.Registry
	Downloads  *model.Manager
	Dicta      *model.Dicta
	Jobs       *job.Manager
	Audiobooks *job.AudiobookRunner
	Outputs    *outputs.Store
	Settings   *settings.Store
	Paths      *paths.Service
	Docs       *doc.Set
	Metrics    *observe.Metrics
}

// Server wires the handlers into a net/http.Server with graceful shutdown.
type Server struct {
	deps Deps
	log  *slog.Logger
}

// New builds the gateway.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps, log: deps.Logger}
}

// Router builds the full route table with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(s.log))
	r.Use(corsMiddleware(s.deps.Config.Server.CORSOrigins))
	r.Use(accessLogMiddleware(s.log, s.deps.Metrics))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/system/info", s.handleSystemInfo).Methods(http.MethodGet)
	api.HandleFunc("/system/stats", s.handleSystemStats).Methods(http.MethodGet)
	api.HandleFunc("/system/folders", s.handleSystemFolders).Methods(http.MethodGet)
	api.HandleFunc("/system/logs", s.handleSystemLogs).Methods(http.MethodGet)
	api.HandleFunc("/system/diagnostics/export", s.handleDiagnosticsExport).Methods(http.MethodGet)

	api.HandleFunc("/voices/custom", s.handleCustomVoices).Methods(http.MethodGet)

	api.HandleFunc("/models/status", s.handleModelsStatus).Methods(http.MethodGet)
	api.HandleFunc("/models/{name}/download", s.handleModelDownload).Methods(http.MethodPost)
	api.HandleFunc("/models/{name}", s.handleModelDelete).Methods(http.MethodDelete)

	api.HandleFunc("/chatterbox/dicta/status", s.handleDictaStatus).Methods(http.MethodGet)
	api.HandleFunc("/chatterbox/dicta/download", s.handleDictaDownload).Methods(http.MethodPost)
	api.HandleFunc("/chatterbox/languages", s.handleChatterboxLanguages).Methods(http.MethodGet)
	api.HandleFunc("/qwen3/speakers", s.handleQwen3Speakers).Methods(http.MethodGet)
	api.HandleFunc("/qwen3/models", s.handleQwen3Models).Methods(http.MethodGet)
	api.HandleFunc("/qwen3/generate/stream", s.handleGenerateStream).Methods(http.MethodPost)

	api.HandleFunc("/audiobook/generate", s.handleAudiobookGenerate).Methods(http.MethodPost)
	api.HandleFunc("/audiobook/generate-from-file", s.handleAudiobookFromFile).Methods(http.MethodPost)
	api.HandleFunc("/audiobook/status/{id}", s.handleAudiobookStatus).Methods(http.MethodGet)
	api.HandleFunc("/audiobook/cancel/{id}", s.handleAudiobookCancel).Methods(http.MethodPost)
	api.HandleFunc("/audiobook/list", s.handleAudiobookList).Methods(http.MethodGet)
	api.HandleFunc("/audiobook/{id}", s.handleAudiobookDelete).Methods(http.MethodDelete)

	api.HandleFunc("/jobs", s.handleJobsList).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleJobGet).Methods(http.MethodGet)

	api.HandleFunc("/pregenerated", s.handlePregenerated).Methods(http.MethodGet)
	api.HandleFunc("/samples/{engine}", s.handleSampleTexts).Methods(http.MethodGet)
	api.HandleFunc("/voice-samples", s.handleVoiceSamples).Methods(http.MethodGet)

	api.HandleFunc("/pdf/list", s.handlePDFList).Methods(http.MethodGet)
	api.HandleFunc("/pdf/extract-text", s.handlePDFExtract).Methods(http.MethodPost)

	api.HandleFunc("/settings", s.handleSettingsGet).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettingsPut).Methods(http.MethodPut)
	api.HandleFunc("/settings/output-folder", s.handleOutputFolderGet).Methods(http.MethodGet)
	api.HandleFunc("/settings/output-folder", s.handleOutputFolderPut).Methods(http.MethodPut)
	api.HandleFunc("/settings/{key}", s.handleSettingGet).Methods(http.MethodGet)
	api.HandleFunc("/settings/{key}", s.handleSettingPut).Methods(http.MethodPut)
	api.HandleFunc("/settings/{key}", s.handleSettingDelete).Methods(http.MethodDelete)

	// Generated-audio library views, one per frontend tab.
	api.HandleFunc("/tts/audio/list", s.audioList("")).Methods(http.MethodGet)
	api.HandleFunc("/tts/audio/{filename}", s.audioDelete(nil)).Methods(http.MethodDelete)
	api.HandleFunc("/kokoro/audio/list", s.audioList("kokoro")).Methods(http.MethodGet)
	api.HandleFunc("/kokoro/audio/{filename}", s.audioDelete([]string{"kokoro"})).Methods(http.MethodDelete)
	api.HandleFunc("/voice-clone/audio/list", s.audioListMulti(cloneEnginePrefixes)).Methods(http.MethodGet)
	api.HandleFunc("/voice-clone/audio/{filename}", s.audioDelete(cloneEnginePrefixes)).Methods(http.MethodDelete)

	// Per-engine routes resolved through the adapter registry.
	api.HandleFunc("/{engine}/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/{engine}/clear-cache", s.handleClearCache).Methods(http.MethodPost)
	api.HandleFunc("/{engine}/info", s.handleEngineInfo).Methods(http.MethodGet)
	api.HandleFunc("/{engine}/voices", s.handleVoicesList).Methods(http.MethodGet)
	api.HandleFunc("/{engine}/voices", s.handleVoiceUpload).Methods(http.MethodPost)
	api.HandleFunc("/{engine}/voices/{name}", s.handleVoiceGet).Methods(http.MethodGet)
	api.HandleFunc("/{engine}/voices/{name}", s.handleVoiceUpdate).Methods(http.MethodPut)
	api.HandleFunc("/{engine}/voices/{name}", s.handleVoiceDelete).Methods(http.MethodDelete)
	api.HandleFunc("/{engine}/voices/{name}/audio", s.handleVoiceAudio).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Generated audio resolves through the output store on every request so
	// a runtime retarget is visible without a restart.
	r.HandleFunc("/audio/{name}", s.handleAudioGet).Methods(http.MethodGet)
	r.HandleFunc("/audio/{name}", s.handleAudioDelete).Methods(http.MethodDelete)

	if p := s.deps.Paths; p != nil {
		r.PathPrefix("/pregenerated/").Handler(
			http.StripPrefix("/pregenerated/", http.FileServer(http.Dir(p.PregenDir()))))
		r.PathPrefix("/samples/").Handler(
			http.StripPrefix("/samples/", http.FileServer(http.Dir(p.SamplesRootDir()))))
		r.PathPrefix("/pdf/").Handler(
			http.StripPrefix("/pdf/", http.FileServer(http.Dir(p.PDFDir()))))
	}

	return r
}

// Start runs the server until ctx is cancelled, then drains within the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.deps.Config.Server.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		timeout := time.Duration(s.deps.Config.Server.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks a running instance's health endpoint.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/api/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
