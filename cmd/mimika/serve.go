package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mimikastudio/mimika/internal/config"
	"github.com/mimikastudio/mimika/internal/doc"
	"github.com/mimikastudio/mimika/internal/engine"
	"github.com/mimikastudio/mimika/internal/job"
	"github.com/mimikastudio/mimika/internal/model"
	"github.com/mimikastudio/mimika/internal/observe"
	"github.com/mimikastudio/mimika/internal/outputs"
	"github.com/mimikastudio/mimika/internal/paths"
	"github.com/mimikastudio/mimika/internal/sample"
	"github.com/mimikastudio/mimika/internal/server"
	"github.com/mimikastudio/mimika/internal/settings"
	"github.com/mimikastudio/mimika/internal/voice"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MimikaStudio HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, slog.Default())
		},
	}

	defaults := config.DefaultConfig()
	config.RegisterFlags(cmd.Flags(), defaults)

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownMetrics, err := observe.InitProvider(ctx, "mimikastudio", version)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()
	metrics := observe.DefaultMetrics()

	p := &paths.Service{}

	st, err := settings.Open(settings.Options{Dir: p.SettingsDir()})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := sample.SeedPregenerated(st); err != nil {
		logger.Warn("seeding pregenerated samples failed", "error", err)
	}

	voices, err := voice.NewStore(p.SharedVoicesDir(), p.UserVoicesDir())
	if err != nil {
		return err
	}
	if err := voices.MigrateLegacy(
		filepath.Join(p.SamplesRootDir(), "qwen3", "voices"),
		filepath.Join(p.SamplesRootDir(), "chatterbox", "voices"),
	); err != nil {
		logger.Warn("migrating legacy voice folders failed", "error", err)
	}

	registry := model.NewRegistry(p.HubCacheDir())
	downloads := model.NewManager(registry, &model.HubFetcher{Token: cfg.Models.HFToken}, logger)
	dicta := model.NewDicta(p.DictaModelPath(), "", logger)

	out := outputs.NewStore(p, st, logger)

	if cfg.Engines.ORTLibraryPath != "" {
		_ = os.Setenv("ORT_LIBRARY_PATH", cfg.Engines.ORTLibraryPath)
	}

	engines := engine.NewRegistry()
	kokoro := engine.NewKokoro(registry, out.Dir, kokoroFactory)
	engines.Register(kokoro)
	engines.Register(engine.NewQwen3(registry, voices, out.Dir, qwen3Factory))
	engines.Register(engine.NewChatterbox(registry, voices, dicta, out.Dir, chatterboxFactory))
	engines.Register(engine.NewSupertonic(registry, out.Dir, nil))
	engines.Register(engine.NewCosyVoice3(registry, voices, out.Dir, engine.CosyVoiceConfig{
		Python:  cfg.Engines.CosyVoicePython,
		Timeout: time.Duration(cfg.Engines.CosyVoiceTimeout) * time.Second,
	}))
	engines.Register(engine.NewIndexTTS2(voices, out.Dir, nil))
	defer engines.UnloadAll()

	jobs := job.NewManager(logger, observe.NewJobMetrics(metrics))

	var encoder job.Encoder
	if path, lookErr := exec.LookPath(cfg.Engines.FFmpegPath); lookErr == nil {
		enc := job.NewFFmpegEncoder()
		enc.Binary = path
		encoder = enc
	} else {
		logger.Warn("ffmpeg not found, audiobook output limited to wav",
			"binary", cfg.Engines.FFmpegPath)
	}
	books := job.NewAudiobookRunner(jobs, kokoro, out.Dir, encoder, logger)

	srv := server.New(server.Deps{
		Config:     cfg,
		Logger:     logger,
		Version:    version,
		Engines:    engines,
		Voices:     voices,
		Models:     registry,
		Downloads:  downloads,
		Dicta:      dicta,
		Jobs:       jobs,
		Audiobooks: books,
		Outputs:    out,
		Settings:   st,
		Paths:      p,
		Docs:       doc.NewSet(),
		Metrics:    metrics,
	})

	return srv.Start(ctx)
}

// The MLX-based synthesis cores ship as a separate runtime. Until one is
// installed the adapters answer with an install hint.
var errMLXRuntime = errors.New("MLX runtime is not installed")

func kokoroFactory(string) (engine.KokoroCore, error) {
	return nil, errMLXRuntime
}

func qwen3Factory(string, string) (engine.Qwen3Core, error) {
	return nil, errMLXRuntime
}

func chatterboxFactory(string) (engine.ChatterboxCore, error) {
	return nil, errMLXRuntime
}
