// Package paths resolves the writable directories the service uses for
// runtime data, generated audio and user voices. Every resolver prefers an
// environment override, then a home-relative default, and falls back to a
// /tmp location when the preferred directory cannot be created.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables honored by the resolvers.
const (
	EnvRuntimeHome = "MIMIKA_RUNTIME_HOME"
	EnvDataDir     = "MIMIKA_DATA_DIR"
	EnvOutputDir   = "MIMIKA_OUTPUT_DIR"
	EnvLogDir      = "MIMIKA_LOG_DIR"
	EnvPDFDir      = "MIMIKA_PDF_DIR"
)

// Service resolves runtime directories. A zero value uses the process
// environment and the current user's home directory.
type Service struct {
	// Getenv defaults to os.Getenv; tests point it at a map.
	Getenv func(string) string
	// Home defaults to os.UserHomeDir.
	Home func() (string, error)
}

func (s *Service) getenv(name string) string {
	if s.Getenv != nil {
		return strings.TrimSpace(s.Getenv(name))
	}
	return strings.TrimSpace(os.Getenv(name))
}

func (s *Service) home() string {
	homeFn := os.UserHomeDir
	if s.Home != nil {
		homeFn = s.Home
	}
	h, err := homeFn()
	if err != nil || h == "" {
		return "/tmp"
	}
	return h
}

// envPath reads an environment override, expanding a leading ~.
func (s *Service) envPath(name string) string {
	raw := s.getenv(name)
	if raw == "" {
		return ""
	}
	if raw == "~" {
		return s.home()
	}
	if strings.HasPrefix(raw, "~/") {
		return filepath.Join(s.home(), raw[2:])
	}
	return raw
}

// ensureDirWithFallback creates primary, returning fallback (created) when
// primary cannot be made writable.
func ensureDirWithFallback(primary, fallback string) string {
	if err := os.MkdirAll(primary, 0o755); err == nil {
		return primary
	}
	_ = os.MkdirAll(fallback, 0o755)
	return fallback
}

// RuntimeHome returns the root directory for all service state,
// ~/MimikaStudio by default.
func (s *Service) RuntimeHome() string {
	primary := s.envPath(EnvRuntimeHome)
	if primary == "" {
		primary = filepath.Join(s.home(), "MimikaStudio")
	}
	return ensureDirWithFallback(primary, "/tmp/mimikastudio")
}

// DataDir returns the directory holding voice pools and engine state.
func (s *Service) DataDir() string {
	home := s.RuntimeHome()
	primary := s.envPath(EnvDataDir)
	if primary == "" {
		primary = filepath.Join(home, "data")
	}
	return ensureDirWithFallback(primary, filepath.Join(home, "data"))
}

// OutputDir returns the default directory for generated audio. The output
// store may override this at runtime via settings.
func (s *Service) OutputDir() string {
	home := s.RuntimeHome()
	primary := s.envPath(EnvOutputDir)
	if primary == "" {
		primary = filepath.Join(home, "outputs")
	}
	return ensureDirWithFallback(primary, "/tmp/mimikastudio-outputs")
}

// OutputDirOverridden reports whether the output directory is pinned by the
// environment, which blocks runtime retargeting.
func (s *Service) OutputDirOverridden() bool {
	return s.envPath(EnvOutputDir) != ""
}

// LogDir returns the directory for service log files.
func (s *Service) LogDir() string {
	home := s.RuntimeHome()
	primary := s.envPath(EnvLogDir)
	if primary == "" {
		primary = filepath.Join(home, "logs")
	}
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/logs")
}

// PDFDir returns the directory where uploaded documents are staged for
// extraction.
func (s *Service) PDFDir() string {
	home := s.RuntimeHome()
	primary := s.envPath(EnvPDFDir)
	if primary == "" {
		primary = filepath.Join(home, "pdfs")
	}
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/pdfs")
}

// UserVoicesDir returns the pool for user-uploaded cloning voices.
func (s *Service) UserVoicesDir() string {
	primary := filepath.Join(s.DataDir(), "user_voices", "cloners")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/user_voices/cloners")
}

// SharedVoicesDir returns the pool for bundled default voices.
func (s *Service) SharedVoicesDir() string {
	primary := filepath.Join(s.DataDir(), "samples", "voices")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/samples/voices")
}

// SamplesRootDir returns the static root for bundled sample audio.
func (s *Service) SamplesRootDir() string {
	primary := filepath.Join(s.DataDir(), "samples")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/samples")
}

// PregenDir returns the directory of pregenerated showcase audio.
func (s *Service) PregenDir() string {
	primary := filepath.Join(s.DataDir(), "pregenerated")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/pregenerated")
}

// SettingsDir returns the directory backing the settings store.
func (s *Service) SettingsDir() string {
	primary := filepath.Join(s.DataDir(), "settings")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/settings")
}

// ModelsDir returns the directory for standalone model files such as the
// dicta phonemizer.
func (s *Service) ModelsDir() string {
	primary := filepath.Join(s.DataDir(), "models")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/data/models")
}

// DictaModelPath returns the on-disk location of the dicta ONNX model.
func (s *Service) DictaModelPath() string {
	dir := ensureDirWithFallback(
		filepath.Join(s.ModelsDir(), "dicta-onnx"),
		"/tmp/mimikastudio/data/models/dicta-onnx",
	)
	return filepath.Join(dir, "dicta-1.0.onnx")
}

// HubCacheDir returns the Hugging Face style hub cache holding downloaded
// model snapshots.
func (s *Service) HubCacheDir() string {
	primary := filepath.Join(s.home(), ".cache", "huggingface", "hub")
	return ensureDirWithFallback(primary, "/tmp/mimikastudio/hub")
}
