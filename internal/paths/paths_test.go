package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func testService(t *testing.T, env map[string]string) *Service {
	t.Helper()
	home := t.TempDir()
	return &Service{
		Getenv: func(name string) string { return env[name] },
		Home:   func() (string, error) { return home, nil },
	}
}

func TestRuntimeHomeDefault(t *testing.T) {
	svc := testService(t, nil)

	got := svc.RuntimeHome()
	if filepath.Base(got) != "MimikaStudio" {
		t.Errorf("RuntimeHome = %q, want a MimikaStudio dir", got)
	}
	if !dirExists(t, got) {
		t.Errorf("RuntimeHome %q was not created", got)
	}
}

func TestRuntimeHomeEnvOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "custom-home")
	svc := testService(t, map[string]string{EnvRuntimeHome: override})

	if got := svc.RuntimeHome(); got != override {
		t.Errorf("RuntimeHome = %q, want %q", got, override)
	}
}

func TestRuntimeHomeTildeExpansion(t *testing.T) {
	svc := testService(t, map[string]string{EnvRuntimeHome: "~/studio"})

	got := svc.RuntimeHome()
	if filepath.Base(got) != "studio" {
		t.Errorf("RuntimeHome = %q, want expanded ~/studio", got)
	}
	if filepath.IsAbs(got) == false {
		t.Errorf("RuntimeHome = %q, want absolute path", got)
	}
}

func TestDerivedDirsLiveUnderHome(t *testing.T) {
	svc := testService(t, nil)
	home := svc.RuntimeHome()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"data", svc.DataDir(), filepath.Join(home, "data")},
		{"outputs", svc.OutputDir(), filepath.Join(home, "outputs")},
		{"logs", svc.LogDir(), filepath.Join(home, "logs")},
		{"pdfs", svc.PDFDir(), filepath.Join(home, "pdfs")},
		{"user voices", svc.UserVoicesDir(), filepath.Join(home, "data", "user_voices", "cloners")},
		{"shared voices", svc.SharedVoicesDir(), filepath.Join(home, "data", "samples", "voices")},
		{"settings", svc.SettingsDir(), filepath.Join(home, "data", "settings")},
		{"models", svc.ModelsDir(), filepath.Join(home, "data", "models")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
			if !dirExists(t, tt.got) {
				t.Errorf("%q was not created", tt.got)
			}
		})
	}
}

func TestOutputDirOverridden(t *testing.T) {
	svc := testService(t, nil)
	if svc.OutputDirOverridden() {
		t.Error("OutputDirOverridden = true without env override")
	}

	override := t.TempDir()
	svc = testService(t, map[string]string{EnvOutputDir: override})
	if !svc.OutputDirOverridden() {
		t.Error("OutputDirOverridden = false with env override")
	}
	if got := svc.OutputDir(); got != override {
		t.Errorf("OutputDir = %q, want %q", got, override)
	}
}

func TestFallbackWhenPrimaryUnwritable(t *testing.T) {
	got := ensureDirWithFallback("/proc/nonexistent/blocked", filepath.Join(t.TempDir(), "fb"))
	if filepath.Base(got) != "fb" {
		t.Errorf("got %q, want the fallback dir", got)
	}
}

func dirExists(t *testing.T, dir string) bool {
	t.Helper()
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
