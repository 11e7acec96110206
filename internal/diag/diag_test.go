package diag

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInfoShape(t *testing.T) {
	info := Info(context.Background(), "1.2.3")

	if info.Service != "mimikastudio" || info.Version != "1.2.3" {
		t.Errorf("identity = %s/%s", info.Service, info.Version)
	}
	if info.OS == "" || info.Arch == "" || info.GoVersion == "" {
		t.Errorf("platform fields missing: %+v", info)
	}
	if info.NumCPU < 1 {
		t.Errorf("num_cpu = %d", info.NumCPU)
	}
	// The probe must degrade instead of failing, whatever the host.
	if info.Device.Type == "" {
		t.Error("device type empty")
	}
}

func TestDetectDeviceNeverEmpty(t *testing.T) {
	d := detectDevice()
	if d.Type == "" || !d.Available {
		t.Errorf("detectDevice = %+v", d)
	}
}

func TestStats(t *testing.T) {
	stats, err := Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RAMTotalGB <= 0 {
		t.Errorf("ram_total_gb = %v", stats.RAMTotalGB)
	}
	if stats.RAMPercent < 0 || stats.RAMPercent > 100 {
		t.Errorf("ram_percent = %v", stats.RAMPercent)
	}
	if stats.Goroutines < 1 {
		t.Errorf("goroutines = %d", stats.Goroutines)
	}
}

func TestTailLogs(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "old.log")
	if err := os.WriteFile(older, []byte("old line 1\nold line 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	oldTime := time.Now().Add(-time.Hour)
	os.Chtimes(older, oldTime, oldTime)

	newer := filepath.Join(dir, "new.log")
	if err := os.WriteFile(newer, []byte("new line 1\n\nnew line 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not a log\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines := TailLogs(dir, 100)
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4 (blank dropped, txt ignored)", len(lines))
	}
	// Newest file first.
	if lines[0].Source != "new.log" {
		t.Errorf("first source = %q", lines[0].Source)
	}
	for _, l := range lines {
		if l.Source == "ignored.txt" {
			t.Error("non-log file included")
		}
	}

	// The cap applies across sources.
	capped := TailLogs(dir, 3)
	if len(capped) != 3 {
		t.Errorf("capped lines = %d, want 3", len(capped))
	}
}

func TestTailLogsEmptyDir(t *testing.T) {
	if lines := TailLogs(t.TempDir(), 10); len(lines) != 0 {
		t.Errorf("lines = %v, want none", lines)
	}
}

func TestCreateBundle(t *testing.T) {
	logDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(logDir, "server.log"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, cleanup, err := CreateBundle(context.Background(), "1.0.0", logDir)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening bundle: %v", err)
	}

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["system_info.json"] || !names["logs/server.log"] {
		t.Errorf("bundle entries = %v", names)
	}

	for _, f := range zr.File {
		if f.Name != "system_info.json" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		var info SystemInfo
		if err := json.NewDecoder(rc).Decode(&info); err != nil {
			t.Fatalf("decoding system info: %v", err)
		}
		rc.Close()
		if info.Version != "1.0.0" {
			t.Errorf("bundled version = %q", info.Version)
		}
	}
	zr.Close()

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("bundle survived cleanup")
	}

	if !strings.HasSuffix(path, ".zip") {
		t.Errorf("bundle path = %q", path)
	}
}
