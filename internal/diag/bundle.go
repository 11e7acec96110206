package diag

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CreateBundle writes a diagnostics zip holding the system snapshot,
// resource stats and every log file under logDir. The file lands in the
// system temp directory; the caller removes it with cleanup once the
// response is sent.
func CreateBundle(ctx context.Context, version, logDir string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "mimika-diagnostics-*.zip")
	if err != nil {
		return "", nil, fmt.Errorf("creating bundle: %w", err)
	}
	name := f.Name()
	cleanup = func() { os.Remove(name) }

	if err := writeBundle(ctx, f, version, logDir); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing bundle: %w", err)
	}
	return name, cleanup, nil
}

func writeBundle(ctx context.Context, w io.Writer, version, logDir string) error {
	zw := zip.NewWriter(w)

	writeJSON := func(name string, v any) error {
		entry, err := zw.Create(name)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(entry)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	if err := writeJSON("system_info.json", Info(ctx, version)); err != nil {
		return fmt.Errorf("bundling system info: %w", err)
	}

	stats, err := Stats(ctx)
	if err == nil {
		if err := writeJSON("system_stats.json", stats); err != nil {
			return fmt.Errorf("bundling stats: %w", err)
		}
	}

	if err := writeJSON("bundle_meta.json", map[string]string{
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"service":    "mimikastudio",
	}); err != nil {
		return fmt.Errorf("bundling metadata: %w", err)
	}

	matches, _ := filepath.Glob(filepath.Join(logDir, "*.log"))
	for _, logPath := range matches {
		src, err := os.Open(logPath)
		if err != nil {
			continue
		}
		entry, err := zw.Create("logs/" + filepath.Base(logPath))
		if err != nil {
			src.Close()
			return fmt.Errorf("bundling %s: %w", filepath.Base(logPath), err)
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			return fmt.Errorf("bundling %s: %w", filepath.Base(logPath), err)
		}
		src.Close()
	}

	return zw.Close()
}
