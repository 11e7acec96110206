package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// weightExts are the file extensions that count as model weights when
// probing snapshot readiness.
var weightExts = map[string]bool{
	".safetensors": true,
	".bin":         true,
	".gguf":        true,
	".onnx":        true,
}

// Registry resolves catalog entries against a local hub cache directory.
type Registry struct {
	hubRoot string
}

// NewRegistry builds a registry over the given hub cache root.
func NewRegistry(hubRoot string) *Registry {
	return &Registry{hubRoot: hubRoot}
}

// HubRoot returns the cache root the registry probes.
func (r *Registry) HubRoot() string { return r.hubRoot }

// CacheDir returns the cache directory for a catalog entry.
func (r *Registry) CacheDir(m Info) string {
	return CacheDir(r.hubRoot, m.Repo)
}

// IsDownloaded reports whether a usable snapshot exists for m. Pip-acquired
// models are never reported as downloaded.
func (r *Registry) IsDownloaded(m Info) bool {
	_, err := r.SnapshotPath(m)
	return err == nil
}

// SnapshotPath returns the newest snapshot directory for m that contains at
// least one weight file. Readiness is recomputed on every call so a download
// finishing in the background is picked up without restarts.
func (r *Registry) SnapshotPath(m Info) (string, error) {
	if m.Type != AcquireHuggingFace || m.Repo == "" {
		return "", apperr.New(apperr.BadRequest, "model %q has no downloadable repo", m.Name)
	}

	snapshotsDir := filepath.Join(r.CacheDir(m), "snapshots")
	entries, err := os.ReadDir(snapshotsDir)
	if err != nil {
		return "", r.notDownloaded(m)
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(snapshotsDir, e.Name())
		if !hasWeightFile(dir) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = dir
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", r.notDownloaded(m)
	}
	return best, nil
}

// EnsureReady resolves name to a ready snapshot path. A model without a
// usable snapshot fails with a Conflict naming the expected cache directory.
func (r *Registry) EnsureReady(name string) (string, error) {
	m, ok := Lookup(name)
	if !ok {
		return "", apperr.New(apperr.NotFound, "model %q not found", name)
	}
	return r.SnapshotPath(m)
}

func (r *Registry) notDownloaded(m Info) error {
	return apperr.New(apperr.Conflict,
		"model %q is not downloaded; expected weights under %s", m.Name, r.CacheDir(m))
}

// hasWeightFile walks one snapshot directory looking for a recognized
// weight extension.
func hasWeightFile(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if weightExts[filepath.Ext(d.Name())] {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
