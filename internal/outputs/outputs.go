// Package outputs manages the directory that generated audio lands in. The
// effective directory is resolved once at startup and can be retargeted at
// runtime; the static file server reads it through Dir on every request, so
// a swap needs no restart.
package outputs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/paths"
	"github.com/mimikastudio/mimika/internal/settings"
)

// artifactRe is the filename grammar every deletable artifact must match.
var artifactRe = regexp.MustCompile(`^[a-z0-9]+-[A-Za-z0-9_-]+-[0-9a-f]{8}\.(wav|mp3|m4b)$`)

// audiobookRe matches the audiobook naming convention, which carries a job
// id instead of a label.
var audiobookRe = regexp.MustCompile(`^audiobook-[0-9a-f]{12}\.(wav|mp3|m4b|srt|vtt)$`)

var jobIDRe = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Artifact describes one generated file for the listing endpoints.
type Artifact struct {
	Filename    string    `json:"filename"`
	URL         string    `json:"audio_url"`
	Format      string    `json:"format"`
	SizeMB      float64   `json:"size_mb"`
	DurationSec float64   `json:"duration_seconds"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store owns the active output directory.
type Store struct {
	settings *settings.Store
	logger   *slog.Logger
	pinned   bool

	mu  sync.RWMutex
	dir string
}

// NewStore resolves the effective directory with the startup precedence:
// environment override, persisted setting, home default, /tmp fallback.
func NewStore(p *paths.Service, st *settings.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{settings: st, logger: logger}

	if p.OutputDirOverridden() {
		s.pinned = true
		s.dir = p.OutputDir()
		return s
	}

	if st != nil {
		if rec, err := st.Get(settings.OutputFolderKey); err == nil {
			saved := strings.TrimSpace(rec.Value)
			if saved != "" {
				if err := os.MkdirAll(saved, 0o755); err == nil {
					s.dir = saved
					return s
				}
				logger.Warn("saved output folder is not writable, using default",
					"path", saved)
			}
		}
	}

	s.dir = p.OutputDir()
	return s
}

// Dir returns the active output directory.
func (s *Store) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// Pinned reports whether the environment override blocks retargeting.
func (s *Store) Pinned() bool { return s.pinned }

// SetDir retargets the output directory at runtime and persists the choice.
// With the environment override active the change is refused and the
// effective path returned unchanged.
func (s *Store) SetDir(path string) (effective string, changed bool, err error) {
	if s.pinned {
		return s.Dir(), false, nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return "", false, apperr.New(apperr.BadRequest, "output folder cannot be empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", false, apperr.Wrap(apperr.BadRequest, err, "cannot create output folder %q", path)
	}

	s.mu.Lock()
	s.dir = path
	s.mu.Unlock()

	if s.settings != nil {
		if _, err := s.settings.Set(settings.OutputFolderKey, path); err != nil {
			s.logger.Warn("persisting output folder failed", "error", err)
		}
	}
	s.logger.Info("output folder retargeted", "path", path)
	return path, true, nil
}

// Resolve maps a bare filename onto the active directory, rejecting
// anything that could escape it.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", apperr.New(apperr.BadRequest, "invalid filename %q", name)
	}
	return filepath.Join(s.Dir(), name), nil
}

// List enumerates artifacts whose name starts with prefix ("kokoro",
// "audiobook", ...), newest first. An empty prefix lists every artifact.
func (s *Store) List(prefix string) ([]Artifact, error) {
	dir := s.Dir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "reading output directory")
	}

	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !artifactRe.MatchString(name) && !audiobookRe.MatchString(name) {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Artifact{
			Filename:    name,
			URL:         "/audio/" + name,
			Format:      strings.TrimPrefix(filepath.Ext(name), "."),
			SizeMB:      float64(info.Size()) / (1024 * 1024),
			DurationSec: wavDuration(filepath.Join(dir, name)),
			CreatedAt:   info.ModTime().UTC(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

// Delete removes one artifact. name must match the artifact grammar and,
// when enginePrefix is non-empty, belong to that engine.
func (s *Store) Delete(name, enginePrefix string) error {
	if !artifactRe.MatchString(name) && !audiobookRe.MatchString(name) {
		return apperr.New(apperr.BadRequest, "invalid filename %q", name)
	}
	if enginePrefix != "" && !strings.HasPrefix(name, enginePrefix+"-") {
		return apperr.New(apperr.BadRequest, "filename %q does not belong to %s", name, enginePrefix)
	}

	path := filepath.Join(s.Dir(), name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.NotFound, "file %q not found", name)
		}
		return apperr.Wrap(apperr.Internal, err, "deleting %q", name)
	}
	return nil
}

// DeleteAudiobook removes every file belonging to one audiobook job, in any
// format, plus its subtitles.
func (s *Store) DeleteAudiobook(jobID string) error {
	if !jobIDRe.MatchString(jobID) {
		return apperr.New(apperr.BadRequest, "invalid job id %q", jobID)
	}

	dir := s.Dir()
	deleted := false
	for _, ext := range []string{"wav", "mp3", "m4b", "srt", "vtt"} {
		path := filepath.Join(dir, fmt.Sprintf("audiobook-%s.%s", jobID, ext))
		if err := os.Remove(path); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return apperr.New(apperr.NotFound, "audiobook %q not found", jobID)
	}
	return nil
}

// wavDuration reads a WAV header and reports its play time; non-WAV
// formats report zero rather than paying for a decode.
func wavDuration(path string) float64 {
	if !strings.HasSuffix(path, ".wav") {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return audio.Duration(data)
}
