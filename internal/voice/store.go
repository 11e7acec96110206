// Package voice manages the cloning voice pool. Two directories back the
// pool: a shared folder of bundled default voices and a user folder for
// uploads. Default voices are identified by location, never by a hardcoded
// list, and cannot be renamed, replaced or deleted.
package voice

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Voice describes one pool entry.
type Voice struct {
	Name       string `json:"name"`
	Source     string `json:"source"` // "default" or "user"
	Transcript string `json:"transcript"`
	AudioPath  string `json:"-"`
}

// Store reads and writes the voice pool.
type Store struct {
	sharedDir string
	userDir   string
}

// NewStore builds a store over the shared defaults directory and the user
// uploads directory. Both are created when missing.
func NewStore(sharedDir, userDir string) (*Store, error) {
	for _, dir := range []string{sharedDir, userDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating voice dir %s: %w", dir, err)
		}
	}
	return &Store{sharedDir: sharedDir, userDir: userDir}, nil
}

// List returns every voice in the pool, user voices first, sorted by name
// within each source. When a user voice shadows a default name the user
// voice wins.
func (s *Store) List() ([]Voice, error) {
	seen := map[string]bool{}
	var voices []Voice

	for _, loc := range []struct {
		dir    string
		source string
	}{
		{s.userDir, "user"},
		{s.sharedDir, "default"},
	} {
		names, err := wavStems(loc.dir)
		if err != nil {
			return nil, err
		}
		sort.Strings(names)
		for _, name := range names {
			if seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			voices = append(voices, Voice{
				Name:       name,
				Source:     loc.source,
				Transcript: readTranscript(filepath.Join(loc.dir, name+".txt")),
				AudioPath:  filepath.Join(loc.dir, name+".wav"),
			})
		}
	}

	return voices, nil
}

// Get returns the voice with the given name, or a NotFound error. The user
// pool shadows same-named defaults, matching List.
func (s *Store) Get(name string) (Voice, error) {
	if err := checkName(name); err != nil {
		return Voice{}, err
	}

	if path := filepath.Join(s.userDir, name+".wav"); fileExists(path) {
		return Voice{
			Name:       name,
			Source:     "user",
			Transcript: readTranscript(filepath.Join(s.userDir, name+".txt")),
			AudioPath:  path,
		}, nil
	}
	if path := filepath.Join(s.sharedDir, name+".wav"); fileExists(path) {
		return Voice{
			Name:       name,
			Source:     "default",
			Transcript: readTranscript(filepath.Join(s.sharedDir, name+".txt")),
			AudioPath:  path,
		}, nil
	}

	return Voice{}, apperr.New(apperr.NotFound, "voice %q not found", name)
}

// AudioPath returns the WAV file path for a voice, searching defaults first.
func (s *Store) AudioPath(name string) (string, error) {
	v, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return v.AudioPath, nil
}

// IsDefault reports whether name matches a bundled default voice. The match
// is case-insensitive so uploads cannot shadow a default by changing case.
func (s *Store) IsDefault(name string) bool {
	if name == "" {
		return false
	}
	names, err := wavStems(s.sharedDir)
	if err != nil {
		return false
	}
	target := strings.ToLower(name)
	for _, n := range names {
		if strings.ToLower(n) == target {
			return true
		}
	}
	return false
}

// Upload stores a new user voice. The audio is re-encoded to the canonical
// format and the transcript is required for cloning.
func (s *Store) Upload(name, transcript string, wavData []byte) (Voice, error) {
	if err := checkName(name); err != nil {
		return Voice{}, err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Voice{}, apperr.New(apperr.BadRequest, "transcript is required for voice cloning")
	}
	if s.IsDefault(name) {
		return Voice{}, apperr.New(apperr.BadRequest, "name %q is reserved for default voices", name)
	}

	normalized, err := audio.Normalize(wavData)
	if err != nil {
		return Voice{}, apperr.Wrap(apperr.BadRequest, err, "invalid audio upload")
	}

	audioPath := filepath.Join(s.userDir, name+".wav")
	if err := os.WriteFile(audioPath, normalized, 0o644); err != nil {
		return Voice{}, fmt.Errorf("writing voice audio: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.userDir, name+".txt"), []byte(transcript), 0o644); err != nil {
		return Voice{}, fmt.Errorf("writing voice transcript: %w", err)
	}

	return Voice{Name: name, Source: "user", Transcript: transcript, AudioPath: audioPath}, nil
}

// Update renames a user voice, replaces its transcript, replaces its audio,
// or any combination. Empty newName keeps the current name; nil wavData
// keeps the current audio; a nil transcript pointer keeps the current
// transcript.
func (s *Store) Update(name, newName string, transcript *string, wavData []byte) (Voice, error) {
	if err := checkName(name); err != nil {
		return Voice{}, err
	}
	if s.IsDefault(name) {
		return Voice{}, apperr.New(apperr.BadRequest, "default voices cannot be modified")
	}

	oldAudio := filepath.Join(s.userDir, name+".wav")
	oldTranscript := filepath.Join(s.userDir, name+".txt")
	if !fileExists(oldAudio) {
		return Voice{}, apperr.New(apperr.NotFound, "voice %q not found", name)
	}

	finalName := name
	if newName != "" {
		if err := checkName(newName); err != nil {
			return Voice{}, err
		}
		finalName = newName
	}
	if s.IsDefault(finalName) {
		return Voice{}, apperr.New(apperr.BadRequest, "name %q is reserved for default voices", finalName)
	}

	newAudio := filepath.Join(s.userDir, finalName+".wav")
	newTranscriptPath := filepath.Join(s.userDir, finalName+".txt")

	if wavData != nil {
		normalized, err := audio.Normalize(wavData)
		if err != nil {
			return Voice{}, apperr.Wrap(apperr.BadRequest, err, "invalid audio upload")
		}
		if err := os.WriteFile(newAudio, normalized, 0o644); err != nil {
			return Voice{}, fmt.Errorf("writing voice audio: %w", err)
		}
		if oldAudio != newAudio {
			_ = os.Remove(oldAudio)
		}
	} else if oldAudio != newAudio {
		if err := os.Rename(oldAudio, newAudio); err != nil {
			return Voice{}, fmt.Errorf("renaming voice audio: %w", err)
		}
	}

	if transcript != nil {
		if err := os.WriteFile(newTranscriptPath, []byte(strings.TrimSpace(*transcript)), 0o644); err != nil {
			return Voice{}, fmt.Errorf("writing voice transcript: %w", err)
		}
		if oldTranscript != newTranscriptPath {
			_ = os.Remove(oldTranscript)
		}
	} else if oldTranscript != newTranscriptPath && fileExists(oldTranscript) {
		if err := os.Rename(oldTranscript, newTranscriptPath); err != nil {
			return Voice{}, fmt.Errorf("renaming voice transcript: %w", err)
		}
	}

	return Voice{
		Name:       finalName,
		Source:     "user",
		Transcript: readTranscript(newTranscriptPath),
		AudioPath:  newAudio,
	}, nil
}

// Delete removes a user voice and its transcript.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if s.IsDefault(name) {
		return apperr.New(apperr.BadRequest, "default voices cannot be deleted")
	}

	audioPath := filepath.Join(s.userDir, name+".wav")
	if !fileExists(audioPath) {
		return apperr.New(apperr.NotFound, "voice %q not found", name)
	}
	if err := os.Remove(audioPath); err != nil {
		return fmt.Errorf("deleting voice audio: %w", err)
	}
	_ = os.Remove(filepath.Join(s.userDir, name+".txt"))
	return nil
}

// MigrateLegacy consolidates old engine-specific sample folders into the
// shared defaults folder. Files already present at the destination win; the
// legacy copy is discarded.
func (s *Store) MigrateLegacy(legacyDirs ...string) error {
	if err := os.MkdirAll(s.sharedDir, 0o755); err != nil {
		return fmt.Errorf("creating shared voice dir: %w", err)
	}

	for _, legacyDir := range legacyDirs {
		stems, err := wavStems(legacyDir)
		if err != nil {
			continue
		}
		for _, stem := range stems {
			for _, ext := range []string{".wav", ".txt"} {
				src := filepath.Join(legacyDir, stem+ext)
				if !fileExists(src) {
					continue
				}
				dst := filepath.Join(s.sharedDir, stem+ext)
				if fileExists(dst) {
					_ = os.Remove(src)
					continue
				}
				if err := os.Rename(src, dst); err != nil {
					return fmt.Errorf("migrating %s: %w", src, err)
				}
			}
		}
	}
	return nil
}

func checkName(name string) error {
	if !validName.MatchString(name) {
		return apperr.New(apperr.BadRequest, "invalid voice name %q", name)
	}
	return nil
}

// wavStems lists the base names of .wav files in dir. A missing dir yields
// an empty list.
func wavStems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading voice dir %s: %w", dir, err)
	}

	var stems []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".wav"))
	}
	return stems, nil
}

func readTranscript(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
