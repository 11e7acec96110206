// Package sample holds the bundled demo content: sample texts per engine,
// the Kokoro voice showcase sentences and the pregenerated audio catalog
// seeded into the settings store at startup.
package sample

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/settings"
)

// Text is one suggested input for an engine's playground.
type Text struct {
	ID       int    `json:"id"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Category string `json:"category"`
}

var kokoroTexts = []Text{
	{ID: 1, Text: "The quick brown fox jumps over the lazy dog, pausing briefly to admire the typography.", Language: "en", Category: "pangram"},
	{ID: 2, Text: "In the beginning the Universe was created. This has made a lot of people very angry and been widely regarded as a bad move.", Language: "en", Category: "fiction"},
	{ID: 3, Text: "Section 4.2: before operating the device, verify that the power supply matches the voltage printed on the label.", Language: "en", Category: "technical"},
	{ID: 4, Text: "Tonight's forecast brings scattered showers across the north, clearing toward dawn with a gentle westerly breeze.", Language: "en", Category: "news"},
}

// TextsFor returns the sample texts for an engine's playground.
func TextsFor(engine string) ([]Text, error) {
	switch engine {
	case "kokoro":
		return kokoroTexts, nil
	default:
		return nil, apperr.New(apperr.BadRequest, "no sample texts for engine %q", engine)
	}
}

// VoiceSentence is one showcase sentence tied to a Kokoro voice.
type VoiceSentence struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	VoiceCode string `json:"voice_code"`
	VoiceName string `json:"voice_name"`
	AudioURL  string `json:"audio_url"`
}

var voiceSentences = []VoiceSentence{
	{ID: 1, VoiceCode: "bf_emma", VoiceName: "Emma",
		Text: "This is not all that can be said, however. In so far as a specifically moral anthropology has to deal with the conditions that hinder or further the execution of the moral laws in human nature."},
	{ID: 2, VoiceCode: "bm_george", VoiceName: "George",
		Text: "Anthropology must be concerned with the sociological and even historical developments which are relevant to morality. In so far as pragmatic anthropology also deals with these questions, it is also relevant here."},
	{ID: 3, VoiceCode: "bf_lily", VoiceName: "Lily",
		Text: "The spread and strengthening of moral principles through the education in schools and in public, and also with the personal and public contexts of morality that are open to empirical observation."},
}

// VoiceSamples lists showcase sentences whose audio file is present under
// samplesRoot/kokoro.
func VoiceSamples(samplesRoot string) []VoiceSentence {
	var out []VoiceSentence
	for _, s := range voiceSentences {
		name := fmt.Sprintf("sentence-%02d-%s.wav", s.ID, s.VoiceCode)
		if _, err := os.Stat(filepath.Join(samplesRoot, "kokoro", name)); err != nil {
			continue
		}
		s.AudioURL = "/samples/kokoro/" + name
		out = append(out, s)
	}
	return out
}

// Pregenerated is one catalog entry of showcase audio for instant playback.
type Pregenerated struct {
	ID          string `json:"id"`
	Engine      string `json:"engine"`
	Voice       string `json:"voice"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text"`
	File        string `json:"file"`
	AudioURL    string `json:"audio_url,omitempty"`
}

// pregenPrefix namespaces catalog entries in the settings store.
const pregenPrefix = "pregenerated/"

var pregenSeed = []Pregenerated{
	{
		ID: "kokoro-emma-intro", Engine: "kokoro", Voice: "bf_emma",
		Title: "Emma reads an introduction", Description: "British English female voice",
		Text: "Welcome to the studio. Pick a voice, type some text, and press generate.",
		File: "kokoro-emma-intro.wav",
	},
	{
		ID: "kokoro-george-weather", Engine: "kokoro", Voice: "bm_george",
		Title: "George reads the weather", Description: "British English male voice",
		Text: "Tonight's forecast brings scattered showers across the north, clearing toward dawn.",
		File: "kokoro-george-weather.wav",
	},
	{
		ID: "qwen3-ryan-demo", Engine: "qwen3", Voice: "Ryan",
		Title: "Ryan preset speaker", Description: "Qwen3 custom speaker demo",
		Text: "Voice cloning needs only a few seconds of reference audio.",
		File: "qwen3-ryan-demo.wav",
	},
}

// SeedPregenerated inserts catalog entries that are not yet present.
// Existing entries are left untouched so user edits survive restarts.
func SeedPregenerated(st *settings.Store) error {
	for _, p := range pregenSeed {
		key := pregenPrefix + p.ID
		if _, err := st.Get(key); err == nil {
			continue
		} else if apperr.KindOf(err) != apperr.NotFound {
			return err
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding pregenerated entry %q: %w", p.ID, err)
		}
		if _, err := st.Set(key, string(raw)); err != nil {
			return err
		}
	}
	return nil
}

// ListPregenerated returns catalog entries whose audio file exists under
// pregenDir, optionally filtered by engine.
func ListPregenerated(st *settings.Store, pregenDir, engine string) ([]Pregenerated, error) {
	records, err := st.All()
	if err != nil {
		return nil, err
	}

	var out []Pregenerated
	for _, rec := range records {
		if !strings.HasPrefix(rec.Key, pregenPrefix) {
			continue
		}
		var p Pregenerated
		if err := json.Unmarshal([]byte(rec.Value), &p); err != nil {
			continue
		}
		if engine != "" && p.Engine != engine {
			continue
		}
		if _, err := os.Stat(filepath.Join(pregenDir, p.File)); err != nil {
			continue
		}
		p.AudioURL = "/pregenerated/" + p.File
		out = append(out, p)
	}
	return out, nil
}
