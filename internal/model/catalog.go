// Package model holds the static catalog of synthesis back-end models, the
// on-disk cache layout, readiness probing and the download coordinator.
package model

import (
	"path/filepath"
	"strings"
)

// Acquisition describes how a model gets onto the machine.
type Acquisition string

const (
	// AcquireHuggingFace models are fetched into the local hub cache.
	AcquireHuggingFace Acquisition = "huggingface"
	// AcquirePip models ship inside a Python package and are never
	// downloaded or deleted through the service.
	AcquirePip Acquisition = "pip"
)

// Info describes one catalog entry.
type Info struct {
	Name         string      `json:"name"`
	Engine       string      `json:"engine"`
	Repo         string      `json:"hf_repo"`
	SizeGB       float64     `json:"size_gb"`
	Mode         string      `json:"mode"` // "tts", "clone" or "custom"
	Quantization string      `json:"quantization,omitempty"`
	Speakers     []string    `json:"speakers,omitempty"`
	Type         Acquisition `json:"model_type"`
	Description  string      `json:"description,omitempty"`
}

// QwenSpeakers are the preset speakers available in CustomVoice mode.
var QwenSpeakers = []string{
	"Ryan", "Aiden", "Vivian", "Serena", "Uncle_Fu",
	"Dylan", "Eric", "Ono_Anna", "Sohee",
}

// SpeakerInfo describes a preset speaker for the catalog endpoint.
type SpeakerInfo struct {
	Language    string `json:"language"`
	Description string `json:"description"`
}

// QwenSpeakerInfo maps each preset speaker to its description.
var QwenSpeakerInfo = map[string]SpeakerInfo{
	"Ryan":     {Language: "English", Description: "Dynamic male with strong rhythm"},
	"Aiden":    {Language: "English", Description: "Sunny American male"},
	"Vivian":   {Language: "Chinese", Description: "Bright young female"},
	"Serena":   {Language: "Chinese", Description: "Warm gentle female"},
	"Uncle_Fu": {Language: "Chinese", Description: "Seasoned male, low mellow"},
	"Dylan":    {Language: "Chinese", Description: "Beijing youthful male"},
	"Eric":     {Language: "Chinese", Description: "Sichuan lively male"},
	"Ono_Anna": {Language: "Japanese", Description: "Playful female"},
	"Sohee":    {Language: "Korean", Description: "Warm emotional female"},
}

// Catalog returns every known model. The slice is freshly allocated on each
// call so callers may not mutate shared state.
func Catalog() []Info {
	return []Info{
		{
			Name:        "Kokoro",
			Engine:      "kokoro",
			Repo:        "mlx-community/Kokoro-82M-bf16",
			SizeGB:      0.3,
			Mode:        "tts",
			Type:        AcquireHuggingFace,
			Description: "Fast British English TTS",
		},
		{
			Name:         "Qwen3-TTS-12Hz-0.6B-Base",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-0.6B-Base-bf16",
			SizeGB:       1.4,
			Mode:         "clone",
			Quantization: "bf16",
			Type:         AcquireHuggingFace,
			Description:  "Voice cloning (smaller, faster)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-1.7B-Base",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-1.7B-Base-bf16",
			SizeGB:       3.6,
			Mode:         "clone",
			Quantization: "bf16",
			Type:         AcquireHuggingFace,
			Description:  "Voice cloning (larger, higher quality)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-0.6B-CustomVoice",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-0.6B-CustomVoice-bf16",
			SizeGB:       1.4,
			Mode:         "custom",
			Quantization: "bf16",
			Speakers:     QwenSpeakers,
			Type:         AcquireHuggingFace,
			Description:  "Preset speakers (smaller, faster)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-1.7B-CustomVoice",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-1.7B-CustomVoice-bf16",
			SizeGB:       3.6,
			Mode:         "custom",
			Quantization: "bf16",
			Speakers:     QwenSpeakers,
			Type:         AcquireHuggingFace,
			Description:  "Preset speakers (larger, higher quality)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-0.6B-Base-8bit",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-0.6B-Base-8bit",
			SizeGB:       0.8,
			Mode:         "clone",
			Quantization: "8bit",
			Type:         AcquireHuggingFace,
			Description:  "Voice cloning (smaller, faster, 8-bit)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-1.7B-Base-8bit",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-1.7B-Base-8bit",
			SizeGB:       2.0,
			Mode:         "clone",
			Quantization: "8bit",
			Type:         AcquireHuggingFace,
			Description:  "Voice cloning (larger, 8-bit)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-0.6B-CustomVoice-8bit",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-0.6B-CustomVoice-8bit",
			SizeGB:       0.8,
			Mode:         "custom",
			Quantization: "8bit",
			Speakers:     QwenSpeakers,
			Type:         AcquireHuggingFace,
			Description:  "Preset speakers (smaller, 8-bit)",
		},
		{
			Name:         "Qwen3-TTS-12Hz-1.7B-CustomVoice-8bit",
			Engine:       "qwen3",
			Repo:         "mlx-community/Qwen3-TTS-12Hz-1.7B-CustomVoice-8bit",
			SizeGB:       2.0,
			Mode:         "custom",
			Quantization: "8bit",
			Speakers:     QwenSpeakers,
			Type:         AcquireHuggingFace,
			Description:  "Preset speakers (larger, 8-bit)",
		},
		{
			Name:        "Chatterbox Multilingual",
			Engine:      "chatterbox",
			Repo:        "mlx-community/chatterbox-fp16",
			SizeGB:      2.0,
			Mode:        "clone",
			Type:        AcquireHuggingFace,
			Description: "Multilingual voice cloning",
		},
		{
			Name:        "Supertonic",
			Engine:      "supertonic",
			Repo:        "Supertone/supertonic",
			SizeGB:      0.3,
			Mode:        "tts",
			Type:        AcquireHuggingFace,
			Description: "Low-latency English TTS over ONNX Runtime",
		},
		{
			Name:        "CosyVoice3-0.5B",
			Engine:      "cosyvoice3",
			Repo:        "FunAudioLLM/CosyVoice3-0.5B",
			SizeGB:      2.5,
			Mode:        "clone",
			Type:        AcquireHuggingFace,
			Description: "Multilingual voice cloning via subprocess runtime",
		},
		{
			Name:        "IndexTTS-2",
			Engine:      "indextts2",
			Mode:        "clone",
			Type:        AcquirePip,
			Description: "Installed as a Python package; not managed here",
		},
	}
}

// Lookup finds a catalog entry by name.
func Lookup(name string) (Info, bool) {
	for _, m := range Catalog() {
		if m.Name == name {
			return m, true
		}
	}
	return Info{}, false
}

// ByEngine returns the catalog entries for one back-end tag.
func ByEngine(engine string) []Info {
	var out []Info
	for _, m := range Catalog() {
		if m.Engine == engine {
			out = append(out, m)
		}
	}
	return out
}

// CacheDirName converts a repo id into the hub cache directory name, e.g.
// "mlx-community/Kokoro-82M-bf16" -> "models--mlx-community--Kokoro-82M-bf16".
func CacheDirName(repo string) string {
	return "models--" + strings.ReplaceAll(repo, "/", "--")
}

// CacheDir returns the cache directory for a repo under hubRoot.
func CacheDir(hubRoot, repo string) string {
	return filepath.Join(hubRoot, CacheDirName(repo))
}
