package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/audio"
	"github.com/mimikastudio/mimika/internal/doc"
	"github.com/mimikastudio/mimika/internal/text"
)

// ChunkSynthesizer renders one chunk at a time so long documents interleave
// with interactive requests at chunk boundaries. The Kokoro adapter
// implements it.
type ChunkSynthesizer interface {
	SynthesizeChunk(ctx context.Context, text, voice string, speed float64) ([]float32, int, error)
	ResolveVoice(requested string) string
	Ready() error
}

// Encoder converts the stitched WAV into a compressed container.
type Encoder interface {
	Encode(ctx context.Context, wavPath, format string, chapters []Chapter) (string, error)
}

// Chapter is one book section with its resolved position in the output.
type Chapter struct {
	Title    string  `json:"title"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// AudiobookProgress carries the audiobook-specific job fields.
type AudiobookProgress struct {
	TotalChunks    int       `json:"total_chunks"`
	CurrentChunk   int       `json:"current_chunk"`
	TotalChars     int       `json:"total_chars"`
	ProcessedChars int       `json:"processed_chars"`
	CharsPerSec    float64   `json:"chars_per_sec"`
	ETASeconds     float64   `json:"eta_seconds"`
	ETAFormatted   string    `json:"eta_formatted"`
	Percent        float64   `json:"percent"`
	ElapsedSec     float64   `json:"elapsed_seconds"`
	CurrentChapter string    `json:"current_chapter,omitempty"`
	Chapters       []Chapter `json:"chapters,omitempty"`
	OutputFormat   string    `json:"output_format"`
	SubtitleFormat string    `json:"subtitle_format,omitempty"`
	SubtitlePath   string    `json:"subtitle_path,omitempty"`
	SubtitleURL    string    `json:"subtitle_url,omitempty"`
	DurationSec    float64   `json:"duration_seconds,omitempty"`
	FileSizeMB     float64   `json:"file_size_mb,omitempty"`

	cancel *atomic.Bool
}

// AudiobookParams configures one audiobook render.
type AudiobookParams struct {
	Title            string  `json:"title"`
	Voice            string  `json:"voice"`
	Speed            float64 `json:"speed"`
	OutputFormat     string  `json:"output_format"`
	SubtitleFormat   string  `json:"subtitle_format"`
	SmartChunking    *bool   `json:"smart_chunking"`
	MaxCharsPerChunk int     `json:"max_chars_per_chunk"`
	CrossfadeMS      int     `json:"crossfade_ms"`
}

// chunkRef ties a text chunk to its source chapter, or -1 for none.
type chunkRef struct {
	text    string
	chapter int
}

// AudiobookRunner turns documents into stitched narration files.
type AudiobookRunner struct {
	manager *Manager
	synth   ChunkSynthesizer
	outDir  func() string
	encoder Encoder
	logger  *slog.Logger
}

// NewAudiobookRunner wires the runner. encoder may be nil when compressed
// output is not available.
func NewAudiobookRunner(manager *Manager, synth ChunkSynthesizer, outDir func() string,
	encoder Encoder, logger *slog.Logger) *AudiobookRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudiobookRunner{manager: manager, synth: synth, outDir: outDir, encoder: encoder, logger: logger}
}

// Submit validates the request, records the job as started and begins the
// render on a detached worker.
func (a *AudiobookRunner) Submit(d doc.Document, p AudiobookParams) (Record, error) {
	if strings.TrimSpace(d.Text) == "" {
		return Record{}, apperr.New(apperr.BadRequest, "text cannot be empty")
	}

	format := strings.ToLower(p.OutputFormat)
	if format == "" {
		format = "wav"
	}
	if format != "wav" && format != "mp3" && format != "m4b" {
		return Record{}, apperr.New(apperr.BadRequest,
			"invalid output_format %q, use wav, mp3 or m4b", p.OutputFormat)
	}
	if format != "wav" && a.encoder == nil {
		return Record{}, apperr.New(apperr.Unavailable,
			"%s output requires ffmpeg; install ffmpeg and retry", format)
	}

	subFormat := strings.ToLower(p.SubtitleFormat)
	if subFormat == "" {
		subFormat = "none"
	}
	if subFormat != "none" && subFormat != "srt" && subFormat != "vtt" {
		return Record{}, apperr.New(apperr.BadRequest,
			"invalid subtitle_format %q, use none, srt or vtt", p.SubtitleFormat)
	}

	maxChars := p.MaxCharsPerChunk
	if maxChars == 0 {
		maxChars = 1500
	}
	if maxChars < 0 {
		return Record{}, apperr.New(apperr.BadRequest, "max_chars_per_chunk must be > 0")
	}
	if p.CrossfadeMS < 0 {
		return Record{}, apperr.New(apperr.BadRequest, "crossfade_ms must be >= 0")
	}
	if err := a.synth.Ready(); err != nil {
		return Record{}, err
	}

	refs := chunkDocument(d, p.SmartChunking, maxChars)
	if len(refs) == 0 {
		return Record{}, apperr.New(apperr.BadRequest, "text cannot be empty")
	}

	totalChars := 0
	for _, ref := range refs {
		totalChars += len(ref.text)
	}

	title := p.Title
	if title == "" {
		title = d.Title
	}
	if title == "" {
		title = "Untitled"
	}

	chapters := make([]Chapter, len(d.Chapters))
	for i, ch := range d.Chapters {
		chapters[i] = Chapter{Title: ch.Title}
	}

	rec := Record{
		Kind:      KindAudiobook,
		Engine:    "kokoro",
		Title:     title,
		CharCount: totalChars,
		Voice:     a.synth.ResolveVoice(p.Voice),
		Audiobook: &AudiobookProgress{
			TotalChunks:    len(refs),
			TotalChars:     totalChars,
			Chapters:       chapters,
			OutputFormat:   format,
			SubtitleFormat: subFormat,
			cancel:         new(atomic.Bool),
		},
	}

	id := a.manager.begin(rec)
	go a.run(id, refs, rec.Voice, p.Speed, format, subFormat, crossfadeOrDefault(p.CrossfadeMS))

	out, err := a.manager.Get(id)
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// Cancel requests cancellation of a live audiobook job. It reports false
// when the job is already terminal.
func (a *AudiobookRunner) Cancel(id string) (bool, error) {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.live[id]; ok {
		if rec.Audiobook == nil || rec.Audiobook.cancel == nil || rec.Status.Terminal() {
			return false, nil
		}
		rec.Audiobook.cancel.Store(true)
		return true, nil
	}
	for _, rec := range m.history {
		if rec.ID == id {
			return false, nil
		}
	}
	return false, apperr.New(apperr.NotFound, "job %q not found", id)
}

func crossfadeOrDefault(ms int) int {
	if ms > 0 {
		return ms
	}
	return 40
}

// chunkDocument chunks each chapter separately so cue and marker boundaries
// never straddle chapters. Chapterless documents chunk as one body.
func chunkDocument(d doc.Document, smart *bool, maxChars int) []chunkRef {
	smartOn := true
	if smart != nil {
		smartOn = *smart
	}

	chunkOne := func(body string) []string {
		body = strings.TrimSpace(body)
		if body == "" {
			return nil
		}
		if !smartOn {
			return []string{body}
		}
		return text.SmartChunk(body, maxChars)
	}

	if len(d.Chapters) == 0 {
		var refs []chunkRef
		for _, c := range chunkOne(d.Text) {
			refs = append(refs, chunkRef{text: c, chapter: -1})
		}
		return refs
	}

	var refs []chunkRef
	for i, ch := range d.Chapters {
		for _, c := range chunkOne(ch.Title + ". " + ch.Text) {
			refs = append(refs, chunkRef{text: c, chapter: i})
		}
	}
	return refs
}

// run executes the render. All failures land on the job record.
func (a *AudiobookRunner) run(id string, refs []chunkRef, voice string, speed float64,
	format, subFormat string, crossfadeMS int) {

	a.manager.update(id, func(r *Record) { r.Status = StatusProcessing })

	if speed <= 0 {
		speed = 1.0
	}

	start := time.Now()
	ctx := context.Background()

	var pieces [][]float32
	var cues []cue
	sampleRate := 0
	cursorSec := 0.0
	processed := 0
	totalChars := 0
	for _, ref := range refs {
		totalChars += len(ref.text)
	}

	cancelled := false
	var chapters []Chapter
	a.manager.update(id, func(r *Record) {
		chapters = append([]Chapter(nil), r.Audiobook.Chapters...)
	})

	for i, ref := range refs {
		if a.isCancelled(id) {
			cancelled = true
			break
		}

		samples, sr, err := a.synth.SynthesizeChunk(ctx, ref.text, voice, speed)
		if err != nil {
			a.manager.finish(id, StatusFailed, func(r *Record) {
				r.Error = apperr.Message(err)
			})
			return
		}
		if len(samples) == 0 {
			continue
		}
		if sampleRate == 0 {
			sampleRate = sr
		} else if sr != sampleRate {
			samples = audio.Resample(samples, sr, sampleRate)
		}

		// Mirror the stitcher's overlap so cue and chapter times line up
		// with the merged waveform.
		startSec := cursorSec
		if len(pieces) > 0 {
			overlap := crossfadeMS * sampleRate / 1000
			if prev := len(pieces[len(pieces)-1]); overlap > prev {
				overlap = prev
			}
			if overlap > len(samples) {
				overlap = len(samples)
			}
			startSec -= float64(overlap) / float64(sampleRate)
		}
		endSec := startSec + float64(len(samples))/float64(sampleRate)
		cursorSec = endSec
		pieces = append(pieces, samples)
		cues = append(cues, cue{text: ref.text, startSec: startSec, endSec: endSec})

		if ref.chapter >= 0 && ref.chapter < len(chapters) {
			if chapters[ref.chapter].EndSec == 0 && chapters[ref.chapter].StartSec == 0 {
				chapters[ref.chapter].StartSec = startSec
			}
			chapters[ref.chapter].EndSec = endSec
		}

		processed += len(ref.text)
		elapsed := time.Since(start).Seconds()
		cps := 0.0
		eta := 0.0
		if elapsed > 0 {
			cps = float64(processed) / elapsed
		}
		if cps > 0 {
			eta = float64(totalChars-processed) / cps
		}
		chunkIndex := i + 1
		chapterTitle := ""
		if ref.chapter >= 0 && ref.chapter < len(chapters) {
			chapterTitle = chapters[ref.chapter].Title
		}
		a.manager.update(id, func(r *Record) {
			ab := r.Audiobook
			ab.CurrentChunk = chunkIndex
			ab.ProcessedChars = processed
			ab.CharsPerSec = cps
			ab.ETASeconds = eta
			ab.ETAFormatted = FormatETA(eta)
			ab.Percent = 100 * float64(processed) / float64(totalChars)
			ab.ElapsedSec = elapsed
			ab.CurrentChapter = chapterTitle
			ab.Chapters = append([]Chapter(nil), chapters...)
		})
	}

	if cancelled {
		a.manager.finish(id, StatusCancelled, nil)
		return
	}
	if len(pieces) == 0 || sampleRate == 0 {
		a.manager.finish(id, StatusFailed, func(r *Record) {
			r.Error = "no audio generated"
		})
		return
	}

	merged := audio.Merge(pieces, sampleRate, crossfadeMS)
	outPath, err := a.writeOutput(ctx, id, merged, sampleRate, format, chapters)
	if err != nil {
		a.manager.finish(id, StatusFailed, func(r *Record) {
			r.Error = apperr.Message(err)
		})
		return
	}

	subtitlePath := ""
	if subFormat != "none" {
		subtitlePath = filepath.Join(a.outDir(), fmt.Sprintf("audiobook-%s.%s", id, subFormat))
		if err := writeSubtitles(subtitlePath, subFormat, cues); err != nil {
			a.logger.Warn("subtitle generation failed", "job_id", id, "error", err)
			subtitlePath = ""
		}
	}

	duration := float64(len(merged)) / float64(sampleRate)
	sizeMB := 0.0
	if st, err := os.Stat(outPath); err == nil {
		sizeMB = float64(st.Size()) / (1024 * 1024)
	}

	a.manager.finish(id, StatusCompleted, func(r *Record) {
		r.Output = outPath
		r.AudioURL = "/audio/" + filepath.Base(outPath)
		ab := r.Audiobook
		ab.DurationSec = duration
		ab.FileSizeMB = sizeMB
		ab.Percent = 100
		if subtitlePath != "" {
			ab.SubtitlePath = subtitlePath
			ab.SubtitleURL = "/audio/" + filepath.Base(subtitlePath)
		}
	})
}

func (a *AudiobookRunner) isCancelled(id string) bool {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live[id]
	if !ok || rec.Audiobook == nil || rec.Audiobook.cancel == nil {
		return false
	}
	return rec.Audiobook.cancel.Load()
}

// writeOutput writes the stitched WAV, then hands off to the encoder for
// compressed formats. The intermediate WAV is removed after a successful
// encode.
func (a *AudiobookRunner) writeOutput(ctx context.Context, id string, samples []float32,
	sampleRate int, format string, chapters []Chapter) (string, error) {

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "encoding audiobook")
	}
	wavPath := filepath.Join(a.outDir(), fmt.Sprintf("audiobook-%s.wav", id))
	if err := os.WriteFile(wavPath, data, 0o644); err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "writing audiobook")
	}
	if format == "wav" {
		return wavPath, nil
	}

	outPath, err := a.encoder.Encode(ctx, wavPath, format, chapters)
	if err != nil {
		return "", err
	}
	os.Remove(wavPath)
	return outPath, nil
}

// FormatETA renders seconds as a compact human duration.
func FormatETA(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	total := int(seconds + 0.5)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
