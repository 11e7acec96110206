// Package job tracks background work: enqueued generation, audiobook
// renders and their history. Live jobs sit in a mutex-guarded map; terminal
// jobs move into a bounded newest-first history ring. Records never change
// again once terminal.
package job

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/engine"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Kind labels what a job produces.
type Kind string

const (
	KindTTS        Kind = "tts"
	KindTTSStream  Kind = "tts_stream"
	KindVoiceClone Kind = "voice_clone"
	KindAudiobook  Kind = "audiobook"
)

// HistoryCap bounds the terminal-job ring.
const HistoryCap = 2000

// Record is one job, live or historical.
type Record struct {
	ID        string    `json:"job_id"`
	Kind      Kind      `json:"kind"`
	Engine    string    `json:"engine,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Status    Status    `json:"status"`
	Title     string    `json:"title,omitempty"`
	CharCount int       `json:"char_count"`
	Voice     string    `json:"voice,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Language  string    `json:"language,omitempty"`
	Model     string    `json:"model,omitempty"`
	Output    string    `json:"output_path,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Error     string    `json:"error,omitempty"`

	Audiobook *AudiobookProgress `json:"audiobook,omitempty"`
}

func (r *Record) clone() Record {
	out := *r
	if r.Audiobook != nil {
		ab := *r.Audiobook
		ab.Chapters = append([]Chapter(nil), r.Audiobook.Chapters...)
		out.Audiobook = &ab
	}
	return out
}

// Metrics receives job lifecycle events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	JobStarted(kind string)
	JobFinished(kind, status string)
}

// Manager owns the live set and the history ring.
type Manager struct {
	logger  *slog.Logger
	metrics Metrics

	mu      sync.Mutex
	live    map[string]*Record
	history []*Record
}

// NewManager builds an empty manager. metrics may be nil.
func NewManager(logger *slog.Logger, metrics Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		metrics: metrics,
		live:    make(map[string]*Record),
	}
}

// NewID mints a 12-hex job id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// begin inserts rec as started and returns its id.
func (m *Manager) begin(rec Record) string {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	rec.Status = StatusStarted
	rec.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	m.live[rec.ID] = &rec
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.JobStarted(string(rec.Kind))
	}
	return rec.ID
}

// update mutates a live record. Terminal records are immutable; updates
// against them or unknown ids are dropped.
func (m *Manager) update(id string, fn func(*Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.live[id]
	if !ok || rec.Status.Terminal() {
		return
	}
	fn(rec)
}

// finish transitions a live record to a terminal status and moves it into
// the history ring.
func (m *Manager) finish(id string, status Status, fn func(*Record)) {
	m.mu.Lock()
	rec, ok := m.live[id]
	if !ok || rec.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	rec.Status = status
	if fn != nil {
		fn(rec)
	}
	delete(m.live, id)
	m.history = append(m.history, rec)
	if len(m.history) > HistoryCap {
		m.history = m.history[len(m.history)-HistoryCap:]
	}
	snapshot := rec.clone()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.JobFinished(string(snapshot.Kind), string(status))
	}
	m.logger.Info("job finished",
		"job_id", snapshot.ID,
		"kind", snapshot.Kind,
		"engine", snapshot.Engine,
		"status", snapshot.Status,
		"chars", snapshot.CharCount,
		"error", snapshot.Error,
	)
}

// Get returns a copy of the record, live or historical.
func (m *Manager) Get(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.live[id]; ok {
		return rec.clone(), nil
	}
	for _, rec := range m.history {
		if rec.ID == id {
			return rec.clone(), nil
		}
	}
	return Record{}, apperr.New(apperr.NotFound, "job %q not found", id)
}

// List returns live and historical records, newest first. Ties on the
// timestamp break by id. limit <= 0 means no limit.
func (m *Manager) List(limit int) []Record {
	m.mu.Lock()
	out := make([]Record, 0, len(m.live)+len(m.history))
	for _, rec := range m.live {
		out = append(out, rec.clone())
	}
	for _, rec := range m.history {
		out = append(out, rec.clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Enqueue records a started job and runs fn on a detached worker. The
// caller has already validated the request and model readiness; worker
// failures land on the record, never on the process.
func (m *Manager) Enqueue(rec Record, fn func(ctx context.Context) (engine.Result, error)) string {
	id := m.begin(rec)

	go func() {
		m.update(id, func(r *Record) { r.Status = StatusProcessing })

		res, err := fn(context.Background())
		if err != nil {
			m.finish(id, StatusFailed, func(r *Record) {
				r.Error = apperr.Message(err)
			})
			return
		}
		m.finish(id, StatusCompleted, func(r *Record) {
			r.Output = res.Path
			r.AudioURL = "/audio/" + res.Filename
		})
	}()

	return id
}
