package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/engine"
)

func testManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func waitStatus(t *testing.T, m *Manager, id string, want Status) Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Status == want {
			return rec
		}
		if rec.Status.Terminal() {
			t.Fatalf("job reached %s, want %s (error: %s)", rec.Status, want, rec.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached %s", want)
	return Record{}
}

func TestNewIDShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 12 {
			t.Fatalf("id %q is not 12 chars", id)
		}
		for _, r := range id {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
				t.Fatalf("id %q contains non-hex rune %q", id, r)
			}
		}
		if seen[id] {
			t.Fatalf("id %q repeated", id)
		}
		seen[id] = true
	}
}

func TestEnqueueLifecycle(t *testing.T) {
	m := testManager()

	id := m.Enqueue(Record{Kind: KindTTS, Engine: "qwen3", CharCount: 2},
		func(context.Context) (engine.Result, error) {
			return engine.Result{Path: "/out/qwen3-x-abcd1234.wav", Filename: "qwen3-x-abcd1234.wav"}, nil
		})

	rec := waitStatus(t, m, id, StatusCompleted)
	if rec.AudioURL != "/audio/qwen3-x-abcd1234.wav" {
		t.Errorf("audio_url = %q", rec.AudioURL)
	}
	if rec.Output == "" {
		t.Error("completed job has no output path")
	}

	// Terminal records live in history, not the live set.
	if len(m.List(0)) != 1 {
		t.Errorf("List = %d records, want 1", len(m.List(0)))
	}
}

func TestEnqueueFailureRecordsError(t *testing.T) {
	m := testManager()

	id := m.Enqueue(Record{Kind: KindTTS}, func(context.Context) (engine.Result, error) {
		return engine.Result{}, apperr.New(apperr.Unavailable, "backend gone")
	})

	rec := waitStatus(t, m, id, StatusFailed)
	if rec.Error != "backend gone" {
		t.Errorf("error = %q", rec.Error)
	}
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	m := testManager()
	id := m.begin(Record{Kind: KindTTS})
	m.finish(id, StatusCompleted, func(r *Record) { r.Output = "/out/a.wav" })

	m.update(id, func(r *Record) { r.Output = "/out/changed.wav" })
	m.finish(id, StatusFailed, func(r *Record) { r.Error = "late failure" })

	rec, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusCompleted || rec.Output != "/out/a.wav" || rec.Error != "" {
		t.Errorf("terminal record changed: %+v", rec)
	}
}

func TestGetUnknownJob(t *testing.T) {
	m := testManager()
	_, err := m.Get("ffffffffffff")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestHistoryRingBound(t *testing.T) {
	m := testManager()

	for i := 0; i < HistoryCap+5; i++ {
		id := m.begin(Record{Kind: KindTTS})
		m.finish(id, StatusCompleted, nil)
	}

	if got := len(m.List(0)); got != HistoryCap {
		t.Errorf("history holds %d records, want %d", got, HistoryCap)
	}
}

func TestListOrdering(t *testing.T) {
	m := testManager()

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.history = []*Record{
		{ID: "bbb", Status: StatusCompleted, CreatedAt: base},
		{ID: "aaa", Status: StatusCompleted, CreatedAt: base},
		{ID: "ccc", Status: StatusCompleted, CreatedAt: base.Add(time.Minute)},
	}

	got := m.List(0)
	if got[0].ID != "ccc" || got[1].ID != "aaa" || got[2].ID != "bbb" {
		t.Errorf("order = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}

	if limited := m.List(2); len(limited) != 2 {
		t.Errorf("List(2) = %d records", len(limited))
	}
}

func TestListIncludesLiveJobs(t *testing.T) {
	m := testManager()
	release := make(chan struct{})

	id := m.Enqueue(Record{Kind: KindTTS}, func(context.Context) (engine.Result, error) {
		<-release
		return engine.Result{Filename: "f.wav"}, nil
	})
	defer close(release)

	found := false
	for _, rec := range m.List(0) {
		if rec.ID == id && !rec.Status.Terminal() {
			found = true
		}
	}
	if !found {
		t.Error("live job missing from List")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "0s"},
		{-3, "0s"},
		{45, "45s"},
		{330, "5m 30s"},
		{3720, "1h 2m"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.sec); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestEnqueueConcurrentJobs(t *testing.T) {
	m := testManager()

	ids := make([]string, 10)
	for i := range ids {
		n := i
		ids[i] = m.Enqueue(Record{Kind: KindTTS}, func(context.Context) (engine.Result, error) {
			name := fmt.Sprintf("kokoro-v-%08d.wav", n)
			return engine.Result{Filename: name}, nil
		})
	}
	for _, id := range ids {
		waitStatus(t, m, id, StatusCompleted)
	}
}
