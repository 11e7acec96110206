package model

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mimikastudio/mimika/internal/apperr"
)

// DownloadState is the lifecycle of one download record.
type DownloadState string

const (
	StateDownloading DownloadState = "downloading"
	StateCompleted   DownloadState = "completed"
	StateFailed      DownloadState = "failed"
)

// DownloadStatus is the externally visible record for one repo download.
type DownloadStatus struct {
	State        DownloadState `json:"status"`
	Error        string        `json:"error,omitempty"`
	SnapshotPath string        `json:"snapshot_path,omitempty"`
}

// Fetcher downloads one repo into the hub cache and returns the resolved
// snapshot directory. The production implementation talks to Hugging Face;
// tests inject a fake.
type Fetcher interface {
	Fetch(ctx context.Context, repo, cacheDir string) (snapshotPath string, err error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, repo, cacheDir string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, repo, cacheDir string) (string, error) {
	return f(ctx, repo, cacheDir)
}

// Manager coordinates background model downloads. Status records are keyed
// by repo id so two catalog entries sharing a repo share one download.
type Manager struct {
	registry *Registry
	fetcher  Fetcher
	logger   *slog.Logger

	mu     sync.Mutex
	status map[string]DownloadStatus
}

// NewManager builds a download manager over the registry.
func NewManager(registry *Registry, fetcher Fetcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		fetcher:  fetcher,
		logger:   logger,
		status:   make(map[string]DownloadStatus),
	}
}

// Status returns the download record for a catalog entry, if any.
func (m *Manager) Status(info Info) (DownloadStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.status[statusKey(info)]
	return st, ok
}

// Download starts a background fetch of the model named name. The call
// returns immediately; a second call while the same repo is still
// downloading is a no-op and reports inProgress.
func (m *Manager) Download(name string) (info Info, inProgress bool, err error) {
	info, ok := Lookup(name)
	if !ok {
		return Info{}, false, apperr.New(apperr.NotFound, "model %q not found", name)
	}
	if info.Type == AcquirePip {
		return Info{}, false, apperr.New(apperr.BadRequest,
			"model %q is installed via pip, not downloaded here", name)
	}
	if info.Repo == "" {
		return Info{}, false, apperr.New(apperr.BadRequest, "model %q has no repo", name)
	}

	key := statusKey(info)
	m.mu.Lock()
	if st, ok := m.status[key]; ok && st.State == StateDownloading {
		m.mu.Unlock()
		return info, true, nil
	}
	m.status[key] = DownloadStatus{State: StateDownloading}
	m.mu.Unlock()

	go m.run(info, key)
	return info, false, nil
}

func (m *Manager) run(info Info, key string) {
	m.logger.Info("model download started", "model", info.Name, "repo", info.Repo)

	snapshot, err := m.fetcher.Fetch(context.Background(), info.Repo, m.registry.CacheDir(info))

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.Error("model download failed", "model", info.Name, "error", err)
		m.status[key] = DownloadStatus{State: StateFailed, Error: err.Error()}
		return
	}
	m.logger.Info("model download completed", "model", info.Name, "snapshot", snapshot)
	m.status[key] = DownloadStatus{State: StateCompleted, SnapshotPath: snapshot}
}

// Delete removes the cached payload for name. Only downloaded models can be
// deleted; pip models are refused.
func (m *Manager) Delete(name string) (Info, error) {
	info, ok := Lookup(name)
	if !ok {
		return Info{}, apperr.New(apperr.NotFound, "model %q not found", name)
	}
	if info.Type == AcquirePip {
		return Info{}, apperr.New(apperr.BadRequest,
			"model %q is removed via pip, not deleted here", name)
	}
	if !m.registry.IsDownloaded(info) {
		return Info{}, apperr.New(apperr.BadRequest, "model %q is not downloaded", name)
	}

	if err := os.RemoveAll(m.registry.CacheDir(info)); err != nil {
		return Info{}, apperr.Wrap(apperr.Internal, err, "deleting model %q", name)
	}

	m.mu.Lock()
	delete(m.status, statusKey(info))
	m.mu.Unlock()

	m.logger.Info("model deleted", "model", info.Name, "repo", info.Repo)
	return info, nil
}

// statusKey keys downloads by repo with the model name as fallback.
func statusKey(info Info) string {
	if info.Repo != "" {
		return info.Repo
	}
	return info.Name
}
