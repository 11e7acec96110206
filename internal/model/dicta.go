package model

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DictaModelURL is the published Hebrew diacritization model used by the
// Chatterbox Hebrew mode.
const DictaModelURL = "https://github.com/thewh1teagle/dicta-onnx/releases/download/model-files-v1.0/dicta-1.0.onnx"

// DictaStatus reports the installation and download state of the dicta
// model file.
type DictaStatus struct {
	Installed      bool     `json:"installed"`
	Path           string   `json:"path"`
	SizeMB         *float64 `json:"size_mb"`
	DownloadStatus string   `json:"download_status,omitempty"`
	DownloadError  string   `json:"download_error,omitempty"`
}

// Dicta manages the single-file dicta ONNX model, which is fetched from a
// direct release URL rather than the hub cache.
type Dicta struct {
	path   string
	url    string
	client *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	state  DownloadState
	errMsg string
}

// NewDicta builds a manager writing the model to path. An empty url uses
// the published release.
func NewDicta(path, url string, logger *slog.Logger) *Dicta {
	if url == "" {
		url = DictaModelURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dicta{
		path:   path,
		url:    url,
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: logger,
	}
}

// Path returns the on-disk location of the model file.
func (d *Dicta) Path() string { return d.path }

// Status returns the current install and download state.
func (d *Dicta) Status() DictaStatus {
	st := DictaStatus{Path: d.path}
	if fi, err := os.Stat(d.path); err == nil && !fi.IsDir() {
		st.Installed = true
		mb := math.Round(float64(fi.Size())/(1024*1024)*10) / 10
		st.SizeMB = &mb
	}
	d.mu.Lock()
	st.DownloadStatus = string(d.state)
	st.DownloadError = d.errMsg
	d.mu.Unlock()
	return st
}

// Download starts a background fetch unless the model is installed or a
// fetch is already running. The returned message explains what happened.
func (d *Dicta) Download() (message string) {
	if st := d.Status(); st.Installed {
		d.mu.Lock()
		d.state = StateCompleted
		d.errMsg = ""
		d.mu.Unlock()
		return "dicta model already installed"
	}

	d.mu.Lock()
	if d.state == StateDownloading {
		d.mu.Unlock()
		return "dicta download already in progress"
	}
	d.state = StateDownloading
	d.errMsg = ""
	d.mu.Unlock()

	go d.run()
	return "dicta download started"
}

func (d *Dicta) run() {
	d.logger.Info("dicta download started", "url", d.url)
	err := d.fetch()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.logger.Error("dicta download failed", "error", err)
		d.state = StateFailed
		d.errMsg = err.Error()
		return
	}
	d.logger.Info("dicta download completed", "path", d.path)
	d.state = StateCompleted
	d.errMsg = ""
}

func (d *Dicta) fetch() error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	resp, err := d.client.Get(d.url)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp := d.path + ".part"
	fh, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(fh, resp.Body); err != nil {
		_ = fh.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move temp file into place: %w", err)
	}
	return nil
}
