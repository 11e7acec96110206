package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HubFetcher downloads repo snapshots from the Hugging Face hub into the
// local cache layout (<cache>/snapshots/<revision>/<file>).
type HubFetcher struct {
	// Client defaults to an http.Client without a global timeout; large
	// weight files can take arbitrarily long.
	Client *http.Client
	// Token is sent as a bearer credential for gated repos.
	Token string
	// BaseURL overrides the hub endpoint in tests.
	BaseURL string
}

type repoMeta struct {
	SHA      string `json:"sha"`
	Siblings []struct {
		Filename string `json:"rfilename"`
	} `json:"siblings"`
}

func (f *HubFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 0}
}

func (f *HubFetcher) base() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return "https://huggingface.co"
}

// Fetch downloads every file of repo into cacheDir and returns the snapshot
// directory. Files already present with the right size are skipped; partial
// downloads are staged in a .tmp file and renamed into place.
func (f *HubFetcher) Fetch(ctx context.Context, repo, cacheDir string) (string, error) {
	meta, err := f.fetchMeta(ctx, repo)
	if err != nil {
		return "", err
	}

	revision := meta.SHA
	if revision == "" {
		revision = "main"
	}
	snapshotDir := filepath.Join(cacheDir, "snapshots", revision)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	for _, s := range meta.Siblings {
		if s.Filename == "" {
			continue
		}
		if err := f.fetchFile(ctx, repo, revision, s.Filename, snapshotDir); err != nil {
			return "", err
		}
	}

	// Refresh the directory mtime so the newest snapshot wins readiness.
	now := time.Now()
	_ = os.Chtimes(snapshotDir, now, now)

	return snapshotDir, nil
}

func (f *HubFetcher) fetchMeta(ctx context.Context, repo string) (*repoMeta, error) {
	url := fmt.Sprintf("%s/api/models/%s", f.base(), repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	f.setAuth(req)

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed for %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("access denied for %s; provide HF_TOKEN", repo)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed for %s: %s", repo, resp.Status)
	}

	var meta repoMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", repo, err)
	}
	if len(meta.Siblings) == 0 {
		return nil, fmt.Errorf("repo %s lists no files", repo)
	}
	return &meta, nil
}

func (f *HubFetcher) fetchFile(ctx context.Context, repo, revision, filename, snapshotDir string) error {
	localPath := filepath.Join(snapshotDir, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local subdir: %w", err)
	}

	url := fmt.Sprintf("%s/%s/resolve/%s/%s", f.base(), repo, revision, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	f.setAuth(req)

	resp, err := f.client().Do(req)
	if err != nil {
		return fmt.Errorf("download request failed for %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed for %s: %s", filename, resp.Status)
	}

	// Skip files already fetched at the advertised size.
	if fi, err := os.Stat(localPath); err == nil && resp.ContentLength > 0 && fi.Size() == resp.ContentLength {
		return nil
	}

	tmp := localPath + ".tmp"
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
	if err := os.Rename(tmp, localPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("move temp file into place: %w", err)
	}
	return nil
}

func (f *HubFetcher) setAuth(req *http.Request) {
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
}
