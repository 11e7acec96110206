package model

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDictaStatusUninstalled(t *testing.T) {
	d := NewDicta(filepath.Join(t.TempDir(), "dicta-1.0.onnx"), "", discardLogger())

	st := d.Status()
	if st.Installed {
		t.Error("missing model reported installed")
	}
	if st.SizeMB != nil {
		t.Error("missing model reported a size")
	}
}

func TestDictaDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "models", "dicta-1.0.onnx")
	d := NewDicta(path, srv.URL, discardLogger())
	d.client = srv.Client()

	if msg := d.Download(); msg != "dicta download started" {
		t.Fatalf("message = %q", msg)
	}
	waitForDicta(t, d, StateCompleted)

	st := d.Status()
	if !st.Installed {
		t.Error("model not installed after download")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "onnx-bytes" {
		t.Errorf("model bytes = %q, err %v", data, err)
	}

	if msg := d.Download(); msg != "dicta model already installed" {
		t.Errorf("repeat message = %q", msg)
	}
}

func TestDictaDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "dicta-1.0.onnx")
	d := NewDicta(path, srv.URL, discardLogger())
	d.client = srv.Client()

	d.Download()
	waitForDicta(t, d, StateFailed)

	st := d.Status()
	if st.DownloadError == "" {
		t.Error("failed download has no error message")
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind after failure")
	}
}

func waitForDicta(t *testing.T, d *Dicta, want DownloadState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.Status().DownloadStatus == string(want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", d.Status().DownloadStatus, want)
}
