package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mimikastudio/mimika/internal/model"
)

// modelStatus is one catalog entry with its local state attached.
type modelStatus struct {
	model.Info
	Downloaded    bool   `json:"downloaded"`
	DownloadState string `json:"download_status,omitempty"`
	DownloadError string `json:"download_error,omitempty"`
	CacheDir      string `json:"cache_dir,omitempty"`
}

func (s *Server) handleModelsStatus(w http.ResponseWriter, r *http.Request) {
	catalog := model.Catalog()
	out := make([]modelStatus, 0, len(catalog))
	for _, m := range catalog {
		st := modelStatus{Info: m}
		if m.Type == model.AcquireHuggingFace {
			st.Downloaded = s.deps.Models.IsDownloaded(m)
			st.CacheDir = s.deps.Models.CacheDir(m)
		}
		if s.deps.Downloads != nil {
			if rec, ok := s.deps.Downloads.Status(m); ok {
				st.DownloadState = string(rec.State)
				st.DownloadError = rec.Error
			}
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (s *Server) handleModelDownload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, inProgress, err := s.deps.Downloads.Download(name)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordModelDownload(r.Context(), "started")
	}

	status := "started"
	if inProgress {
		status = "already_downloading"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"model":  info.Name,
		"repo":   info.Repo,
		"status": status,
	})
}

func (s *Server) handleModelDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, err := s.deps.Downloads.Delete(name)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"model":  info.Name,
		"status": "deleted",
	})
}

func (s *Server) handleDictaStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Dicta.Status())
}

func (s *Server) handleDictaDownload(w http.ResponseWriter, r *http.Request) {
	msg := s.deps.Dicta.Download()
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordModelDownload(r.Context(), "started")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
