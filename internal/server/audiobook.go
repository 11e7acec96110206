package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/doc"
	"github.com/mimikastudio/mimika/internal/job"
)

// maxDocumentUpload bounds one audiobook source document.
const maxDocumentUpload = 128 << 20

// audiobookRequest is the JSON body of a direct-text render.
type audiobookRequest struct {
	Text string `json:"text"`
	job.AudiobookParams
}

func (s *Server) handleAudiobookGenerate(w http.ResponseWriter, r *http.Request) {
	var req audiobookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.deps.Audiobooks.Submit(doc.Document{Title: req.Title, Text: req.Text}, req.AudiobookParams)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAudiobookFromFile stages the uploaded document next to the other
// PDFs, extracts it and submits the render.
func (s *Server) handleAudiobookFromFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDocumentUpload); err != nil {
		writeValidationError(w, r, "invalid multipart form: "+err.Error())
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, s.log, apperr.New(apperr.BadRequest, "file is required"))
		return
	}
	defer f.Close()

	staged, err := s.stageDocument(f, header.Filename)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	document, err := s.deps.Docs.FromFile(staged)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	params := job.AudiobookParams{
		Title:          r.FormValue("title"),
		Voice:          r.FormValue("voice"),
		OutputFormat:   r.FormValue("output_format"),
		SubtitleFormat: r.FormValue("subtitle_format"),
	}
	if v := r.FormValue("speed"); v != "" {
		if params.Speed, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, r, s.log, apperr.New(apperr.BadRequest, "invalid speed %q", v))
			return
		}
	}
	if v := r.FormValue("max_chars_per_chunk"); v != "" {
		if params.MaxCharsPerChunk, err = strconv.Atoi(v); err != nil {
			writeError(w, r, s.log, apperr.New(apperr.BadRequest, "invalid max_chars_per_chunk %q", v))
			return
		}
	}

	rec, err := s.deps.Audiobooks.Submit(document, params)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// stageDocument copies an upload into the PDF staging directory under its
// original base name so the extractor can dispatch on the extension.
func (s *Server) stageDocument(src io.Reader, name string) (string, error) {
	base := filepath.Base(name)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", apperr.New(apperr.BadRequest, "invalid filename %q", name)
	}
	dst := filepath.Join(s.deps.Paths.PDFDir(), base)
	out, err := os.Create(dst)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "staging upload")
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return "", apperr.Wrap(apperr.Internal, err, "staging upload")
	}
	return dst, nil
}

func (s *Server) handleAudiobookStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.deps.Jobs.Get(id)
	if err != nil || rec.Kind != job.KindAudiobook {
		writeError(w, r, s.log, apperr.New(apperr.NotFound, "audiobook job %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAudiobookCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cancelled, err := s.deps.Audiobooks.Cancel(id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "cancelled": cancelled})
}

func (s *Server) handleAudiobookList(w http.ResponseWriter, r *http.Request) {
	var out []job.Record
	for _, rec := range s.deps.Jobs.List(0) {
		if rec.Kind == job.KindAudiobook {
			out = append(out, rec)
		}
	}
	if out == nil {
		out = []job.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audiobooks": out, "count": len(out)})
}

func (s *Server) handleAudiobookDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Outputs.DeleteAudiobook(id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "deleted"})
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, s.log, apperr.New(apperr.BadRequest, "invalid limit %q", v))
			return
		}
		limit = n
	}
	jobs := s.deps.Jobs.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Jobs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
