package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/diag"
	"github.com/mimikastudio/mimika/internal/outputs"
	"github.com/mimikastudio/mimika/internal/sample"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "mimikastudio",
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, diag.Info(r.Context(), s.deps.Version))
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := diag.Stats(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSystemFolders(w http.ResponseWriter, r *http.Request) {
	p := s.deps.Paths
	writeJSON(w, http.StatusOK, map[string]any{
		"runtime_home":  p.RuntimeHome(),
		"data_dir":      p.DataDir(),
		"output_folder": s.deps.Outputs.Dir(),
		"output_pinned": s.deps.Outputs.Pinned(),
		"log_dir":       p.LogDir(),
		"pdf_dir":       p.PDFDir(),
	})
}

func (s *Server) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, s.log, apperr.New(apperr.BadRequest, "invalid lines %q", v))
			return
		}
		lines = n
	}
	out := diag.TailLogs(s.deps.Paths.LogDir(), lines)
	if out == nil {
		out = []diag.LogLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": out, "count": len(out)})
}

// handleDiagnosticsExport streams a freshly built zip bundle and removes it
// once the response is done.
func (s *Server) handleDiagnosticsExport(w http.ResponseWriter, r *http.Request) {
	path, cleanup, err := diag.CreateBundle(r.Context(), s.deps.Version, s.deps.Paths.LogDir())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer cleanup()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="mimika-diagnostics.zip"`)
	http.ServeFile(w, r, path)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Settings.All()
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[rec.Key] = rec.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": out})
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if !decodeJSON(w, r, &body) {
		return
	}
	for key, value := range body {
		if _, err := s.deps.Settings.Set(key, value); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	s.handleSettingsGet(w, r)
}

func (s *Server) handleOutputFolderGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"output_folder": s.deps.Outputs.Dir(),
		"pinned":        s.deps.Outputs.Pinned(),
	})
}

func (s *Server) handleOutputFolderPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	effective, changed, err := s.deps.Outputs.SetDir(body.Path)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"output_folder": effective,
		"changed":       changed,
		"pinned":        s.deps.Outputs.Pinned(),
	})
}

func (s *Server) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Settings.Get(mux.Vars(r)["key"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSettingPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	rec, err := s.deps.Settings.Set(mux.Vars(r)["key"], body.Value)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSettingDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.deps.Settings.Delete(key); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// ---------------------------------------------------------------------------
// Samples and pregenerated audio
// ---------------------------------------------------------------------------

func (s *Server) handlePregenerated(w http.ResponseWriter, r *http.Request) {
	entries, err := sample.ListPregenerated(s.deps.Settings, s.deps.Paths.PregenDir(),
		r.URL.Query().Get("engine"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if entries == nil {
		entries = []sample.Pregenerated{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": entries, "count": len(entries)})
}

func (s *Server) handleSampleTexts(w http.ResponseWriter, r *http.Request) {
	texts, err := sample.TextsFor(mux.Vars(r)["engine"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"texts": texts})
}

func (s *Server) handleVoiceSamples(w http.ResponseWriter, r *http.Request) {
	sentences := sample.VoiceSamples(s.deps.Paths.SamplesRootDir())
	if sentences == nil {
		sentences = []sample.VoiceSentence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sentences": sentences, "count": len(sentences)})
}

// ---------------------------------------------------------------------------
// Document staging and extraction
// ---------------------------------------------------------------------------

func (s *Server) handlePDFList(w http.ResponseWriter, r *http.Request) {
	dir := s.deps.Paths.PDFDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(w, r, s.log, apperr.Wrap(apperr.Internal, err, "reading document directory"))
		return
	}

	type docFile struct {
		Filename string  `json:"filename"`
		SizeMB   float64 `json:"size_mb"`
		URL      string  `json:"url"`
	}
	out := []docFile{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, docFile{
			Filename: e.Name(),
			SizeMB:   float64(info.Size()) / (1024 * 1024),
			URL:      "/pdf/" + e.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	writeJSON(w, http.StatusOK, map[string]any{"files": out, "count": len(out)})
}

// handlePDFExtract accepts either a multipart upload or a JSON body naming a
// previously staged file.
func (s *Server) handlePDFExtract(w http.ResponseWriter, r *http.Request) {
	var path string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
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
		if path, err = s.stageDocument(f, header.Filename); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	} else {
		var body struct {
			Filename string `json:"filename"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Filename == "" || body.Filename != filepath.Base(body.Filename) {
			writeError(w, r, s.log, apperr.New(apperr.BadRequest, "invalid filename %q", body.Filename))
			return
		}
		path = filepath.Join(s.deps.Paths.PDFDir(), body.Filename)
		if _, err := os.Stat(path); err != nil {
			writeError(w, r, s.log, apperr.New(apperr.NotFound, "file %q not found", body.Filename))
			return
		}
	}

	document, err := s.deps.Docs.FromFile(path)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

// ---------------------------------------------------------------------------
// Generated-audio library
// ---------------------------------------------------------------------------

// audioList serves the library for one artifact prefix; "" lists everything.
func (s *Server) audioList(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := s.deps.Outputs.List(prefix)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		if files == nil {
			files = []outputs.Artifact{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
	}
}

// audioListMulti merges the library views of several artifact prefixes.
func (s *Server) audioListMulti(prefixes []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.deps.Outputs.List("")
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		files := []outputs.Artifact{}
		for _, f := range all {
			for _, p := range prefixes {
				if strings.HasPrefix(f.Filename, p+"-") {
					files = append(files, f)
					break
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
	}
}

// audioDelete removes one artifact after checking it belongs to the view.
// nil prefixes allow any valid artifact name.
func (s *Server) audioDelete(prefixes []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["filename"]

		enginePrefix := ""
		if len(prefixes) == 1 {
			enginePrefix = prefixes[0]
		} else if len(prefixes) > 1 {
			for _, p := range prefixes {
				if strings.HasPrefix(name, p+"-") {
					enginePrefix = p
					break
				}
			}
			if enginePrefix == "" {
				writeError(w, r, s.log, apperr.New(apperr.BadRequest,
					"filename %q does not belong to %s", name, strings.Join(prefixes, "/")))
				return
			}
		}

		if err := s.deps.Outputs.Delete(name, enginePrefix); err != nil {
			writeError(w, r, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}

// ---------------------------------------------------------------------------
// /audio static serving over the retargetable output directory
// ---------------------------------------------------------------------------

func (s *Server) handleAudioGet(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Outputs.Resolve(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, r, s.log, apperr.New(apperr.NotFound, "file %q not found", mux.Vars(r)["name"]))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleAudioDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.deps.Outputs.Delete(name, ""); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
}
