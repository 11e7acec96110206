package server

import (
	"io"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/engine"
	"github.com/mimikastudio/mimika/internal/voice"
)

// maxVoiceUpload bounds one reference-audio upload.
const maxVoiceUpload = 64 << 20

// voiceView is the JSON shape of one pool entry.
type voiceView struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	Transcript string `json:"transcript"`
}

func voiceViews(voices []voice.Voice) []voiceView {
	out := make([]voiceView, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceView{Name: v.Name, Source: v.Source, Transcript: v.Transcript})
	}
	return out
}

// handleCustomVoices returns the merged cloning pool. The pool is shared
// across clone engines, so the store's own dedup is the merged view.
func (s *Server) handleCustomVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.deps.Voices.List()
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	views := voiceViews(voices)
	writeJSON(w, http.StatusOK, map[string]any{"voices": views, "count": len(views)})
}

// saver resolves the adapter for a voice-pool route. Engines without a voice
// pool (kokoro, supertonic) reject the mutation routes.
func (s *Server) saver(w http.ResponseWriter, r *http.Request) (engine.VoiceSaver, bool) {
	a, ok := s.adapter(w, r)
	if !ok {
		return nil, false
	}
	saver, ok := a.(engine.VoiceSaver)
	if !ok {
		writeError(w, r, s.log, apperr.New(apperr.BadRequest,
			"engine %q has no voice pool", a.Engine()))
		return nil, false
	}
	return saver, true
}

// kokoroGrades orders the preset catalog best first.
var kokoroGrades = map[string]int{
	"A": 0, "A-": 1, "B+": 2, "B": 3, "B-": 4,
	"C+": 5, "C": 6, "C-": 7, "D+": 8, "D": 9,
}

func (s *Server) handleVoicesList(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["engine"]
	if name == "kokoro" {
		type presetVoice struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Gender string `json:"gender"`
			Accent string `json:"accent"`
			Grade  string `json:"grade"`
		}
		out := make([]presetVoice, 0, len(engine.KokoroVoices))
		for id, info := range engine.KokoroVoices {
			out = append(out, presetVoice{
				ID: id, Name: info.Name, Gender: info.Gender,
				Accent: info.Accent, Grade: info.Grade,
			})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Grade != out[j].Grade {
				return kokoroGrades[out[i].Grade] < kokoroGrades[out[j].Grade]
			}
			return out[i].ID < out[j].ID
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"voices":  out,
			"default": engine.KokoroDefaultVoice,
		})
		return
	}

	saver, ok := s.saver(w, r)
	if !ok {
		return
	}
	voices, err := saver.ListVoices()
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	views := voiceViews(voices)
	writeJSON(w, http.StatusOK, map[string]any{"voices": views, "count": len(views)})
}

// readUpload pulls the reference audio part from a multipart form. field
// names "audio" and "file" are both accepted.
func readUpload(r *http.Request) ([]byte, error) {
	for _, field := range []string{"audio", "file"} {
		f, _, err := r.FormFile(field)
		if err != nil {
			continue
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, apperr.Wrap(apperr.BadRequest, err, "reading upload")
		}
		return data, nil
	}
	return nil, nil
}

func (s *Server) handleVoiceUpload(w http.ResponseWriter, r *http.Request) {
	saver, ok := s.saver(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxVoiceUpload); err != nil {
		writeValidationError(w, r, "invalid multipart form: "+err.Error())
		return
	}

	data, err := readUpload(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if data == nil {
		writeError(w, r, s.log, apperr.New(apperr.BadRequest, "audio file is required"))
		return
	}

	v, err := saver.SaveVoice(r.FormValue("name"), r.FormValue("transcript"), data)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceView{Name: v.Name, Source: v.Source, Transcript: v.Transcript})
}

func (s *Server) handleVoiceGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.adapter(w, r); !ok {
		return
	}
	v, err := s.deps.Voices.Get(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceView{Name: v.Name, Source: v.Source, Transcript: v.Transcript})
}

func (s *Server) handleVoiceUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.saver(w, r); !ok {
		return
	}
	if err := r.ParseMultipartForm(maxVoiceUpload); err != nil {
		writeValidationError(w, r, "invalid multipart form: "+err.Error())
		return
	}

	data, err := readUpload(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	var transcript *string
	if vals, ok := r.MultipartForm.Value["transcript"]; ok && len(vals) > 0 {
		transcript = &vals[0]
	}

	v, err := s.deps.Voices.Update(mux.Vars(r)["name"], r.FormValue("new_name"), transcript, data)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceView{Name: v.Name, Source: v.Source, Transcript: v.Transcript})
}

func (s *Server) handleVoiceDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.saver(w, r); !ok {
		return
	}
	name := mux.Vars(r)["name"]
	if err := s.deps.Voices.Delete(name); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
}

func (s *Server) handleVoiceAudio(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.adapter(w, r); !ok {
		return
	}
	path, err := s.deps.Voices.AudioPath(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}
