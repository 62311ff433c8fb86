package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/memesrc/memesrc/internal/caption"
	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/subtitle"
)

// maxCaptionLength bounds custom caption text, in runes.
const maxCaptionLength = 500

type frameResponse struct {
	frame.View
	Subtitle string `json:"subtitle"`
	Indexed  bool   `json:"indexed"`
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "fid")
	view, err := frame.NewView(fid)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	canonical := view.Frame.FID
	_, indexed := s.lib.Get(canonical)
	writeJSON(w, frameResponse{
		View:     view,
		Subtitle: s.deps.Subtitles.Lookup(r.Context(), canonical),
		Indexed:  indexed,
	})
}

// framePath resolves the file backing id: the indexed file when known,
// otherwise the conventional location under the media root. It reports
// false for paths that would leave the root.
func (s *Server) framePath(id frame.ID) (string, bool) {
	if f, ok := s.lib.Get(id.String()); ok {
		return f.Path, true
	}
	p := filepath.Join(s.opts.Root, filepath.FromSlash(id.ImagePath()))
	rel, err := filepath.Rel(filepath.Clean(s.opts.Root), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return p, true
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id, err := frame.ParseImagePath(r.URL.Path)
	if err != nil {
		writeError(w, errNotFound, http.StatusNotFound)
		return
	}

	p, ok := s.framePath(id)
	if !ok {
		writeError(w, errNotFound, http.StatusNotFound)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		writeError(w, errNotFound, http.StatusNotFound)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		writeError(w, errNotFound, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, filepath.Base(f.Name()), st.ModTime(), f)
}

// handleCaption renders the frame with a caption burned in. The caption is
// the text parameter when present, otherwise the frame's subtitle.
func (s *Server) handleCaption(w http.ResponseWriter, r *http.Request) {
	id, err := frame.Parse(chi.URLParam(r, "fid"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	show := true
	if v := q.Get("show"); v != "" {
		show, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, "show must be a boolean", http.StatusBadRequest)
			return
		}
	}
	text, ok := q["text"]
	var captionText string
	if ok {
		captionText = text[0]
		if utf8.RuneCountInString(captionText) > maxCaptionLength {
			writeError(w, fmt.Sprintf("text is longer than %d characters", maxCaptionLength), http.StatusBadRequest)
			return
		}
	} else {
		captionText = s.deps.Subtitles.Lookup(r.Context(), id.String())
		if captionText == subtitle.Unavailable {
			captionText = ""
		}
	}

	p, ok := s.framePath(id)
	if !ok {
		writeError(w, "frame image unavailable", http.StatusNotFound)
		return
	}
	img, err := caption.LoadImage(p)
	if err != nil {
		if errors.Is(err, caption.ErrImageUnavailable) {
			writeError(w, "frame image unavailable", http.StatusNotFound)
			return
		}
		s.logger.Error("load frame", "fid", id.String(), "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.deps.Rasterizer.RenderJPEG(&buf, img, captionText, show); err != nil {
		s.logger.Error("render caption", "fid", id.String(), "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(buf.Bytes())
}
