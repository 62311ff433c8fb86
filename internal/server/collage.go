package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/memesrc/memesrc/internal/collage"
	"github.com/memesrc/memesrc/internal/frame"
)

type collageRequest struct {
	FIDs   []string `json:"fids"`
	Border *int     `json:"border,omitempty"`
	Color  string   `json:"color,omitempty"`
}

// frameSource is a collage slot showing one frame.
type frameSource struct {
	fid  string
	file collage.FileSource
}

func (f frameSource) Load(ctx context.Context) (image.Image, error) { return f.file.Load(ctx) }

func (s *Server) frameSource(fid string) (frameSource, error) {
	id, err := frame.Parse(fid)
	if err != nil {
		return frameSource{}, err
	}
	p, ok := s.framePath(id)
	if !ok {
		return frameSource{}, fmt.Errorf("%w: %q is outside the media root", frame.ErrMalformedIdentifier, fid)
	}
	return frameSource{fid: id.String(), file: collage.FileSource(p)}, nil
}

// sources maps frame identifiers to loadable slots.
func (s *Server) sources(fids []string) ([]collage.Source, error) {
	out := make([]collage.Source, 0, len(fids))
	for _, fid := range fids {
		src, err := s.frameSource(fid)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (s *Server) compositorFor(border *int, col string) (*collage.Compositor, error) {
	if border == nil && col == "" {
		return s.deps.Compositor, nil
	}
	opts := s.deps.Compositor.Options()
	thickness := opts.Border
	if border != nil {
		if *border < 0 || *border > 100 {
			return nil, fmt.Errorf("border must be between 0 and 100")
		}
		thickness = *border
	}
	var c color.Color
	if col != "" {
		parsed, err := collage.ParseColor(col)
		if err != nil {
			return nil, err
		}
		c = parsed
	}
	return s.deps.Compositor.WithBorder(thickness, c), nil
}

func writeCollage(w http.ResponseWriter, res *collage.Result) {
	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Cache-Control", "no-store")
	if len(res.Missing) > 0 {
		parts := make([]string, len(res.Missing))
		for i, m := range res.Missing {
			parts[i] = strconv.Itoa(m)
		}
		h.Set("X-Missing-Slots", strings.Join(parts, ","))
	}
	_, _ = w.Write(res.PNG)
}

func (s *Server) handleCollage(w http.ResponseWriter, r *http.Request) {
	var req collageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(req.FIDs) == 0 {
		writeError(w, "fids is required", http.StatusBadRequest)
		return
	}
	if len(req.FIDs) > s.opts.MaxCollageSlots {
		writeError(w, fmt.Sprintf("at most %d frames per collage", s.opts.MaxCollageSlots), http.StatusBadRequest)
		return
	}
	srcs, err := s.sources(req.FIDs)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	comp, err := s.compositorFor(req.Border, req.Color)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := comp.Compose(r.Context(), srcs)
	if err != nil {
		s.composeFailed(w, r.Context(), err)
		return
	}
	writeCollage(w, res)
}

func (s *Server) composeFailed(w http.ResponseWriter, ctx context.Context, err error) {
	if ctx.Err() != nil {
		// client went away
		return
	}
	s.logger.Error("compose collage", "err", err)
	writeError(w, errInternal, http.StatusInternalServerError)
}

type boardResponse struct {
	ID    string          `json:"id"`
	FIDs  []string        `json:"fids"`
	Image *collage.Result `json:"image,omitempty"`
}

func newBoardResponse(id string, b *collage.Board, res *collage.Result) boardResponse {
	items := b.Items()
	fids := make([]string, 0, len(items))
	for _, it := range items {
		if fs, ok := it.(frameSource); ok {
			fids = append(fids, fs.fid)
		}
	}
	return boardResponse{ID: id, FIDs: fids, Image: res}
}

func (s *Server) handleBoardCreate(w http.ResponseWriter, r *http.Request) {
	var req collageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(req.FIDs) > s.opts.MaxCollageSlots {
		writeError(w, fmt.Sprintf("at most %d frames per collage", s.opts.MaxCollageSlots), http.StatusBadRequest)
		return
	}
	srcs, err := s.sources(req.FIDs)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	comp, err := s.compositorFor(req.Border, req.Color)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	b := collage.NewBoard(comp, srcs...)
	s.boards.Add(id, b)

	res, err := b.Recompose(r.Context())
	if err != nil {
		s.composeFailed(w, r.Context(), err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, newBoardResponse(id, b, res))
}

func (s *Server) board(w http.ResponseWriter, r *http.Request) (string, *collage.Board, bool) {
	id := chi.URLParam(r, "board")
	b, ok := s.boards.Get(id)
	if !ok {
		writeError(w, "board not found", http.StatusNotFound)
		return "", nil, false
	}
	return id, b, true
}

func (s *Server) handleBoardGet(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.board(w, r)
	if !ok {
		return
	}
	writeJSON(w, newBoardResponse(id, b, b.Latest()))
}

func (s *Server) handleBoardImage(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.board(w, r)
	if !ok {
		return
	}
	res := b.Latest()
	if res == nil {
		writeError(w, "board is empty", http.StatusNotFound)
		return
	}
	writeCollage(w, res)
}

func (s *Server) handleBoardInsert(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.board(w, r)
	if !ok {
		return
	}
	var req struct {
		FID   string `json:"fid"`
		Index *int   `json:"index,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	src, err := s.frameSource(req.FID)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Len() >= s.opts.MaxCollageSlots {
		writeError(w, fmt.Sprintf("at most %d frames per collage", s.opts.MaxCollageSlots), http.StatusBadRequest)
		return
	}
	index := b.Len()
	if req.Index != nil {
		index = *req.Index
	}

	res, err := b.Insert(r.Context(), index, src)
	s.boardEdited(w, r, id, b, res, err)
}

func (s *Server) handleBoardDelete(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.board(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	res, err := b.Delete(r.Context(), index)
	s.boardEdited(w, r, id, b, res, err)
}

func (s *Server) handleBoardMove(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.board(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	var res *collage.Result
	switch chi.URLParam(r, "direction") {
	case "up":
		res, err = b.MoveUp(r.Context(), index)
	case "down":
		res, err = b.MoveDown(r.Context(), index)
	default:
		writeError(w, errNotFound, http.StatusNotFound)
		return
	}
	s.boardEdited(w, r, id, b, res, err)
}

// boardEdited reports the board after an edit. The image is the result of
// this edit; when a later edit finished first, Latest already holds that.
func (s *Server) boardEdited(w http.ResponseWriter, r *http.Request, id string, b *collage.Board, res *collage.Result, err error) {
	switch {
	case errors.Is(err, collage.ErrIndexOutOfRange):
		writeError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		s.composeFailed(w, r.Context(), err)
	default:
		writeJSON(w, newBoardResponse(id, b, res))
	}
}
