package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/memesrc/memesrc/internal/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := search.Query{Text: q.Get("q"), SeriesID: q.Get("series")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		query.Limit = n
	}

	hits, err := s.deps.Search.Search(r.Context(), searchClientKey(r), query)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, "q is required", http.StatusBadRequest)
	case errors.Is(err, search.ErrSuperseded):
		writeError(w, "superseded by a newer search", http.StatusConflict)
	case r.Context().Err() != nil:
		// client went away
	case err != nil:
		s.logger.Error("search", "q", query.Text, "err", err)
		writeError(w, "search unavailable", http.StatusServiceUnavailable)
	default:
		if hits == nil {
			hits = []search.Hit{}
		}
		writeJSON(w, hits)
	}
}

// clientIDHeader names the browser tab issuing searches, so a newer search
// from the same tab can supersede an older one.
const clientIDHeader = "X-Client-ID"

// searchClientKey scopes search supersession: the bearer token when signed
// in, otherwise the client id header. Anonymous callers without one get ""
// and are never superseded.
func searchClientKey(r *http.Request) string {
	if token := extractToken(r); token != "" {
		return "t:" + token
	}
	if id := strings.TrimSpace(r.Header.Get(clientIDHeader)); id != "" && len(id) <= 128 {
		return "c:" + id
	}
	return ""
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	d, ok, err := s.deps.Search.Random(r.Context(), r.URL.Query().Get("series"))
	if err != nil {
		s.logger.Error("random frame", "err", err)
		writeError(w, "search unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		writeError(w, "no frames indexed", http.StatusNotFound)
		return
	}
	writeJSON(w, d)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	var series []Series
	if s.deps.Store != nil {
		stored, err := s.deps.Store.ListSeries(r.Context())
		if err != nil {
			s.logger.Warn("list series from store", "err", err)
		} else {
			series = stored
		}
	}
	if series == nil {
		series = s.lib.Series()
	}
	writeJSON(w, series)
}
