package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/memesrc/memesrc/internal/billing"
	"github.com/memesrc/memesrc/internal/prefs"
)

func sessionEmail(r *http.Request) string {
	if session := sessionFrom(r.Context()); session != nil {
		return session.Email
	}
	return ""
}

func (s *Server) handlePrefsAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Prefs.All(r.Context(), sessionEmail(r))
	if err != nil {
		s.logger.Error("list preferences", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, all)
}

type prefBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handlePrefGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.deps.Prefs.Get(r.Context(), sessionEmail(r), key)
	if s.prefError(w, err) {
		return
	}
	writeJSON(w, prefBody{Key: key, Value: value})
}

func (s *Server) handlePrefSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.prefError(w, s.deps.Prefs.Set(r.Context(), sessionEmail(r), key, body.Value)) {
		return
	}
	writeJSON(w, prefBody{Key: key, Value: body.Value})
}

func (s *Server) prefError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, prefs.ErrUnknownKey):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, prefs.ErrInvalidValue):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("preference", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
	}
	return true
}

// requestRegion is the buyer's country: the request body wins, then the
// country header set by the edge proxy.
func requestRegion(r *http.Request, body string) string {
	if body = strings.TrimSpace(body); body != "" {
		return body
	}
	for _, h := range []string{"CF-IPCountry", "X-Country-Code"} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		writeError(w, "sign in to upgrade", http.StatusUnauthorized)
		return
	}
	if session.Pro() {
		writeError(w, "already pro", http.StatusConflict)
		return
	}
	if s.deps.Checkout == nil {
		writeError(w, "checkout not available", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Plan       string `json:"plan"`
		Region     string `json:"region"`
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	out, err := s.deps.Checkout.CreateCheckout(r.Context(), billing.Request{
		UserID:     session.UserID,
		Email:      session.Email,
		Plan:       body.Plan,
		Region:     requestRegion(r, body.Region),
		SuccessURL: body.SuccessURL,
		CancelURL:  body.CancelURL,
	})
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		writeError(w, "checkout not available", http.StatusServiceUnavailable)
	case err != nil:
		s.logger.Error("create checkout", "user", session.UserID, "err", err)
		writeError(w, "checkout provider unavailable", http.StatusBadGateway)
	default:
		writeJSON(w, out)
	}
}

type adsResponse struct {
	Enabled bool   `json:"enabled"`
	Tag     string `json:"tag,omitempty"`
}

// adsFor reports whether ads are shown to the request's viewer. Pro users
// never see them.
func (s *Server) adsFor(r *http.Request) bool {
	return s.deps.Ads.IsEnabled() && !sessionFrom(r.Context()).Pro()
}

func (s *Server) handleAdsGet(w http.ResponseWriter, r *http.Request) {
	resp := adsResponse{Enabled: s.adsFor(r)}
	if resp.Enabled && s.deps.AdTag != nil {
		resp.Tag = string(s.deps.AdTag.Tag())
	}
	writeJSON(w, resp)
}

func (s *Server) handleAdsSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Enabled == nil {
		writeError(w, "enabled is required", http.StatusBadRequest)
		return
	}
	if err := s.deps.Ads.Set(*body.Enabled); err != nil {
		s.logger.Warn("toggle ads", "enabled", *body.Enabled, "err", err)
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, adsResponse{Enabled: s.deps.Ads.IsEnabled()})
}
