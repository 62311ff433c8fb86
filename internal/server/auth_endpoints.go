package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/memesrc/memesrc/internal/auth"
)

type sessionKey struct{}

// sessionFrom returns the signed-in session of the request, or nil.
func sessionFrom(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(sessionKey{}).(*auth.Session)
	return s
}

// sessionMiddleware attaches the session named by the bearer token, if it
// is valid. Anonymous requests pass through unchanged.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" || s.deps.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		session, err := s.deps.Auth.ValidateSession(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenExpired) {
				s.logger.Error("validate session", "err", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFrom(r.Context())
		if session == nil {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !session.IsAdmin {
			writeError(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, "authentication not available", http.StatusNotImplemented)
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		writeError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	session, err := s.deps.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		s.logger.Error("login", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, session)
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, "authentication not available", http.StatusNotImplemented)
		return
	}
	token := extractToken(r)
	if token == "" {
		writeError(w, "missing authorization token", http.StatusUnauthorized)
		return
	}
	if err := s.deps.Auth.Logout(r.Context(), token); err != nil {
		s.logger.Error("logout", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if session == nil {
		writeError(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, session)
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	tier, err := auth.ParseTier(payload.Tier)
	if err != nil {
		writeError(w, "tier must be free or pro", http.StatusBadRequest)
		return
	}

	user, err := s.deps.Auth.SetTier(r.Context(), chi.URLParam(r, "id"), tier)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, errNotFound, http.StatusNotFound)
	case err != nil:
		s.logger.Error("set tier", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
	default:
		writeJSON(w, user)
	}
}

// extractToken extracts the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
