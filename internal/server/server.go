package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/memesrc/memesrc/internal/ads"
	"github.com/memesrc/memesrc/internal/auth"
	"github.com/memesrc/memesrc/internal/billing"
	"github.com/memesrc/memesrc/internal/caption"
	"github.com/memesrc/memesrc/internal/collage"
	"github.com/memesrc/memesrc/internal/prefs"
	"github.com/memesrc/memesrc/internal/search"
	"github.com/memesrc/memesrc/internal/subtitle"
)

type Options struct {
	Addr string
	Root string
	// PublicURL is the externally visible base URL used in share pages.
	PublicURL       string
	ScanInterval    time.Duration
	CORS            bool
	SearchInterval  time.Duration
	LoginInterval   time.Duration
	MaxCollageSlots int
	BoardTTL        time.Duration
	MaxBoards       int
	ShutdownTimeout time.Duration
}

// Deps are the services the HTTP layer is wired to.
type Deps struct {
	Store      FrameStore
	Auth       *auth.Manager
	Subtitles  *subtitle.Service
	Search     *search.Service
	Prefs      *prefs.Service
	Ads        *ads.Service
	AdTag      *ads.ScriptTag
	Checkout   *billing.Client
	Rasterizer *caption.Rasterizer
	Compositor *collage.Compositor
	Logger     *slog.Logger
}

type Server struct {
	opts   Options
	deps   Deps
	lib    *Library
	logger *slog.Logger

	searchLimiter *RateLimiter
	loginLimiter  *RateLimiter
	boards        *expirable.LRU[string, *collage.Board]

	http     *http.Server
	scanStop context.CancelFunc
	scanDone chan struct{}
}

func New(ctx context.Context, opts Options, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Subtitles == nil || deps.Search == nil || deps.Prefs == nil ||
		deps.Ads == nil || deps.Rasterizer == nil || deps.Compositor == nil {
		return nil, errors.New("server: missing required service")
	}
	if opts.MaxCollageSlots <= 0 {
		opts.MaxCollageSlots = 20
	}
	if opts.BoardTTL <= 0 {
		opts.BoardTTL = time.Hour
	}
	if opts.MaxBoards <= 0 {
		opts.MaxBoards = 1000
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	lib, err := NewLibrary(ctx, opts.Root, deps.Store, deps.Logger)
	if err != nil {
		return nil, err
	}
	// initial scan; a partial index is still served
	if err := lib.Scan(ctx); err != nil {
		deps.Logger.Warn("initial scan incomplete", "err", err)
	}

	s := &Server{
		opts:          opts,
		deps:          deps,
		lib:           lib,
		logger:        deps.Logger,
		searchLimiter: NewRateLimiter(opts.SearchInterval),
		loginLimiter:  NewRateLimiter(opts.LoginInterval),
		boards:        expirable.NewLRU[string, *collage.Board](opts.MaxBoards, nil, opts.BoardTTL),
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if opts.ScanInterval > 0 {
		scanCtx, cancel := context.WithCancel(context.Background())
		s.scanStop = cancel
		s.scanDone = make(chan struct{})
		go s.runScanTicker(scanCtx, opts.ScanInterval)
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Library() *Library { return s.lib }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.opts.CORS))
	r.Use(s.sessionMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/frames/{fid}", s.handleFrame)
		r.Get("/frames/{fid}/caption", s.handleCaption)
		r.Post("/collage", s.handleCollage)

		r.Route("/boards", func(r chi.Router) {
			r.Post("/", s.handleBoardCreate)
			r.Get("/{board}", s.handleBoardGet)
			r.Get("/{board}/image", s.handleBoardImage)
			r.Post("/{board}/items", s.handleBoardInsert)
			r.Delete("/{board}/items/{index}", s.handleBoardDelete)
			r.Post("/{board}/items/{index}/{direction}", s.handleBoardMove)
		})

		r.With(s.searchLimiter.Middleware).Get("/search", s.handleSearch)
		r.Get("/random", s.handleRandom)
		r.Get("/series", s.handleSeries)

		r.Route("/auth", func(r chi.Router) {
			r.With(s.loginLimiter.Middleware).Post("/login", s.handleAuthLogin)
			r.Post("/logout", s.handleAuthLogout)
			r.Get("/session", s.handleAuthSession)
			r.With(s.requireAdmin).Put("/users/{id}/tier", s.handleSetTier)
		})

		r.Get("/prefs", s.handlePrefsAll)
		r.Get("/prefs/{key}", s.handlePrefGet)
		r.Put("/prefs/{key}", s.handlePrefSet)

		r.Post("/checkout", s.handleCheckout)

		r.Get("/ads", s.handleAdsGet)
		r.With(s.requireAdmin).Put("/ads", s.handleAdsSet)

		r.With(s.requireAdmin).Post("/library/scan", s.handleLibraryScan)
		r.With(s.requireAdmin).Get("/library/scan", s.handleLibraryLastScan)
	})

	r.Get("/frame/{fid}", s.handleSharePage)
	r.Get("/{series}/img/{season}/{episode}/{file}", s.handleImage)
	return r
}

func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.opts.Addr, "root", s.opts.Root, "frames", s.lib.Len())
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	s.stopScanTicker()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) runScanTicker(ctx context.Context, interval time.Duration) {
	defer close(s.scanDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.lib.Scan(ctx); err != nil {
				s.logger.Warn("periodic scan failed", "err", err)
			}
			s.searchLimiter.Prune()
			s.loginLimiter.Prune()
			if s.deps.Auth != nil {
				if err := s.deps.Auth.CleanupExpiredSessions(ctx); err != nil {
					s.logger.Warn("session cleanup failed", "err", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) stopScanTicker() {
	if s.scanStop == nil {
		return
	}
	s.scanStop()
	<-s.scanDone
	s.scanStop = nil
}

type healthResponse struct {
	Status   string    `json:"status"`
	Frames   int       `json:"frames"`
	LastScan time.Time `json:"lastScan"`
	Ads      bool      `json:"ads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:   "ok",
		Frames:   s.lib.Len(),
		LastScan: s.lib.LastScan(),
		Ads:      s.deps.Ads.IsEnabled(),
	})
}

func (s *Server) handleLibraryScan(w http.ResponseWriter, r *http.Request) {
	err := s.lib.Scan(r.Context())
	resp := map[string]any{"frames": s.lib.Len()}
	if err != nil {
		s.logger.Warn("scan failed", "err", err)
		resp["error"] = err.Error()
	}
	s.deps.Subtitles.Forget()
	writeJSON(w, resp)
}

func (s *Server) handleLibraryLastScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, "no scan history", http.StatusNotFound)
		return
	}
	run, ok, err := s.deps.Store.LastScanRun(r.Context())
	if err != nil {
		s.logger.Error("last scan run", "err", err)
		writeError(w, errInternal, http.StatusInternalServerError)
		return
	}
	if !ok {
		writeError(w, "no scan history", http.StatusNotFound)
		return
	}
	writeJSON(w, run)
}
