package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/memesrc/memesrc/internal/ads"
	"github.com/memesrc/memesrc/internal/auth"
	"github.com/memesrc/memesrc/internal/billing"
	"github.com/memesrc/memesrc/internal/caption"
	"github.com/memesrc/memesrc/internal/collage"
	"github.com/memesrc/memesrc/internal/config"
	"github.com/memesrc/memesrc/internal/ffmpeg"
	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/prefs"
	"github.com/memesrc/memesrc/internal/search"
	"github.com/memesrc/memesrc/internal/server"
	"github.com/memesrc/memesrc/internal/storage"
	"github.com/memesrc/memesrc/internal/subtitle"
)

const usage = `usage: memesrc [command] [flags]

commands:
  serve           run the HTTP server (default)
  extract         cut an episode into frames with ffmpeg
  import-srt      import an SRT subtitle file for an episode
  reset-password  set a new random password for a user
  db-check        run an integrity check and vacuum the database
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "extract":
		err = runExtract(args)
	case "import-srt":
		err = runImportSRT(args)
	case "reset-password":
		err = runResetPassword(args)
	case "db-check":
		err = runDBCheck(args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(cmd+" failed", "err", err)
		os.Exit(1)
	}
}

// common holds the flags every command shares.
type common struct {
	configPath string
	root       string
	db         string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("MEMESRC_CONFIG"), "path to YAML config file")
	fs.StringVar(&c.root, "root", "", "media root directory (overrides config)")
	fs.StringVar(&c.db, "db", "", "database path (overrides config)")
}

// load reads the config, applies flag overrides and installs the logger.
func (c *common) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.root != "" {
		cfg.Media.Root = c.root
	}
	if c.db != "" {
		cfg.Database.Path = c.db
	}
	level, _ := cfg.LogLevel()
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return storage.Open(cfg.Database.Path, storage.Options{
		BusyTimeout: cfg.Database.BusyTimeout,
		Synchronous: cfg.Database.Synchronous,
		CacheSize:   cfg.Database.CacheSize,
	})
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	authManager := auth.NewManager(store, cfg.Auth.SessionDuration, logger)
	password, err := authManager.InitializeAdmin(ctx, cfg.Auth.AdminEmail)
	if err != nil {
		return fmt.Errorf("initialize admin: %w", err)
	}
	if password != "" {
		logger.Warn("created admin account; change this password", "email", cfg.Auth.AdminEmail, "password", password)
	}

	var fallback subtitle.Fallback
	if cfg.Subtitles.FallbackURL != "" {
		fallback = subtitle.NewRESTClient(cfg.Subtitles.FallbackURL, cfg.Subtitles.Timeout)
	}
	subs, err := subtitle.NewService(store, fallback, cfg.Subtitles.CacheSize, logger)
	if err != nil {
		return err
	}

	adTag := ads.NewScriptTag(cfg.Ads.ScriptURL)
	adService := ads.NewService(adTag, logger)
	if cfg.Ads.Enabled {
		if err := adService.Enable(); err != nil {
			return fmt.Errorf("enable ads: %w", err)
		}
	}

	captionOpts := caption.DefaultOptions()
	captionOpts.ReferenceWidth = cfg.Caption.ReferenceWidth
	captionOpts.FontSize = cfg.Caption.FontSize
	captionOpts.LineHeight = 0
	captionOpts.Quality = cfg.Caption.Quality
	rasterizer, err := caption.New(captionOpts)
	if err != nil {
		return err
	}

	borderColor, err := collage.ParseColor(cfg.Collage.BorderColor)
	if err != nil {
		return fmt.Errorf("collage.border_color: %w", err)
	}
	compositor := collage.NewCompositor(collage.Options{
		MaxWidth:    cfg.Collage.MaxWidth,
		Border:      cfg.Collage.Border,
		BorderColor: borderColor,
	}, logger)

	var checkout *billing.Client
	if cfg.Billing.CheckoutURL != "" {
		checkout = billing.NewClient(cfg.Billing.CheckoutURL, cfg.Billing.SupportedRegions, cfg.Billing.Timeout)
	}

	srv, err := server.New(ctx, server.Options{
		Addr:            cfg.Server.Addr,
		Root:            cfg.Media.Root,
		PublicURL:       cfg.Server.PublicURL,
		ScanInterval:    cfg.Media.ScanInterval,
		CORS:            cfg.Server.CORS,
		SearchInterval:  cfg.Search.MinInterval,
		LoginInterval:   cfg.Auth.LoginInterval,
		MaxCollageSlots: cfg.Collage.MaxSlots,
		BoardTTL:        cfg.Collage.BoardTTL,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Store:      store,
		Auth:       authManager,
		Subtitles:  subs,
		Search:     search.NewService(store),
		Prefs:      prefs.NewService(store, cfg.Prefs.Salt),
		Ads:        adService,
		AdTag:      adTag,
		Checkout:   checkout,
		Rasterizer: rasterizer,
		Compositor: compositor,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := srv.Close(); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()
	return srv.Start()
}

// parseEpisode accepts "series-season-episode" and returns it as an ID
// at frame 0.
func parseEpisode(s string) (frame.ID, error) {
	return frame.Parse(s + "-0")
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	var c common
	c.register(fs)
	input := fs.String("input", "", "episode video file")
	episode := fs.String("episode", "", "episode as series-season-episode, e.g. simpsons-5-12")
	fps := fs.Float64("fps", 0, "frames per second (overrides config)")
	width := fs.Int("width", 0, "scale frames to this width")
	_ = fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	ep, err := parseEpisode(*episode)
	if err != nil {
		return fmt.Errorf("-episode: %w", err)
	}
	if *fps > 0 {
		cfg.Media.FPS = *fps
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cwd, _ := os.Getwd()
	ffmpegPath, err := ffmpeg.Locate("ffmpeg", cfg.Media.FFmpegPath, cwd)
	if err != nil {
		return err
	}
	if ffprobePath, err := ffmpeg.Locate("ffprobe", cfg.Media.FFprobePath, cwd); err == nil {
		if d, err := ffmpeg.Duration(ctx, ffprobePath, *input); err == nil {
			logger.Info("extracting", "input", *input, "duration", time.Duration(d*float64(time.Second)).Round(time.Second), "expected_frames", int(d*cfg.Media.FPS))
		}
	}

	res, err := ffmpeg.Extract(ctx, ffmpegPath, ffmpeg.ExtractOptions{
		Input:   *input,
		Root:    cfg.Media.Root,
		Episode: ep,
		FPS:     cfg.Media.FPS,
		Width:   *width,
	})
	if err != nil {
		return err
	}
	logger.Info("extracted", "dir", res.Dir, "frames", res.Frames)
	return nil
}

func runImportSRT(args []string) error {
	fs := flag.NewFlagSet("import-srt", flag.ExitOnError)
	var c common
	c.register(fs)
	file := fs.String("file", "", "SRT file")
	episode := fs.String("episode", "", "episode as series-season-episode, e.g. simpsons-5-12")
	fps := fs.Float64("fps", 0, "frames per second the episode was extracted at (overrides config)")
	_ = fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	ep, err := parseEpisode(*episode)
	if err != nil {
		return fmt.Errorf("-episode: %w", err)
	}
	if *fps > 0 {
		cfg.Media.FPS = *fps
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := subtitle.ImportSRT(context.Background(), store, *file, ep, cfg.Media.FPS)
	if err != nil {
		return err
	}
	logger.Info("imported subtitles", "episode", *episode, "cues", n)
	return nil
}

func runResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	var c common
	c.register(fs)
	email := fs.String("email", "", "account email")
	_ = fs.Parse(args)

	cfg, _, err := c.load()
	if err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	user, err := store.GetUserByEmail(ctx, auth.NormalizeEmail(*email))
	if err != nil {
		return err
	}
	password, err := auth.GeneratePassword()
	if err != nil {
		return err
	}
	manager := auth.NewManager(store, cfg.Auth.SessionDuration, nil)
	if err := manager.ResetPassword(ctx, user.ID, password); err != nil {
		return err
	}
	fmt.Printf("new password for %s: %s\n", user.Email, password)
	return nil
}

func runDBCheck(args []string) error {
	fs := flag.NewFlagSet("db-check", flag.ExitOnError)
	var c common
	c.register(fs)
	vacuum := fs.Bool("vacuum", false, "vacuum after a clean check")
	_ = fs.Parse(args)

	cfg, logger, err := c.load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	results, err := store.IntegrityCheck(ctx)
	if err != nil {
		return err
	}
	if len(results) != 1 || results[0] != "ok" {
		for _, r := range results {
			logger.Error("integrity check", "problem", r)
		}
		return fmt.Errorf("database %s failed integrity check", cfg.Database.Path)
	}
	logger.Info("integrity check ok", "db", cfg.Database.Path)
	if *vacuum {
		if err := store.Vacuum(ctx); err != nil {
			return err
		}
		logger.Info("vacuumed", "db", cfg.Database.Path)
	}
	return nil
}
