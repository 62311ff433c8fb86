package subtitle

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/memesrc/memesrc/internal/frame"
)

// Unavailable is returned in place of subtitle text when no source has it.
const Unavailable = "Subtitle unavailable"

// Subtitle is a line of dialog spanning a range of frames of one episode.
type Subtitle struct {
	SeriesID   string `json:"seriesId"`
	Season     int    `json:"season"`
	Episode    int    `json:"episode"`
	StartFrame int    `json:"startFrame"`
	EndFrame   int    `json:"endFrame"`
	Text       string `json:"text"`
}

// Covers reports whether the subtitle is on screen for id.
func (s Subtitle) Covers(id frame.ID) bool {
	return s.SeriesID == id.SeriesID && s.Season == id.Season && s.Episode == id.Episode &&
		s.StartFrame <= id.Frame && id.Frame <= s.EndFrame
}

// MiddleFrame is the identifier of the frame halfway through the subtitle.
func (s Subtitle) MiddleFrame() frame.ID {
	return frame.ID{
		SeriesID: s.SeriesID,
		Season:   s.Season,
		Episode:  s.Episode,
		Frame:    s.StartFrame + (s.EndFrame-s.StartFrame)/2,
	}
}

// Store is the primary subtitle source.
type Store interface {
	SubtitleAt(ctx context.Context, id frame.ID) (Subtitle, bool, error)
}

// Fallback is consulted when the primary store has nothing.
type Fallback interface {
	Subtitle(ctx context.Context, fid string) (string, error)
}

// Service resolves subtitle text for a frame. It never fails: when neither
// the store nor the fallback can answer it returns Unavailable.
type Service struct {
	store    Store
	fallback Fallback
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// NewService builds a Service. fallback may be nil; cacheSize <= 0 disables
// caching.
func NewService(store Store, fallback Fallback, cacheSize int, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, fallback: fallback, logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Lookup returns the subtitle text on screen at fid.
func (s *Service) Lookup(ctx context.Context, fid string) string {
	if s.cache != nil {
		if text, ok := s.cache.Get(fid); ok {
			return text
		}
	}

	id, err := frame.Parse(fid)
	if err != nil {
		return Unavailable
	}

	if s.store != nil {
		sub, ok, err := s.store.SubtitleAt(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("subtitle store lookup failed", "fid", fid, "err", err)
		case ok:
			s.remember(fid, sub.Text)
			return sub.Text
		}
	}

	if s.fallback != nil {
		text, err := s.fallback.Subtitle(ctx, fid)
		if err != nil {
			s.logger.Warn("subtitle fallback failed", "fid", fid, "err", err)
		} else if text != "" {
			s.remember(fid, text)
			return text
		}
	}

	return Unavailable
}

func (s *Service) remember(fid, text string) {
	if s.cache != nil {
		s.cache.Add(fid, text)
	}
}

// Forget drops cached entries, used after subtitles are re-imported.
func (s *Service) Forget() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
