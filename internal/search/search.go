package search

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/subtitle"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var (
	ErrEmptyQuery = errors.New("search: empty query")
	// ErrSuperseded is returned to a search replaced by a newer one from the
	// same client before it finished.
	ErrSuperseded = errors.New("search: superseded by a newer query")
)

type Query struct {
	Text     string `json:"q"`
	SeriesID string `json:"series,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Terms splits the query into lower-cased words.
func (q Query) Terms() []string {
	return strings.Fields(strings.ToLower(q.Text))
}

type Hit struct {
	frame.Descriptor
	Text string `json:"text"`
}

// Index is the subtitle and frame index searched.
type Index interface {
	SearchSubtitles(ctx context.Context, q Query) ([]subtitle.Subtitle, error)
	RandomFrame(ctx context.Context, seriesID string) (frame.ID, bool, error)
}

type inflight struct {
	token  uint64
	cancel context.CancelCauseFunc
}

// Service runs searches. At most one search per client key is in flight: a
// new search cancels the previous one, whose caller gets ErrSuperseded.
type Service struct {
	index Index

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

func NewService(index Index) *Service {
	return &Service{
		index:    index,
		inflight: make(map[string]inflight),
	}
}

func normalize(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.SeriesID = strings.TrimSpace(q.SeriesID)
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q, nil
}

// Search returns subtitles matching every term of q, each reported at the
// middle frame of the subtitle. A newer search with the same non-empty
// clientKey cancels this one with ErrSuperseded.
func (s *Service) Search(ctx context.Context, clientKey string, q Query) ([]Hit, error) {
	q, err := normalize(q)
	if err != nil {
		return nil, err
	}

	ctx, token := s.begin(ctx, clientKey)
	defer s.end(clientKey, token)

	subs, err := s.index.SearchSubtitles(ctx, q)
	if errors.Is(context.Cause(ctx), ErrSuperseded) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(subs))
	for _, sub := range subs {
		hits = append(hits, Hit{
			Descriptor: frame.Describe(sub.MiddleFrame()),
			Text:       sub.Text,
		})
	}
	return hits, nil
}

// begin registers a search for key, cancelling the one it replaces. An
// empty key never supersedes anything.
func (s *Service) begin(ctx context.Context, key string) (context.Context, uint64) {
	if key == "" {
		return ctx, 0
	}
	ctx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.seq++
	s.inflight[key] = inflight{token: s.seq, cancel: cancel}
	return ctx, s.seq
}

func (s *Service) end(key string, token uint64) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.inflight[key]
	if !ok || cur.token != token {
		return
	}
	cur.cancel(nil)
	delete(s.inflight, key)
}

// Random picks a random indexed frame, optionally within one series.
func (s *Service) Random(ctx context.Context, seriesID string) (frame.Descriptor, bool, error) {
	id, ok, err := s.index.RandomFrame(ctx, strings.TrimSpace(seriesID))
	if err != nil || !ok {
		return frame.Descriptor{}, ok, err
	}
	return frame.Describe(id), true, nil
}
