package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/memesrc/memesrc/internal/frame"
)

// Library indexes the frame images under the media root. Only files laid
// out as {series}/img/{season}/{episode}/{fid}.jpg whose name agrees with
// its directory are indexed.
type Library struct {
	root   string
	store  FrameStore
	logger *slog.Logger

	scanMu sync.Mutex // one scan at a time

	mu       sync.RWMutex
	frames   map[string]IndexedFrame
	lastScan time.Time
}

func NewLibrary(ctx context.Context, root string, store FrameStore, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	frames := map[string]IndexedFrame{}
	if store != nil {
		stored, err := store.AllFrames(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range stored {
			frames[f.FID] = f
		}
	}
	return &Library{
		root:   root,
		store:  store,
		logger: logger,
		frames: frames,
	}, nil
}

func (l *Library) Root() string { return l.root }

// Scan walks the media root and persists what changed since the previous
// scan. Unreadable entries are skipped and reported in the joined error.
func (l *Library) Scan(ctx context.Context) error {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	start := time.Now()
	found := map[string]IndexedFrame{}
	var (
		scanErrs  []error
		scanRunID string
		totalSize uint64
	)
	writable := l.store != nil && !l.store.ReadOnly()
	if writable {
		run, err := l.store.StartScanRun(ctx, l.root, start)
		if err != nil {
			scanErrs = append(scanErrs, err)
		} else {
			scanRunID = run.ID
		}
	}

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			scanErrs = append(scanErrs, err)
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".jpg") {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}
		id, err := frame.ParseImagePath("/" + filepath.ToSlash(rel))
		if err != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			scanErrs = append(scanErrs, err)
			return nil
		}
		fid := id.String()
		found[fid] = IndexedFrame{
			ID:       id,
			FID:      fid,
			Path:     path,
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Truncate(time.Second),
		}
		totalSize += uint64(info.Size())
		return nil
	})
	if err != nil {
		scanErrs = append(scanErrs, err)
	}

	l.mu.Lock()
	previous := l.frames
	l.frames = found
	l.lastScan = time.Now()
	l.mu.Unlock()

	if writable {
		if gone := removedFIDs(previous, found); len(gone) > 0 {
			if err := l.store.DeleteFrames(ctx, gone); err != nil {
				scanErrs = append(scanErrs, err)
			}
		}
		if changed := changedFrames(found, previous); len(changed) > 0 {
			if err := l.store.SaveFrames(ctx, changed); err != nil {
				scanErrs = append(scanErrs, err)
			}
		}
	}

	scanErr := errors.Join(scanErrs...)
	if scanRunID != "" {
		// record the outcome even when ctx was canceled mid-walk
		rctx := context.WithoutCancel(ctx)
		finishedAt := time.Now()
		var err error
		if scanErr != nil {
			err = l.store.FailScanRun(rctx, scanRunID, finishedAt, scanErr.Error())
		} else {
			err = l.store.FinishScanRun(rctx, scanRunID, finishedAt, len(found))
		}
		if err != nil {
			scanErr = errors.Join(scanErr, err)
		}
	}

	l.logger.Info("library scan",
		"root", l.root,
		"frames", len(found),
		"size", humanize.Bytes(totalSize),
		"duration", time.Since(start),
		"errors", len(scanErrs),
	)
	return scanErr
}

// Get returns the indexed frame for fid.
func (l *Library) Get(fid string) (IndexedFrame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.frames[fid]
	return f, ok
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.frames)
}

func (l *Library) LastScan() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastScan
}

// All returns the indexed frames ordered by series, season, episode and
// frame number.
func (l *Library) All() []IndexedFrame {
	l.mu.RLock()
	out := make([]IndexedFrame, 0, len(l.frames))
	for _, f := range l.frames {
		out = append(out, f)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SeriesID != b.SeriesID {
			return a.SeriesID < b.SeriesID
		}
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		if a.Episode != b.Episode {
			return a.Episode < b.Episode
		}
		return a.Frame < b.Frame
	})
	return out
}

// Series summarizes the index per series.
func (l *Library) Series() []Series {
	type key struct{ season, episode int }
	seasons := map[string]map[int]bool{}
	episodes := map[string]map[key]bool{}
	counts := map[string]int{}

	l.mu.RLock()
	for _, f := range l.frames {
		if seasons[f.SeriesID] == nil {
			seasons[f.SeriesID] = map[int]bool{}
			episodes[f.SeriesID] = map[key]bool{}
		}
		seasons[f.SeriesID][f.Season] = true
		episodes[f.SeriesID][key{f.Season, f.Episode}] = true
		counts[f.SeriesID]++
	}
	l.mu.RUnlock()

	out := make([]Series, 0, len(counts))
	for id, n := range counts {
		out = append(out, Series{ID: id, Seasons: len(seasons[id]), Episodes: len(episodes[id]), Frames: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func changedFrames(found, previous map[string]IndexedFrame) []IndexedFrame {
	out := make([]IndexedFrame, 0, len(found))
	for fid, f := range found {
		prev, ok := previous[fid]
		if !ok || !indexedFrameEqual(f, prev) {
			out = append(out, f)
		}
	}
	return out
}

func removedFIDs(previous, found map[string]IndexedFrame) []string {
	out := make([]string, 0)
	for fid := range previous {
		if _, ok := found[fid]; !ok {
			out = append(out, fid)
		}
	}
	return out
}

func indexedFrameEqual(a, b IndexedFrame) bool {
	return a.FID == b.FID &&
		a.Path == b.Path &&
		a.Size == b.Size &&
		a.Modified.Equal(b.Modified)
}
