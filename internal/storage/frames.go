package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/server"
)

func (s *Store) SaveFrames(ctx context.Context, frames []server.IndexedFrame) (err error) {
	if s == nil || s.db == nil {
		return errNoDB
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (fid, series_id, season, episode, frame, path, size, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fid) DO UPDATE SET
			path=excluded.path,
			size=excluded.size,
			modified=excluded.modified
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err = stmt.ExecContext(ctx,
			f.FID, f.SeriesID, f.Season, f.Episode, f.Frame,
			f.Path, f.Size, f.Modified.Unix(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteFrames(ctx context.Context, fids []string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	// stay well under SQLITE_MAX_VARIABLE_NUMBER
	const batch = 500
	for start := 0; start < len(fids); start += batch {
		end := min(start+batch, len(fids))
		args := make([]any, 0, end-start)
		for _, fid := range fids[start:end] {
			args = append(args, fid)
		}
		query := fmt.Sprintf("DELETE FROM frames WHERE fid IN (%s)", placeholders(len(args)))
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AllFrames(ctx context.Context) ([]server.IndexedFrame, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT fid, series_id, season, episode, frame, path, size, modified
		FROM frames
		ORDER BY series_id, season, episode, frame
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []server.IndexedFrame
	for rows.Next() {
		var (
			f        server.IndexedFrame
			modified int64
		)
		if err := rows.Scan(&f.FID, &f.SeriesID, &f.Season, &f.Episode, &f.Frame, &f.Path, &f.Size, &modified); err != nil {
			return nil, err
		}
		f.Modified = time.Unix(modified, 0).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) RandomFrame(ctx context.Context, seriesID string) (frame.ID, bool, error) {
	if s == nil || s.db == nil {
		return frame.ID{}, false, errNoDB
	}

	var id frame.ID
	err := s.db.QueryRowContext(ctx, `
		SELECT series_id, season, episode, frame
		FROM frames
		WHERE ? = '' OR series_id = ?
		ORDER BY RANDOM()
		LIMIT 1
	`, seriesID, seriesID).Scan(&id.SeriesID, &id.Season, &id.Episode, &id.Frame)
	if errors.Is(err, sql.ErrNoRows) {
		return frame.ID{}, false, nil
	}
	if err != nil {
		return frame.ID{}, false, err
	}
	return id, true, nil
}

func (s *Store) ListSeries(ctx context.Context) ([]server.Series, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id,
			COUNT(DISTINCT season),
			COUNT(DISTINCT season || '-' || episode),
			COUNT(*)
		FROM frames
		GROUP BY series_id
		ORDER BY series_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []server.Series
	for rows.Next() {
		var sr server.Series
		if err := rows.Scan(&sr.ID, &sr.Seasons, &sr.Episodes, &sr.Frames); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *Store) StartScanRun(ctx context.Context, root string, startedAt time.Time) (server.ScanRun, error) {
	if s == nil || s.db == nil {
		return server.ScanRun{}, errNoDB
	}
	run := server.ScanRun{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: startedAt.UTC(),
		Status:    server.ScanRunning,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, root, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Root, run.StartedAt.Unix(), run.Status)
	if err != nil {
		return server.ScanRun{}, err
	}
	return run, nil
}

func (s *Store) FinishScanRun(ctx context.Context, id string, finishedAt time.Time, frames int) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs SET finished_at = ?, status = ?, frames = ? WHERE id = ?
	`, finishedAt.Unix(), server.ScanFinished, frames, id)
	return err
}

func (s *Store) FailScanRun(ctx context.Context, id string, finishedAt time.Time, errMsg string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs SET finished_at = ?, status = ?, error = ? WHERE id = ?
	`, finishedAt.Unix(), server.ScanFailed, nullString(errMsg), id)
	return err
}

func (s *Store) LastScanRun(ctx context.Context) (server.ScanRun, bool, error) {
	if s == nil || s.db == nil {
		return server.ScanRun{}, false, errNoDB
	}

	var (
		run        server.ScanRun
		startedAt  int64
		finishedAt sql.NullInt64
		errMsg     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, root, started_at, finished_at, status, frames, error
		FROM scan_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Root, &startedAt, &finishedAt, &run.Status, &run.Frames, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return server.ScanRun{}, false, nil
	}
	if err != nil {
		return server.ScanRun{}, false, err
	}
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = timeFromNull(finishedAt)
	run.Error = errMsg.String
	return run, true, nil
}
