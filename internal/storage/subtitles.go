package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/search"
	"github.com/memesrc/memesrc/internal/subtitle"
)

// SubtitleAt returns the subtitle covering id. When cues overlap the one
// that started last wins.
func (s *Store) SubtitleAt(ctx context.Context, id frame.ID) (subtitle.Subtitle, bool, error) {
	if s == nil || s.db == nil {
		return subtitle.Subtitle{}, false, errNoDB
	}

	sub := subtitle.Subtitle{SeriesID: id.SeriesID, Season: id.Season, Episode: id.Episode}
	err := s.db.QueryRowContext(ctx, `
		SELECT start_frame, end_frame, text
		FROM subtitles
		WHERE series_id = ? AND season = ? AND episode = ?
			AND start_frame <= ? AND end_frame >= ?
		ORDER BY start_frame DESC
		LIMIT 1
	`, id.SeriesID, id.Season, id.Episode, id.Frame, id.Frame).Scan(&sub.StartFrame, &sub.EndFrame, &sub.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return subtitle.Subtitle{}, false, nil
	}
	if err != nil {
		return subtitle.Subtitle{}, false, err
	}
	return sub, true, nil
}

// ReplaceEpisodeSubtitles swaps every subtitle of an episode for subs in one
// transaction.
func (s *Store) ReplaceEpisodeSubtitles(ctx context.Context, seriesID string, season, episode int, subs []subtitle.Subtitle) (err error) {
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

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM subtitles WHERE series_id = ? AND season = ? AND episode = ?
	`, seriesID, season, episode); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subtitles (series_id, season, episode, start_frame, end_frame, text)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sub := range subs {
		if _, err = stmt.ExecContext(ctx, seriesID, season, episode, sub.StartFrame, sub.EndFrame, sub.Text); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchSubtitles returns subtitles containing every term of q, matched
// case-insensitively.
func (s *Store) SearchSubtitles(ctx context.Context, q search.Query) ([]subtitle.Subtitle, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	terms := q.Terms()
	if len(terms) == 0 {
		return nil, search.ErrEmptyQuery
	}

	var (
		where []string
		args  []any
	)
	for _, term := range terms {
		where = append(where, `LOWER(text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
	}
	if q.SeriesID != "" {
		where = append(where, "series_id = ?")
		args = append(args, q.SeriesID)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, season, episode, start_frame, end_frame, text
		FROM subtitles
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY series_id, season, episode, start_frame
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subtitle.Subtitle
	for rows.Next() {
		var sub subtitle.Subtitle
		if err := rows.Scan(&sub.SeriesID, &sub.Season, &sub.Episode, &sub.StartFrame, &sub.EndFrame, &sub.Text); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
