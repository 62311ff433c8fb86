package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) GetPreference(ctx context.Context, namespace, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errNoDB
	}
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM user_preferences WHERE namespace = ? AND key = ?
	`, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetPreference(ctx context.Context, namespace, key, value string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`, namespace, key, value, time.Now().Unix())
	return err
}

func (s *Store) ListPreferences(ctx context.Context, namespace string) (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM user_preferences WHERE namespace = ?
	`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
