package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var errNoDB = errors.New("storage: missing database connection")

type Store struct {
	db       *sql.DB
	readOnly bool
}

type Options struct {
	BusyTimeout time.Duration
	Synchronous string
	CacheSize   int
	ReadOnly    bool
}

// sqliteDSN builds the connection string. Per-connection pragmas go into
// the DSN so every pooled connection gets them.
func sqliteDSN(path string, options Options) (string, error) {
	if path == ":memory:" {
		if options.ReadOnly {
			return "", fmt.Errorf("storage: read-only mode requires a file-backed database")
		}
		return path, nil
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	if options.ReadOnly {
		query.Set("mode", "ro")
	}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", int(options.BusyTimeout/time.Millisecond)))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func Open(path string, options Options) (*Store, error) {
	dsn, err := sqliteDSN(path, options)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA foreign_keys=ON"}
	if !options.ReadOnly {
		synchronous := options.Synchronous
		if synchronous == "" {
			synchronous = "NORMAL"
		}
		pragmas = append(pragmas,
			"PRAGMA journal_mode=WAL",
			fmt.Sprintf("PRAGMA synchronous=%s", synchronous),
			"PRAGMA journal_size_limit=67108864",
		)
	}
	pragmas = append(pragmas,
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(options.BusyTimeout/time.Millisecond)),
		"PRAGMA temp_store=MEMORY",
	)
	if options.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size=%d", options.CacheSize))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: %s: %w", p, err)
		}
	}

	store := &Store{db: db, readOnly: options.ReadOnly}
	if !options.ReadOnly {
		if err := store.MigrateSchema(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ReadOnly() bool {
	if s == nil {
		return false
	}
	return s.readOnly
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

// IntegrityCheck runs PRAGMA integrity_check and returns its report lines.
// A healthy database reports a single "ok".
func (s *Store) IntegrityCheck(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *Store) Vacuum(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullInt64FromTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
