package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/memesrc/memesrc/internal/auth"
)

const userColumns = `id, email, password_hash, is_admin, tier, created_at, last_login`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		user      auth.User
		tier      string
		createdAt int64
		lastLogin sql.NullInt64
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &tier, &createdAt, &lastLogin); err != nil {
		return nil, err
	}
	user.Tier = auth.Tier(tier)
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.LastLogin = timeFromNull(lastLogin)
	return &user, nil
}

func tierOrFree(t auth.Tier) string {
	if t == "" {
		return string(auth.TierFree)
	}
	return string(t)
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.IsAdmin, tierOrFree(user.Tier),
		user.CreatedAt.Unix(), nullInt64FromTime(user.LastLogin))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return auth.ErrUserExists
	}
	return err
}

func (s *Store) getUser(ctx context.Context, column, value string) (*auth.User, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM auth_users WHERE `+column+` = ?`, value)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	return user, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *Store) UpdateUser(ctx context.Context, user auth.User) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_users
		SET email = ?, password_hash = ?, is_admin = ?, tier = ?, last_login = ?
		WHERE id = ?
	`, user.Email, user.PasswordHash, user.IsAdmin, tierOrFree(user.Tier), nullInt64FromTime(user.LastLogin), user.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = ?`, id)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM auth_users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNoDB
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&count)
	return count, err
}

func (s *Store) CreateSession(ctx context.Context, session auth.Session) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, session.Token, session.UserID, session.CreatedAt.Unix(), session.ExpiresAt.Unix())
	return err
}

// GetSession loads a session together with its user's current email,
// admin flag and tier.
func (s *Store) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}

	var (
		session              auth.Session
		tier                 string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.token, s.user_id, u.email, u.is_admin, u.tier, s.created_at, s.expires_at
		FROM auth_sessions s
		JOIN auth_users u ON u.id = s.user_id
		WHERE s.token = ?
	`, token).Scan(&session.Token, &session.UserID, &session.Email, &session.IsAdmin, &tier, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	session.Tier = auth.Tier(tier)
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token = ?`, token)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = ?`, userID)
	return err
}

func (s *Store) CleanExpiredSessions(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now().Unix())
	return err
}
