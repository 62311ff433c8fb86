package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidTier        = errors.New("invalid tier")
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPro:
		return TierPro, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// User is an account. Email is stored lower-cased.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin,omitempty"`
}

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	Tier      Tier      `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Pro reports whether the session belongs to a paying user.
func (s *Session) Pro() bool {
	return s != nil && s.Tier == TierPro
}

type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int, error)

	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	CleanExpiredSessions(ctx context.Context) error
}

type Manager struct {
	store           Store
	sessionDuration time.Duration
	sessionCache    *SessionCache
	logger          *slog.Logger
}

func NewManager(store Store, sessionDuration time.Duration, logger *slog.Logger) *Manager {
	if sessionDuration == 0 {
		sessionDuration = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:           store,
		sessionDuration: sessionDuration,
		sessionCache:    NewSessionCache(1024, 5*time.Minute),
		logger:          logger,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GeneratePassword returns a random 22 character password.
func GeneratePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:22], nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// InitializeAdmin creates the admin account when the user table is empty
// and returns its generated password. It returns "" when users exist.
func (m *Manager) InitializeAdmin(ctx context.Context, email string) (string, error) {
	count, err := m.store.CountUsers(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}

	password, err := GeneratePassword()
	if err != nil {
		return "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	admin := User{
		ID:           "admin",
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		IsAdmin:      true,
		Tier:         TierPro,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.CreateUser(ctx, admin); err != nil {
		return "", err
	}
	return password, nil
}

func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	user.LastLogin = now
	if err := m.store.UpdateUser(ctx, *user); err != nil {
		m.logger.Warn("update last login", "user", user.ID, "err", err)
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	session := Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
		Tier:      user.Tier,
		CreatedAt: now,
		ExpiresAt: now.Add(m.sessionDuration),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	m.sessionCache.Set(&session)
	return &session, nil
}

func (m *Manager) Logout(ctx context.Context, token string) error {
	m.sessionCache.Delete(token)
	return m.store.DeleteSession(ctx, token)
}

func (m *Manager) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if session, ok := m.sessionCache.Get(token); ok {
		return session, nil
	}

	session, err := m.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		_ = m.store.DeleteSession(ctx, token)
		return nil, ErrTokenExpired
	}
	m.sessionCache.Set(session)
	return session, nil
}

func (m *Manager) CreateUser(ctx context.Context, email, password string, isAdmin bool) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if existing, err := m.store.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		Tier:         TierFree,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetTier changes a user's tier. Cached sessions for the user are dropped
// so the next request sees the new tier.
func (m *Manager) SetTier(ctx context.Context, userID string, tier Tier) (*User, error) {
	if _, err := ParseTier(string(tier)); err != nil {
		return nil, err
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Tier = tier
	if err := m.store.UpdateUser(ctx, *user); err != nil {
		return nil, err
	}
	m.sessionCache.DeleteByUserID(userID)
	return user, nil
}

func (m *Manager) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return m.setPassword(ctx, user, newPassword)
}

func (m *Manager) ResetPassword(ctx context.Context, userID, newPassword string) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return m.setPassword(ctx, user, newPassword)
}

func (m *Manager) setPassword(ctx context.Context, user *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := m.store.UpdateUser(ctx, *user); err != nil {
		return err
	}
	m.sessionCache.DeleteByUserID(user.ID)
	return m.store.DeleteUserSessions(ctx, user.ID)
}

func (m *Manager) DeleteUser(ctx context.Context, userID string) error {
	m.sessionCache.DeleteByUserID(userID)
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	return m.store.DeleteUser(ctx, userID)
}

func (m *Manager) ListUsers(ctx context.Context) ([]User, error) {
	return m.store.ListUsers(ctx)
}

func (m *Manager) CleanupExpiredSessions(ctx context.Context) error {
	return m.store.CleanExpiredSessions(ctx)
}
