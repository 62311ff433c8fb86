package prefs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Anonymous is the namespace of signed-out users.
const Anonymous = "anonymous"

var (
	ErrUnknownKey   = errors.New("prefs: unknown key")
	ErrInvalidValue = errors.New("prefs: invalid value")
)

const (
	CollageVersion  = "collageVersion"
	BannerDismissed = "bannerDismissed"
)

type definition struct {
	def     string
	allowed []string
}

var known = map[string]definition{
	CollageVersion:  {def: "v2", allowed: []string{"v1", "v2"}},
	BannerDismissed: {def: "false", allowed: []string{"true", "false"}},
}

// Namespace derives the storage namespace of a user. It keeps the email out
// of stored keys; it is not meant to be a secure hash.
func Namespace(salt, email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Anonymous
	}
	sum := sha256.Sum256([]byte(salt + email))
	return hex.EncodeToString(sum[:8])
}

// Store persists preference values.
type Store interface {
	GetPreference(ctx context.Context, namespace, key string) (string, bool, error)
	SetPreference(ctx context.Context, namespace, key, value string) error
	ListPreferences(ctx context.Context, namespace string) (map[string]string, error)
}

type Service struct {
	store Store
	salt  string
}

func NewService(store Store, salt string) *Service {
	return &Service{store: store, salt: salt}
}

func lookup(key string) (definition, error) {
	d, ok := known[key]
	if !ok {
		return definition{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return d, nil
}

// Get returns the stored value or the key's default.
func (s *Service) Get(ctx context.Context, email, key string) (string, error) {
	d, err := lookup(key)
	if err != nil {
		return "", err
	}
	v, ok, err := s.store.GetPreference(ctx, Namespace(s.salt, email), key)
	if err != nil {
		return "", err
	}
	if !ok {
		return d.def, nil
	}
	return v, nil
}

func (s *Service) Set(ctx context.Context, email, key, value string) error {
	d, err := lookup(key)
	if err != nil {
		return err
	}
	valid := false
	for _, a := range d.allowed {
		if a == value {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}
	return s.store.SetPreference(ctx, Namespace(s.salt, email), key, value)
}

// All returns every known preference with defaults filled in.
func (s *Service) All(ctx context.Context, email string) (map[string]string, error) {
	stored, err := s.store.ListPreferences(ctx, Namespace(s.salt, email))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(known))
	for key, d := range known {
		if v, ok := stored[key]; ok {
			out[key] = v
			continue
		}
		out[key] = d.def
	}
	return out, nil
}
