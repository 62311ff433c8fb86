package prefs

import (
	"context"
	"errors"
	"testing"
)

type memStore map[string]map[string]string

func (m memStore) GetPreference(_ context.Context, ns, key string) (string, bool, error) {
	v, ok := m[ns][key]
	return v, ok, nil
}

func (m memStore) SetPreference(_ context.Context, ns, key, value string) error {
	if m[ns] == nil {
		m[ns] = map[string]string{}
	}
	m[ns][key] = value
	return nil
}

func (m memStore) ListPreferences(_ context.Context, ns string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m[ns] {
		out[k] = v
	}
	return out, nil
}

func TestNamespace(t *testing.T) {
	a := Namespace("salt", "User@Example.com ")
	b := Namespace("salt", "user@example.com")
	if a != b {
		t.Fatalf("namespace should ignore case and spaces: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("namespace length = %d, want 16", len(a))
	}
	if Namespace("other", "user@example.com") == a {
		t.Fatal("salt must change the namespace")
	}
	if Namespace("salt", "") != Anonymous || Namespace("salt", "   ") != Anonymous {
		t.Fatal("empty email must map to the anonymous namespace")
	}
}

func TestServiceDefaultsAndSet(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	svc := NewService(store, "pepper")

	v, err := svc.Get(ctx, "a@b.c", CollageVersion)
	if err != nil || v != "v2" {
		t.Fatalf("Get() = %q, %v; want default v2", v, err)
	}

	if err := svc.Set(ctx, "a@b.c", CollageVersion, "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := svc.Get(ctx, "A@B.C", CollageVersion); v != "v1" {
		t.Fatalf("Get() = %q, want v1", v)
	}
	if v, _ := svc.Get(ctx, "", CollageVersion); v != "v2" {
		t.Fatalf("anonymous Get() = %q, want default", v)
	}
	if _, ok := store[Namespace("pepper", "a@b.c")]; !ok {
		t.Fatal("value not stored under the hashed namespace")
	}

	all, err := svc.All(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if all[CollageVersion] != "v1" || all[BannerDismissed] != "false" {
		t.Fatalf("All() = %v", all)
	}
}

func TestServiceRejects(t *testing.T) {
	svc := NewService(memStore{}, "")
	if err := svc.Set(context.Background(), "", "theme", "dark"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Set(unknown) error = %v", err)
	}
	if err := svc.Set(context.Background(), "", BannerDismissed, "yes"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Set(invalid) error = %v", err)
	}
	if _, err := svc.Get(context.Background(), "", "theme"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("Get(unknown) error = %v", err)
	}
}
