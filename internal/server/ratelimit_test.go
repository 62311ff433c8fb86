package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2 * time.Second)
	rl.now = func() time.Time { return now }

	if ok, _ := rl.Allow("a"); !ok {
		t.Fatalf("first request rejected")
	}
	ok, wait := rl.Allow("a")
	if ok || wait != 2*time.Second {
		t.Fatalf("second request = %v, %v", ok, wait)
	}
	if ok, _ := rl.Allow("b"); !ok {
		t.Fatalf("other key rejected")
	}

	now = now.Add(1500 * time.Millisecond)
	if ok, wait := rl.Allow("a"); ok || wait != 500*time.Millisecond {
		t.Fatalf("early request = %v, %v", ok, wait)
	}
	now = now.Add(time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatalf("request after interval rejected")
	}

	now = now.Add(time.Minute)
	rl.Prune()
	if len(rl.lastSeen) != 0 {
		t.Fatalf("prune left %d keys", len(rl.lastSeen))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	for _, rl := range []*RateLimiter{nilLimiter, NewRateLimiter(0)} {
		for i := 0; i < 3; i++ {
			if ok, _ := rl.Allow("a"); !ok {
				t.Fatalf("disabled limiter rejected request %d", i)
			}
		}
		rl.Prune()
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		auth   string
		remote string
		want   string
	}{
		{name: "bearer", auth: "Bearer abc", remote: "10.0.0.1:5000", want: "t:abc"},
		{name: "lowercase scheme", auth: "bearer abc", remote: "10.0.0.1:5000", want: "t:abc"},
		{name: "basic ignored", auth: "Basic abc", remote: "10.0.0.1:5000", want: "ip:10.0.0.1"},
		{name: "no port", remote: "10.0.0.2", want: "ip:10.0.0.2"},
		{name: "ipv6", remote: "[::1]:80", want: "ip:::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			if got := clientKey(r); got != tt.want {
				t.Fatalf("clientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchClientKey(t *testing.T) {
	tests := []struct {
		name     string
		auth     string
		clientID string
		want     string
	}{
		{name: "bearer wins", auth: "Bearer abc", clientID: "tab-1", want: "t:abc"},
		{name: "client id", clientID: " tab-1 ", want: "c:tab-1"},
		{name: "anonymous", want: ""},
		{name: "oversized client id", clientID: strings.Repeat("x", 129), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			if tt.clientID != "" {
				r.Header.Set(clientIDHeader, tt.clientID)
			}
			if got := searchClientKey(r); got != tt.want {
				t.Fatalf("searchClientKey() = %q, want %q", got, tt.want)
			}
		})
	}

	// two signed-out callers behind one address do not share a key
	a := httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil)
	b := httptest.NewRequest(http.MethodGet, "/api/search?q=y", nil)
	a.Header.Set(clientIDHeader, "tab-a")
	b.Header.Set(clientIDHeader, "tab-b")
	if a.RemoteAddr != b.RemoteAddr || searchClientKey(a) == searchClientKey(b) {
		t.Fatalf("distinct tabs share search key %q", searchClientKey(a))
	}
}

func TestRequestRegion(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if got := requestRegion(r, ""); got != "" {
		t.Fatalf("no region = %q", got)
	}
	r.Header.Set("X-Country-Code", "DE")
	if got := requestRegion(r, ""); got != "DE" {
		t.Fatalf("fallback header = %q", got)
	}
	r.Header.Set("CF-IPCountry", "FR")
	if got := requestRegion(r, ""); got != "FR" {
		t.Fatalf("edge header = %q", got)
	}
	if got := requestRegion(r, " us "); got != "us" {
		t.Fatalf("body region = %q", got)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			if got := rec.Header().Get("Retry-After"); got != "60" {
				t.Fatalf("Retry-After = %q, want 60", got)
			}
			if !strings.Contains(rec.Body.String(), "too many requests") {
				t.Fatalf("body = %q", rec.Body.String())
			}
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
