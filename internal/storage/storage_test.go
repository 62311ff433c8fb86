package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/memesrc/memesrc/internal/auth"
	"github.com/memesrc/memesrc/internal/frame"
	"github.com/memesrc/memesrc/internal/search"
	"github.com/memesrc/memesrc/internal/server"
	"github.com/memesrc/memesrc/internal/subtitle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:", Options{BusyTimeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestMigrateSchema(t *testing.T) {
	store := newTestStore(t)

	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan sqlite_master: %v", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("sqlite_master rows: %v", err)
	}
	rows.Close()

	for _, table := range []string{"schema_migrations", "frames", "subtitles", "auth_users", "auth_sessions", "user_preferences", "scan_runs"} {
		if !found[table] {
			t.Fatalf("expected table %q to exist", table)
		}
	}

	var version int
	if err := store.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("unexpected schema version: got %d want %d", version, len(migrations))
	}

	if err := store.MigrateSchema(); err != nil {
		t.Fatalf("second MigrateSchema() error = %v", err)
	}
}

func indexed(fid string, size int64) server.IndexedFrame {
	id, err := frame.Parse(fid)
	if err != nil {
		panic(err)
	}
	return server.IndexedFrame{ID: id, FID: fid, Path: "/media/" + fid + ".jpg", Size: size, Modified: time.Unix(1700000000, 0).UTC()}
}

func TestFramesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	frames := []server.IndexedFrame{
		indexed("simpsons-1-1-10", 100),
		indexed("simpsons-1-2-5", 200),
		indexed("seinfeld-3-4-1", 300),
	}
	if err := store.SaveFrames(ctx, frames); err != nil {
		t.Fatalf("SaveFrames() error = %v", err)
	}
	// upsert
	if err := store.SaveFrames(ctx, []server.IndexedFrame{indexed("simpsons-1-1-10", 111)}); err != nil {
		t.Fatalf("SaveFrames() upsert error = %v", err)
	}

	all, err := store.AllFrames(ctx)
	if err != nil {
		t.Fatalf("AllFrames() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("AllFrames() len = %d, want 3", len(all))
	}
	if all[0].FID != "seinfeld-3-4-1" {
		t.Fatalf("AllFrames()[0] = %q, want seinfeld first", all[0].FID)
	}
	for _, f := range all {
		if f.FID == "simpsons-1-1-10" && f.Size != 111 {
			t.Fatalf("upserted size = %d, want 111", f.Size)
		}
	}

	series, err := store.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	want := []server.Series{
		{ID: "seinfeld", Seasons: 1, Episodes: 1, Frames: 1},
		{ID: "simpsons", Seasons: 1, Episodes: 2, Frames: 2},
	}
	if len(series) != len(want) {
		t.Fatalf("ListSeries() = %+v", series)
	}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("ListSeries()[%d] = %+v, want %+v", i, series[i], want[i])
		}
	}

	id, ok, err := store.RandomFrame(ctx, "seinfeld")
	if err != nil || !ok {
		t.Fatalf("RandomFrame() = %v, %v, %v", id, ok, err)
	}
	if id.String() != "seinfeld-3-4-1" {
		t.Fatalf("RandomFrame() = %s", id)
	}
	if _, ok, _ := store.RandomFrame(ctx, "friends"); ok {
		t.Fatal("RandomFrame() found a frame for an unknown series")
	}
	if _, ok, _ := store.RandomFrame(ctx, ""); !ok {
		t.Fatal("RandomFrame() over all series found nothing")
	}

	if err := store.DeleteFrames(ctx, []string{"simpsons-1-2-5", "seinfeld-3-4-1"}); err != nil {
		t.Fatalf("DeleteFrames() error = %v", err)
	}
	all, err = store.AllFrames(ctx)
	if err != nil {
		t.Fatalf("AllFrames() error = %v", err)
	}
	if len(all) != 1 || all[0].FID != "simpsons-1-1-10" {
		t.Fatalf("AllFrames() after delete = %+v", all)
	}
}

func TestScanRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, ok, err := store.LastScanRun(ctx); err != nil || ok {
		t.Fatalf("LastScanRun() on empty db = %v, %v", ok, err)
	}

	started := time.Unix(1700000000, 0)
	run, err := store.StartScanRun(ctx, "/media", started)
	if err != nil {
		t.Fatalf("StartScanRun() error = %v", err)
	}
	if err := store.FinishScanRun(ctx, run.ID, started.Add(time.Minute), 42); err != nil {
		t.Fatalf("FinishScanRun() error = %v", err)
	}

	failed, err := store.StartScanRun(ctx, "/media", started.Add(time.Hour))
	if err != nil {
		t.Fatalf("StartScanRun() error = %v", err)
	}
	if err := store.FailScanRun(ctx, failed.ID, started.Add(2*time.Hour), "permission denied"); err != nil {
		t.Fatalf("FailScanRun() error = %v", err)
	}

	last, ok, err := store.LastScanRun(ctx)
	if err != nil || !ok {
		t.Fatalf("LastScanRun() = %v, %v", ok, err)
	}
	if last.ID != failed.ID || last.Status != server.ScanFailed || last.Error != "permission denied" {
		t.Fatalf("LastScanRun() = %+v", last)
	}
}

func TestSubtitles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	subs := []subtitle.Subtitle{
		{StartFrame: 1, EndFrame: 20, Text: "Mmm... donuts."},
		{StartFrame: 21, EndFrame: 40, Text: "D'oh!"},
		{StartFrame: 41, EndFrame: 60, Text: "100% pure donuts"},
	}
	if err := store.ReplaceEpisodeSubtitles(ctx, "simpsons", 1, 1, subs); err != nil {
		t.Fatalf("ReplaceEpisodeSubtitles() error = %v", err)
	}

	got, ok, err := store.SubtitleAt(ctx, frame.ID{SeriesID: "simpsons", Season: 1, Episode: 1, Frame: 21})
	if err != nil || !ok {
		t.Fatalf("SubtitleAt() = %v, %v", ok, err)
	}
	if got.Text != "D'oh!" || got.SeriesID != "simpsons" {
		t.Fatalf("SubtitleAt() = %+v", got)
	}
	if _, ok, _ := store.SubtitleAt(ctx, frame.ID{SeriesID: "simpsons", Season: 1, Episode: 1, Frame: 61}); ok {
		t.Fatal("SubtitleAt() found a subtitle past the last cue")
	}

	tests := []struct {
		name  string
		query search.Query
		want  int
	}{
		{"single term", search.Query{Text: "donuts"}, 2},
		{"all terms", search.Query{Text: "pure DONUTS"}, 1},
		{"percent is literal", search.Query{Text: "100%"}, 1},
		{"underscore is literal", search.Query{Text: "d_oh"}, 0},
		{"series filter", search.Query{Text: "donuts", SeriesID: "seinfeld"}, 0},
		{"limit", search.Query{Text: "donuts", Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := store.SearchSubtitles(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchSubtitles() error = %v", err)
			}
			if len(hits) != tt.want {
				t.Fatalf("SearchSubtitles() = %d hits, want %d", len(hits), tt.want)
			}
		})
	}

	if err := store.ReplaceEpisodeSubtitles(ctx, "simpsons", 1, 1, subs[:1]); err != nil {
		t.Fatalf("ReplaceEpisodeSubtitles() error = %v", err)
	}
	hits, err := store.SearchSubtitles(ctx, search.Query{Text: "donuts"})
	if err != nil || len(hits) != 1 {
		t.Fatalf("after replace: %d hits, %v", len(hits), err)
	}
}

func TestAuthStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := auth.User{ID: "u1", Email: "fan@example.com", PasswordHash: "x", CreatedAt: time.Unix(1700000000, 0)}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := store.CreateUser(ctx, auth.User{ID: "u2", Email: "fan@example.com", PasswordHash: "y", CreatedAt: time.Now()}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("duplicate email error = %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "fan@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got.Tier != auth.TierFree || got.IsAdmin {
		t.Fatalf("GetUserByEmail() = %+v", got)
	}
	if _, err := store.GetUser(ctx, "nobody"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("GetUser() error = %v", err)
	}

	session := auth.Session{Token: "tok", UserID: "u1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got.Tier = auth.TierPro
	if err := store.UpdateUser(ctx, *got); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	sess, err := store.GetSession(ctx, "tok")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Tier != auth.TierPro || sess.Email != "fan@example.com" {
		t.Fatalf("GetSession() = %+v, want current tier from user", sess)
	}

	count, err := store.CountUsers(ctx)
	if err != nil || count != 1 {
		t.Fatalf("CountUsers() = %d, %v", count, err)
	}

	expired := auth.Session{Token: "old", UserID: "u1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(-time.Hour)}
	if err := store.CreateSession(ctx, expired); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.CleanExpiredSessions(ctx); err != nil {
		t.Fatalf("CleanExpiredSessions() error = %v", err)
	}
	if _, err := store.GetSession(ctx, "old"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expired session error = %v", err)
	}

	if err := store.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := store.GetSession(ctx, "tok"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("session survived user delete: %v", err)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, ok, err := store.GetPreference(ctx, "ns", "collageVersion"); err != nil || ok {
		t.Fatalf("GetPreference() on empty = %v, %v", ok, err)
	}
	if err := store.SetPreference(ctx, "ns", "collageVersion", "v1"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}
	if err := store.SetPreference(ctx, "ns", "collageVersion", "v2"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}
	if err := store.SetPreference(ctx, "other", "bannerDismissed", "true"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}

	v, ok, err := store.GetPreference(ctx, "ns", "collageVersion")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("GetPreference() = %q, %v, %v", v, ok, err)
	}
	all, err := store.ListPreferences(ctx, "ns")
	if err != nil {
		t.Fatalf("ListPreferences() error = %v", err)
	}
	if len(all) != 1 || all["collageVersion"] != "v2" {
		t.Fatalf("ListPreferences() = %v", all)
	}
}

func TestReadOnlyRequiresFile(t *testing.T) {
	if _, err := Open(":memory:", Options{ReadOnly: true}); err == nil {
		t.Fatal("expected error opening :memory: read-only")
	}

	path := filepath.Join(t.TempDir(), "memesrc.db")
	rw, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = rw.Close()

	ro, err := Open(path, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open() read-only error = %v", err)
	}
	defer ro.Close()
	if !ro.ReadOnly() {
		t.Fatal("ReadOnly() = false")
	}
	res, err := ro.IntegrityCheck(context.Background())
	if err != nil || len(res) != 1 || res[0] != "ok" {
		t.Fatalf("IntegrityCheck() = %v, %v", res, err)
	}
}
