package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/proofpulse/internal/cache"
	"github.com/ppiankov/proofpulse/internal/model"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	return New(cache.NewMemoryCache(time.Hour, time.Minute), "memory", time.Hour,
		WithLogger(zaptest.NewLogger(t)))
}

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://"+mr.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	return New(rc, "redis", 30*time.Minute, WithLogger(zaptest.NewLogger(t))), mr
}

func TestStore_InitializeAndStatus(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(cache.NewMemoryCache(time.Hour, time.Minute), "memory", time.Hour,
		WithClock(func() time.Time { return fixed }))

	if err := s.Initialize(ctx, "job1", model.InputText, "Vaccine coverage reached 86% globally", "client-a"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	info, found, err := s.GetStatus(ctx, "job1")
	if err != nil || !found {
		t.Fatalf("get status = %v %v", found, err)
	}
	if info.Status != model.StatusIngested || info.Message != "Job created successfully" {
		t.Errorf("unexpected status %+v", info)
	}

	created, found, err := s.CreatedAt(ctx, "job1")
	if err != nil || !found || !created.Equal(fixed) {
		t.Errorf("created_at = %v %v %v", created, found, err)
	}

	client, _, _ := s.GetString(ctx, "job1", KeyClientID)
	if client != "client-a" {
		t.Errorf("client id = %q", client)
	}

	if _, found, _ := s.GetStatus(ctx, "unknown"); found {
		t.Error("unknown job should not be found")
	}
}

func TestStore_DataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	claims := []model.Claim{{ID: "c1", Text: "Water boils at 100C at sea level", Type: model.ClaimTypeScientific}}
	if err := s.SetData(ctx, "j", KeyClaims, claims); err != nil {
		t.Fatalf("set claims: %v", err)
	}
	if err := s.SetData(ctx, "j", KeyText, "plain text"); err != nil {
		t.Fatalf("set text: %v", err)
	}

	var got []model.Claim
	found, err := s.GetData(ctx, "j", KeyClaims, &got)
	if err != nil || !found {
		t.Fatalf("get claims = %v %v", found, err)
	}
	if len(got) != 1 || got[0].Type != model.ClaimTypeScientific {
		t.Errorf("unexpected claims %+v", got)
	}

	text, _, err := s.GetString(ctx, "j", KeyText)
	if err != nil || text != "plain text" {
		t.Errorf("text = %q %v", text, err)
	}

	// Empty lists survive as empty, not absent
	if err := s.SetData(ctx, "j", KeyTimestamps, []model.Timestamp{}); err != nil {
		t.Fatalf("set timestamps: %v", err)
	}
	var ts []model.Timestamp
	found, err = s.GetData(ctx, "j", KeyTimestamps, &ts)
	if err != nil || !found || ts == nil || len(ts) != 0 {
		t.Errorf("timestamps = %v found=%v err=%v", ts, found, err)
	}
}

func TestStore_DecodeFallback(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	// A value written by another producer without a tag
	mr.Set("job:j:text", "legacy raw text")
	text, found, err := s.GetString(ctx, "j", KeyText)
	if err != nil || !found || text != "legacy raw text" {
		t.Errorf("raw fallback = %q %v %v", text, found, err)
	}
	// Untagged text whose first byte looks like a printable tag stays whole
	for _, raw := range []string{"true", "job done", "text"} {
		mr.Set("job:j:text", raw)
		if text, _, err := s.GetString(ctx, "j", KeyText); err != nil || text != raw {
			t.Errorf("GetString(%q) = %q %v", raw, text, err)
		}
	}

	// Structured value read as a string returns the raw JSON
	if err := s.SetData(ctx, "j", KeyEvidence, map[string]int{"a": 1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, _, err := s.GetString(ctx, "j", KeyEvidence)
	if err != nil || raw != `{"a":1}` {
		t.Errorf("raw json = %q %v", raw, err)
	}

	// Text that is not JSON cannot fill a struct
	var claims []model.Claim
	found, err = s.GetData(ctx, "j", KeyText, &claims)
	if !found || !errors.Is(err, ErrUndecodable) {
		t.Errorf("expected ErrUndecodable, got found=%v err=%v", found, err)
	}
}

func TestStore_ManyAndExists(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	err := s.SetMany(ctx, "j", map[string]any{
		KeyText:       "hello world",
		KeyTimestamps: []model.Timestamp{{Start: 0, End: 1.5, Text: "hello"}},
	})
	if err != nil {
		t.Fatalf("set many: %v", err)
	}

	if ttl := mr.TTL("job:j:text"); ttl != 30*time.Minute {
		t.Errorf("expected store TTL on every write, got %v", ttl)
	}

	vals, err := s.GetMany(ctx, "j", []string{KeyText, KeyTimestamps, KeyClaims})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("expected 2 values, got %d", len(vals))
	}
	if vals[KeyText].String() != "hello world" || vals[KeyText].IsJSON() {
		t.Errorf("unexpected text value %q", vals[KeyText].String())
	}
	var ts []model.Timestamp
	if err := vals[KeyTimestamps].Decode(&ts); err != nil || len(ts) != 1 {
		t.Errorf("timestamps decode = %v %v", ts, err)
	}

	ok, err := s.Exists(ctx, "j", KeyClaims)
	if err != nil || ok {
		t.Errorf("claims should not exist: %v %v", ok, err)
	}
}

func TestStore_Purge(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	for _, id := range []string{"a", "b"} {
		if err := s.Initialize(ctx, id, model.InputText, "some text input", ""); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}
	if err := s.SetData(ctx, "a", EvidenceKey("c1"), model.NoSourcesEvidence()); err != nil {
		t.Fatalf("set: %v", err)
	}

	n, err := s.Purge(ctx, "a")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 keys purged, got %d", n)
	}
	if _, found, _ := s.GetStatus(ctx, "a"); found {
		t.Error("purged job still has status")
	}
	if _, found, _ := s.GetStatus(ctx, "b"); !found {
		t.Error("purge removed another job")
	}
}

func TestStore_PurgeGlobCharacters(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)

	for _, id := range []string{"job-a", "job-b", "*"} {
		if err := s.Initialize(ctx, id, model.InputText, "some text input", ""); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}

	for _, id := range []string{"*", "job-?", "job-[ab]"} {
		n, err := s.Purge(ctx, id)
		if err != nil {
			t.Fatalf("purge %q: %v", id, err)
		}
		if id == "*" && n != 5 {
			t.Errorf("purge %q removed %d keys, want 5", id, n)
		}
		if id != "*" && n != 0 {
			t.Errorf("purge %q removed %d keys, want 0", id, n)
		}
	}

	for _, id := range []string{"job-a", "job-b"} {
		if _, found, _ := s.GetStatus(ctx, id); !found {
			t.Errorf("%s was removed by a pattern purge", id)
		}
	}
}

func TestStore_PurgeRejectsSeparator(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	if err := s.Initialize(ctx, "a", model.InputText, "some text input", ""); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "a:", "a:status"} {
		if _, err := s.Purge(ctx, id); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("purge %q err = %v, want ErrInvalidJobID", id, err)
		}
	}
	if _, found, _ := s.GetStatus(ctx, "a"); !found {
		t.Error("job a should be untouched")
	}
}

func TestStore_PurgeNonASCIIOnSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, model.StoreConfig{Backend: "sqlite", Path: t.TempDir() + "/jobs.db", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	for _, id := range []string{"отчёт-1", "отчёт-2"} {
		if err := s.Initialize(ctx, id, model.InputText, "some text input", ""); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}
	n, err := s.Purge(ctx, "отчёт-1")
	if err != nil || n != 5 {
		t.Fatalf("purge = %d %v, want 5 keys", n, err)
	}
	if _, found, _ := s.GetStatus(ctx, "отчёт-2"); !found {
		t.Error("purge removed another job")
	}
}

func TestStore_Lock(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	ok, err := s.TryLock(ctx, "j", "run-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock = %v %v", ok, err)
	}
	ok, _ = s.TryLock(ctx, "j", "run-2", time.Minute)
	if ok {
		t.Fatal("second owner must not take a held lock")
	}

	// Wrong owner cannot release
	if err := s.Unlock(ctx, "j", "run-2"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := s.TryLock(ctx, "j", "run-3", time.Minute); ok {
		t.Fatal("lock released by non-owner")
	}

	if err := s.Unlock(ctx, "j", "run-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, _ := s.TryLock(ctx, "j", "run-3", time.Minute); !ok {
		t.Error("expected lock to be free after owner released it")
	}
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	if _, found, err := s.GetSettings(ctx, "c"); found || err != nil {
		t.Fatalf("expected no settings, got %v %v", found, err)
	}

	want := model.ClientSettings{PrimaryScoringEnabled: false, DemoMode: model.DemoModeLive}
	if err := s.SetSettings(ctx, "c", want); err != nil {
		t.Fatalf("set settings: %v", err)
	}
	got, found, err := s.GetSettings(ctx, "c")
	if err != nil || !found || got != want {
		t.Errorf("settings = %+v %v %v", got, found, err)
	}
	if ttl := mr.TTL("settings:c"); ttl != 12*time.Hour {
		t.Errorf("expected settings TTL 24x job TTL, got %v", ttl)
	}
}

func TestStore_HealthCheck(t *testing.T) {
	s, mr := newRedisStore(t)
	if !s.HealthCheck(context.Background()) {
		t.Fatal("expected healthy store")
	}
	mr.Close()
	if s.HealthCheck(context.Background()) {
		t.Error("expected unhealthy store after shutdown")
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, model.StoreConfig{Backend: "memory", TTL: time.Hour})
	if err != nil || s.Backend() != "memory" || s.Degraded() {
		t.Fatalf("memory backend = %v %v", s, err)
	}

	mr := miniredis.RunT(t)
	s, err = Open(ctx, model.StoreConfig{Backend: "redis", URL: "redis://" + mr.Addr(), TTL: time.Hour})
	if err != nil || s.Backend() != "redis" {
		t.Fatalf("redis backend = %v %v", s, err)
	}

	s, err = Open(ctx, model.StoreConfig{Backend: "sqlite", Path: t.TempDir() + "/jobs.db", TTL: time.Hour})
	if err != nil || s.Backend() != "sqlite" {
		t.Fatalf("sqlite backend = %v %v", s, err)
	}
	_ = s.Close()

	if _, err := Open(ctx, model.StoreConfig{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpen_RedisFallback(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := model.StoreConfig{Backend: "redis", URL: "redis://" + addr, TTL: time.Hour}
	if _, err := Open(ctx, cfg); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	cfg.FallbackToMemory = true
	s, err := Open(ctx, cfg, WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("fallback open: %v", err)
	}
	if s.Backend() != "memory" || !s.Degraded() {
		t.Errorf("expected degraded memory backend, got %s degraded=%v", s.Backend(), s.Degraded())
	}
}
