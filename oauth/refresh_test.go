package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type row struct {
	access, refresh, scope string
	expiry                 time.Time
}

type memStore struct {
	mu      sync.Mutex
	rows    map[string]row
	upserts int
}

func newMemStore(provider string, r row) *memStore {
	return &memStore{rows: map[string]row{provider: r}}
}

func (m *memStore) GetOAuthToken(_ context.Context, provider string) (string, string, time.Time, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[provider]
	return r.access, r.refresh, r.expiry, r.scope, nil
}

func (m *memStore) UpsertOAuthToken(_ context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[provider] = row{access: access, refresh: refresh, expiry: expiry, scope: scope}
	m.upserts++
	return nil
}

func (m *memStore) get(provider string) (row, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[provider], m.upserts
}

type calls struct {
	mu sync.Mutex
	n  int
	rt []string
}

func (c *calls) fn(access, refresh string, exp time.Time, scope string, err error) RefreshFunc {
	return func(_ context.Context, rt string) (string, string, time.Time, string, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.n++
		c.rt = append(c.rt, rt)
		return access, refresh, exp, scope, err
	}
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func run(t *testing.T, store Store, fn RefreshFunc, window time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	StartRefresher(ctx, store, "youtube", 40*time.Millisecond, window, fn)
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
}

func TestRefresherSkipsFreshToken(t *testing.T) {
	store := newMemStore("youtube", row{access: "a", refresh: "r", expiry: time.Now().Add(time.Hour)})
	c := &calls{}
	run(t, store, c.fn("new", "", time.Now().Add(2*time.Hour), "", nil), 30*time.Minute)
	if c.count() != 0 {
		t.Errorf("refresh called %d times for a token outside the window", c.count())
	}
}

func TestRefresherRefreshesWithinWindow(t *testing.T) {
	store := newMemStore("youtube", row{access: "old-access", refresh: "old-refresh", expiry: time.Now().Add(5 * time.Minute), scope: "scope1"})
	c := &calls{}
	newExp := time.Now().Add(2 * time.Hour)
	run(t, store, c.fn("new-access", "", newExp, "", nil), 15*time.Minute)

	if c.count() != 1 {
		t.Fatalf("refresh calls = %d, want 1 (the refreshed token is outside the window)", c.count())
	}
	if c.rt[0] != "old-refresh" {
		t.Errorf("refresh token passed = %q", c.rt[0])
	}
	got, _ := store.get("youtube")
	if got.access != "new-access" || got.refresh != "old-refresh" || got.scope != "scope1" || !got.expiry.Equal(newExp) {
		t.Errorf("stored = %+v; refresh token and scope should be preserved", got)
	}
}

func TestRefresherKeepsTokenOnError(t *testing.T) {
	store := newMemStore("youtube", row{access: "old", refresh: "r", expiry: time.Now().Add(time.Minute)})
	c := &calls{}
	run(t, store, c.fn("", "", time.Time{}, "", errors.New("invalid_grant")), 15*time.Minute)

	if c.count() == 0 {
		t.Fatal("refresh was never attempted")
	}
	got, upserts := store.get("youtube")
	if upserts != 0 || got.access != "old" {
		t.Errorf("token changed after failed refresh: %+v (%d upserts)", got, upserts)
	}
}

func TestRefresherNeedsRefreshToken(t *testing.T) {
	store := newMemStore("youtube", row{access: "a", expiry: time.Now()})
	c := &calls{}
	run(t, store, c.fn("x", "", time.Now(), "", nil), 15*time.Minute)
	if c.count() != 0 {
		t.Error("refresh attempted without a refresh token")
	}
}

func TestRefresherStopsOnCancel(t *testing.T) {
	store := newMemStore("youtube", row{refresh: "r", expiry: time.Now()})
	c := &calls{}
	ctx, cancel := context.WithCancel(context.Background())
	StartRefresher(ctx, store, "youtube", time.Hour, time.Minute, c.fn("x", "", time.Now(), "", nil))
	cancel()
	time.Sleep(20 * time.Millisecond)
	if c.count() != 0 {
		t.Error("refresh ran after cancel")
	}
}

func TestNextIntervalBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := nextInterval(time.Minute)
		if d < 48*time.Second || d > 72*time.Second {
			t.Fatalf("nextInterval = %v, want within ±20%%", d)
		}
	}
	if nextInterval(1) != 1 {
		t.Error("tiny interval should pass through")
	}
}
