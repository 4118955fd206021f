package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestStore returns a migrated in-memory SQLite store.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db, BackendSQLite))
	st := NewSQLiteStore(db)
	t.Cleanup(st.Close)
	return st
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(SecretMaterial{
		Secret: "test-secret",
		Cipher: CipherAES256CBC,
		IV:     make([]byte, tokenIVSize),
	})
	require.NoError(t, err)
	return codec
}

func newTestAuth(t *testing.T, store *Store, clock *testClock, expiry time.Duration, limiter LoginLimiter) *RepositoryAuthService {
	t.Helper()
	tokens := NewTokenValidator(store.Users, expiry, clock.Now)
	return NewRepositoryAuthService(store.Users, testCodec(t), tokens, limiter)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// registerAndLogin creates username with password and returns a fresh token.
func registerAndLogin(t *testing.T, auth *RepositoryAuthService, username, password string) string {
	t.Helper()
	ctx := context.Background()
	_, err := auth.Register(ctx, username, password)
	require.NoError(t, err)
	token, err := auth.Login(ctx, username, password)
	require.NoError(t, err)
	return token
}
