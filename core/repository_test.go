package core

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPostgresEnv names the DSN of a disposable database. Postgres tests are
// skipped when it is unset; the tables are truncated before each test.
const testPostgresEnv = "EMOJI_TEST_DATABASE_URL"

func newTestPgStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(testPostgresEnv)
	if dsn == "" {
		t.Skipf("%s not set", testPostgresEnv)
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)

	sqlDB := stdlib.OpenDBFromPool(pool)
	require.NoError(t, Migrate(ctx, sqlDB, BackendPostgres))
	require.NoError(t, sqlDB.Close())

	_, err = pool.Exec(ctx, `TRUNCATE users, emoji RESTART IDENTITY`)
	require.NoError(t, err)

	st := NewPgStore(pool)
	t.Cleanup(st.Close)
	return st
}

func TestSQLiteUserRepository(t *testing.T) {
	testUserRepository(t, newTestStore(t).Users)
}

func TestSQLiteEmojiRepository(t *testing.T) {
	testEmojiRepository(t, newTestStore(t).Emojis)
}

func TestPgUserRepository(t *testing.T) {
	testUserRepository(t, newTestPgStore(t).Users)
}

func TestPgEmojiRepository(t *testing.T) {
	testEmojiRepository(t, newTestPgStore(t).Emojis)
}

func testUserRepository(t *testing.T, users UserRepository) {
	ctx := context.Background()

	id, err := users.Create(ctx, "ada", "hash")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = users.Create(ctx, "ada", "hash2")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = users.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = users.FindByToken(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := users.FindByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Empty(t, u.Token)
	assert.Zero(t, u.TokenIssued)

	require.NoError(t, users.UpdateToken(ctx, "ada", "digest-1", 100))
	u, err = users.FindByToken(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)
	assert.Equal(t, int64(100), u.TokenGenerated)
	assert.Equal(t, int64(100), u.TokenIssued)

	require.NoError(t, users.SetTokenGenerated(ctx, "digest-1", 5))
	u, err = users.FindByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.TokenGenerated)
	assert.Equal(t, int64(100), u.TokenIssued, "logout keeps the issuance time")
	assert.Equal(t, "digest-1", u.Token)

	assert.ErrorIs(t, users.SetTokenGenerated(ctx, "digest-2", 5), ErrNotFound)
	assert.ErrorIs(t, users.UpdateToken(ctx, "nobody", "d", 1), ErrNotFound)
}

func testEmojiRepository(t *testing.T, emojis EmojiRepository) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	e, err := emojis.Create(ctx, EmojiInput{Name: " Wink ", Smiley: ";)", Keywords: "wink"}, "ada", now)
	require.NoError(t, err)
	assert.Equal(t, "Wink", e.Name)

	got, err := emojis.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "Wink", got.Name)
	assert.Equal(t, ";)", got.Smiley)
	assert.Equal(t, "wink", got.Keywords)
	assert.Equal(t, "ada", got.CreatedBy)
	assert.True(t, now.Equal(got.DateCreated), "date_created %s", got.DateCreated)
	assert.True(t, now.Equal(got.DateModified), "date_modified %s", got.DateModified)

	name := "Big wink "
	ok, err := emojis.Update(ctx, e.ID, EmojiPatch{Name: &name}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = emojis.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Big wink", got.Name)
	assert.Equal(t, ";)", got.Smiley, "unset fields keep their value")
	assert.True(t, now.Equal(got.DateCreated))
	assert.True(t, now.Add(time.Hour).Equal(got.DateModified))

	ok, err = emojis.Update(ctx, e.ID+1, EmojiPatch{Name: &name}, now)
	require.NoError(t, err)
	assert.False(t, ok)

	items, err := emojis.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, emojis.Delete(ctx, e.ID))
	_, err = emojis.Get(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	items, err = emojis.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
