package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAdminWritesGeneratedPassword(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	auth := newTestAuth(t, store, newTestClock(), time.Hour, nil)

	path := filepath.Join(t.TempDir(), "admin-password")
	cfg := Config{BootstrapAdminEnabled: true, InitialAdminPasswordPath: path}
	require.NoError(t, BootstrapAdmin(ctx, auth, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	password := strings.TrimSpace(string(data))
	assert.Len(t, password, 32)

	_, err = auth.Login(ctx, "admin", password)
	require.NoError(t, err)

	// Second run leaves the account alone.
	require.NoError(t, os.Remove(path))
	require.NoError(t, BootstrapAdmin(ctx, auth, cfg))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBootstrapAdminConfiguredPassword(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	auth := newTestAuth(t, store, newTestClock(), time.Hour, nil)

	require.NoError(t, BootstrapAdmin(ctx, auth, Config{BootstrapAdminEnabled: false, BootstrapAdminPassword: "pass1234"}))
	_, err := store.Users.FindByUsername(ctx, "admin")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, BootstrapAdmin(ctx, auth, Config{BootstrapAdminEnabled: true, BootstrapAdminPassword: "pass1234"}))
	_, err = auth.Login(ctx, "admin", "pass1234")
	require.NoError(t, err)
}
