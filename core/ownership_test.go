package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipResolver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newTestClock()
	auth := newTestAuth(t, store, clock, time.Hour, nil)

	adaToken := registerAndLogin(t, auth, "ada", "pw-ada")
	bobToken := registerAndLogin(t, auth, "bob", "pw-bob")

	e, err := store.Emojis.Create(ctx, EmojiInput{Name: "Wink", Smiley: ";)"}, "ada", clock.Now())
	require.NoError(t, err)

	r := NewOwnershipResolver(auth.Tokens(), store.Emojis)

	owner, err := r.Owner(ctx, adaToken)
	require.NoError(t, err)
	assert.Equal(t, "ada", owner)

	owner, err = r.Owner(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, owner)

	owns, err := r.UserOwnsResource(ctx, adaToken, e.ID)
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = r.UserOwnsResource(ctx, bobToken, e.ID)
	require.NoError(t, err)
	assert.False(t, owns)

	owns, err = r.UserOwnsResource(ctx, adaToken, e.ID+100)
	require.NoError(t, err)
	assert.False(t, owns)

	owns, err = r.UserOwnsResource(ctx, "unknown", e.ID)
	require.NoError(t, err)
	assert.False(t, owns)

	exists, err := r.ResourceExists(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = r.ResourceExists(ctx, e.ID+100)
	require.NoError(t, err)
	assert.False(t, exists)
}
