package core

import (
	"context"
	"errors"
	"time"
)

// DefaultTokenExpiry is how long an issued token stays live.
const DefaultTokenExpiry = 24 * time.Hour

// TokenValidator decides token liveness by reading the credential store on
// every call; nothing is cached.
type TokenValidator struct {
	users  UserRepository
	window int64 // seconds
	clock  Clock
}

func NewTokenValidator(users UserRepository, expiry time.Duration, clock Clock) *TokenValidator {
	return &TokenValidator{users: users, window: int64(expiry / time.Second), clock: clock}
}

// IsValid reports whether token belongs to a user and was issued less than
// the expiry window ago. Only store failures are returned as errors.
func (v *TokenValidator) IsValid(ctx context.Context, token string) (bool, error) {
	u, err := v.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.live(u.TokenGenerated), nil
}

// live: now - window must be strictly earlier than the issuance time.
func (v *TokenValidator) live(generated int64) bool {
	return v.clock.now().Unix()-v.window < generated
}

// expiredAt returns an issuance time that can never be live again, given
// that the clock only moves forward.
func (v *TokenValidator) expiredAt(generated int64) int64 {
	return min(generated, v.clock.now().Unix()) - v.window
}

func (v *TokenValidator) lookup(ctx context.Context, token string) (*UserRecord, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return v.users.FindByToken(ctx, tokenDigest(token))
}
