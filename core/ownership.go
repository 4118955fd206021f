package core

import (
	"context"
	"errors"
)

// OwnershipResolver links tokens to usernames and emoji to their creators.
type OwnershipResolver struct {
	tokens *TokenValidator
	emojis EmojiRepository
}

func NewOwnershipResolver(tokens *TokenValidator, emojis EmojiRepository) *OwnershipResolver {
	return &OwnershipResolver{tokens: tokens, emojis: emojis}
}

// Owner returns the username the token was issued to, or "" for an unknown
// token. It does not check expiry; callers validate the token first.
func (r *OwnershipResolver) Owner(ctx context.Context, token string) (string, error) {
	u, err := r.tokens.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// UserOwnsResource reports whether the emoji with id was created by the
// token's owner. A missing emoji or unknown token is never owned.
func (r *OwnershipResolver) UserOwnsResource(ctx context.Context, token string, id int64) (bool, error) {
	owner, err := r.Owner(ctx, token)
	if err != nil || owner == "" {
		return false, err
	}
	e, err := r.emojis.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.CreatedBy == owner, nil
}

func (r *OwnershipResolver) ResourceExists(ctx context.Context, id int64) (bool, error) {
	_, err := r.emojis.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
