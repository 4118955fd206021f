package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// LoginLimiter throttles repeated failed logins for a username.
type LoginLimiter interface {
	Allow(ctx context.Context, username string) (bool, error)
	Failed(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

// RepositoryAuthService implements AuthService on top of the credential
// store, bcrypt password hashes and the token codec.
type RepositoryAuthService struct {
	users   UserRepository
	codec   *TokenCodec
	tokens  *TokenValidator
	limiter LoginLimiter
}

// NewRepositoryAuthService wires the service; limiter may be nil.
func NewRepositoryAuthService(users UserRepository, codec *TokenCodec, tokens *TokenValidator, limiter LoginLimiter) *RepositoryAuthService {
	return &RepositoryAuthService{users: users, codec: codec, tokens: tokens, limiter: limiter}
}

// Register creates an account with a bcrypt hash of password.
func (s *RepositoryAuthService) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return User{}, err
	}
	log.WithFields(log.Fields{"username": username, "user_id": id}).Info("user registered")
	return User{ID: id, Username: username}, nil
}

// Authenticate checks username/password against the stored hash.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.authenticate(ctx, username, password)
	if err != nil {
		return User{}, err
	}
	return User{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}, nil
}

func (s *RepositoryAuthService) authenticate(ctx context.Context, username, password string) (*UserRecord, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Login issues a new token for the user, replacing any previous one. The
// previous token stops matching the store and so becomes invalid.
func (s *RepositoryAuthService) Login(ctx context.Context, username, password string) (string, error) {
	if s.limiter != nil && username != "" {
		ok, err := s.limiter.Allow(ctx, username)
		if err != nil {
			log.WithError(err).Warn("login limiter unavailable")
		} else if !ok {
			return "", ErrTooManyAttempts
		}
	}

	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) && s.limiter != nil && username != "" {
			if ferr := s.limiter.Failed(ctx, username); ferr != nil {
				log.WithError(ferr).Warn("login limiter unavailable")
			}
		}
		return "", err
	}

	issuedAt := s.nextIssuedAt(user)
	token := s.codec.Generate(TokenMaterial(user.Username, password, issuedAt))
	if err := s.users.UpdateToken(ctx, user.Username, tokenDigest(token), issuedAt); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, user.Username); err != nil {
			log.WithError(err).Warn("login limiter unavailable")
		}
	}
	log.WithField("username", user.Username).Info("token issued")
	return token, nil
}

// nextIssuedAt picks the issuance time of a new token. It never goes below
// the user's last issuance, and moves past it once that token is no longer
// live, so a revoked token string is never generated again.
func (s *RepositoryAuthService) nextIssuedAt(u *UserRecord) int64 {
	issuedAt := max(s.tokens.clock.now().Unix(), u.TokenIssued)
	if issuedAt == u.TokenIssued && u.Token != "" && !s.tokens.live(u.TokenGenerated) {
		issuedAt++
	}
	return issuedAt
}

// Logout moves the token's issuance time outside the expiry window. The
// token string stays stored but can never be valid again.
func (s *RepositoryAuthService) Logout(ctx context.Context, token string) error {
	u, err := s.tokens.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	err = s.users.SetTokenGenerated(ctx, u.Token, s.tokens.expiredAt(u.TokenGenerated))
	if errors.Is(err, ErrNotFound) {
		// A concurrent login replaced the token.
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	log.WithField("username", u.Username).Info("token revoked")
	return nil
}

// Tokens exposes the validator the service issues tokens for.
func (s *RepositoryAuthService) Tokens() *TokenValidator {
	return s.tokens
}

// NewAuthServiceFromConfig derives the token codec and validator from cfg
// and wires them to users. limiter may be nil.
func NewAuthServiceFromConfig(cfg Config, users UserRepository, limiter LoginLimiter) (*RepositoryAuthService, error) {
	material, err := NewSecretMaterial(cfg)
	if err != nil {
		return nil, err
	}
	codec, err := NewTokenCodec(material)
	if err != nil {
		return nil, err
	}
	tokens := NewTokenValidator(users, cfg.TokenExpiry, nil)
	return NewRepositoryAuthService(users, codec, tokens, limiter), nil
}
