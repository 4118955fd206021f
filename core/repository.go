package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord is the credential store's view of an account. Token holds the
// digest of the last issued token, or "" before the first login.
type UserRecord struct {
	ID             int64
	Username       string
	PasswordHash   string
	Token          string
	TokenGenerated int64 // unix seconds; rewritten by logout
	TokenIssued    int64 // unix seconds of the last issuance; never rewritten by logout
	CreatedAt      time.Time
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByToken(ctx context.Context, digest string) (*UserRecord, error)
	Create(ctx context.Context, username, passwordHash string) (int64, error)
	// UpdateToken stores a freshly issued token for username and records
	// generatedAt as its issuance time.
	UpdateToken(ctx context.Context, username, digest string, generatedAt int64) error
	// SetTokenGenerated rewrites the issuance time of the token with digest.
	SetTokenGenerated(ctx context.Context, digest string, generatedAt int64) error
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const pgUserColumns = `id, username, password_hash, COALESCE(token, ''), token_generated, token_issued, created_at`

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return r.findOne(ctx, `SELECT `+pgUserColumns+` FROM users WHERE username=$1`, username)
}

func (r *PgUserRepository) FindByToken(ctx context.Context, digest string) (*UserRecord, error) {
	if digest == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+pgUserColumns+` FROM users WHERE token=$1`, digest)
}

func (r *PgUserRepository) findOne(ctx context.Context, q string, arg any) (*UserRecord, error) {
	var u UserRecord
	err := r.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Token, &u.TokenGenerated, &u.TokenIssued, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *PgUserRepository) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	const q = `INSERT INTO users (username, password_hash) VALUES ($1,$2) RETURNING id`
	var id int64
	if err := r.db.QueryRow(ctx, q, username, passwordHash).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (r *PgUserRepository) UpdateToken(ctx context.Context, username, digest string, generatedAt int64) error {
	// Single statement so readers never see the new token with the old timestamp.
	const q = `UPDATE users SET token=$1, token_generated=$2, token_issued=$2 WHERE username=$3`
	tag, err := r.db.Exec(ctx, q, digest, generatedAt, username)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) SetTokenGenerated(ctx context.Context, digest string, generatedAt int64) error {
	const q = `UPDATE users SET token_generated=$1 WHERE token=$2`
	tag, err := r.db.Exec(ctx, q, generatedAt, digest)
	if err != nil {
		return fmt.Errorf("update token_generated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
