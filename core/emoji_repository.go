package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Emoji is a user-contributed record. CreatedBy is fixed at creation and
// decides who may change or remove it.
type Emoji struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Smiley       string    `json:"smiley"`
	Category     string    `json:"category"`
	Keywords     string    `json:"keywords"`
	DateCreated  time.Time `json:"date_created"`
	DateModified time.Time `json:"date_modified"`
	CreatedBy    string    `json:"created_by"`
}

// EmojiInput carries the caller-writable fields of a new emoji.
type EmojiInput struct {
	Name     string
	Smiley   string
	Category string
	Keywords string
}

func (in EmojiInput) normalized() EmojiInput {
	return EmojiInput{
		Name:     strings.TrimSpace(in.Name),
		Smiley:   strings.TrimSpace(in.Smiley),
		Category: strings.TrimSpace(in.Category),
		Keywords: strings.TrimSpace(in.Keywords),
	}
}

// EmojiPatch holds the fields an update supplies; nil means unchanged.
type EmojiPatch struct {
	Name     *string
	Smiley   *string
	Category *string
	Keywords *string
}

// Empty reports whether the patch changes nothing.
func (p EmojiPatch) Empty() bool {
	return p.Name == nil && p.Smiley == nil && p.Category == nil && p.Keywords == nil
}

// BlanksRequired reports whether the patch would clear name or smiley.
func (p EmojiPatch) BlanksRequired() bool {
	blank := func(s *string) bool { return s != nil && strings.TrimSpace(*s) == "" }
	return blank(p.Name) || blank(p.Smiley)
}

// EmojiRepository is the resource store consulted by handlers and the
// ownership resolver.
type EmojiRepository interface {
	List(ctx context.Context) ([]Emoji, error)
	Get(ctx context.Context, id int64) (*Emoji, error)
	Create(ctx context.Context, in EmojiInput, createdBy string, now time.Time) (*Emoji, error)
	// Update applies p and bumps date_modified; false when no row matched.
	Update(ctx context.Context, id int64, p EmojiPatch, now time.Time) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type PgEmojiRepository struct {
	db *pgxpool.Pool
}

func NewPgEmojiRepository(db *pgxpool.Pool) *PgEmojiRepository {
	return &PgEmojiRepository{db: db}
}

const emojiColumns = `id, name, smiley, category, keywords, date_created, date_modified, created_by`

func (r *PgEmojiRepository) List(ctx context.Context) ([]Emoji, error) {
	rows, err := r.db.Query(ctx, `SELECT `+emojiColumns+` FROM emoji ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list emoji: %w", err)
	}
	defer rows.Close()
	items := []Emoji{}
	for rows.Next() {
		var e Emoji
		if err := rows.Scan(&e.ID, &e.Name, &e.Smiley, &e.Category, &e.Keywords, &e.DateCreated, &e.DateModified, &e.CreatedBy); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *PgEmojiRepository) Get(ctx context.Context, id int64) (*Emoji, error) {
	var e Emoji
	err := r.db.QueryRow(ctx, `SELECT `+emojiColumns+` FROM emoji WHERE id=$1`, id).
		Scan(&e.ID, &e.Name, &e.Smiley, &e.Category, &e.Keywords, &e.DateCreated, &e.DateModified, &e.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get emoji: %w", err)
	}
	return &e, nil
}

func (r *PgEmojiRepository) Create(ctx context.Context, in EmojiInput, createdBy string, now time.Time) (*Emoji, error) {
	in = in.normalized()
	now = now.UTC().Truncate(time.Second)
	const q = `
INSERT INTO emoji (name, smiley, category, keywords, date_created, date_modified, created_by)
VALUES ($1,$2,$3,$4,$5,$5,$6)
RETURNING id`
	e := Emoji{
		Name:         in.Name,
		Smiley:       in.Smiley,
		Category:     in.Category,
		Keywords:     in.Keywords,
		DateCreated:  now,
		DateModified: now,
		CreatedBy:    createdBy,
	}
	if err := r.db.QueryRow(ctx, q, in.Name, in.Smiley, in.Category, in.Keywords, now, createdBy).Scan(&e.ID); err != nil {
		return nil, fmt.Errorf("insert emoji: %w", err)
	}
	return &e, nil
}

func (r *PgEmojiRepository) Update(ctx context.Context, id int64, p EmojiPatch, now time.Time) (bool, error) {
	const q = `
UPDATE emoji SET
  name=COALESCE($1, name),
  smiley=COALESCE($2, smiley),
  category=COALESCE($3, category),
  keywords=COALESCE($4, keywords),
  date_modified=$5
WHERE id=$6`
	tag, err := r.db.Exec(ctx, q, trimmed(p.Name), trimmed(p.Smiley), trimmed(p.Category), trimmed(p.Keywords), now.UTC().Truncate(time.Second), id)
	if err != nil {
		return false, fmt.Errorf("update emoji: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgEmojiRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM emoji WHERE id=$1`, id)
	return err
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
