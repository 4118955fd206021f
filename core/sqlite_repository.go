package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite stores timestamps as unix seconds.

type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const sqliteUserColumns = `id, username, password_hash, COALESCE(token, ''), token_generated, token_issued, created_at`

func (r *SQLiteUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return r.findOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE username=?`, username)
}

func (r *SQLiteUserRepository) FindByToken(ctx context.Context, digest string) (*UserRecord, error) {
	if digest == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE token=?`, digest)
}

func (r *SQLiteUserRepository) findOne(ctx context.Context, q string, arg any) (*UserRecord, error) {
	var u UserRecord
	var createdAt int64
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Token, &u.TokenGenerated, &u.TokenIssued, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func (r *SQLiteUserRepository) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	const q = `INSERT INTO users (username, password_hash, created_at) VALUES (?,?,?)`
	res, err := r.db.ExecContext(ctx, q, username, passwordHash, time.Now().Unix())
	if err != nil {
		if isSQLiteConstraint(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteUserRepository) UpdateToken(ctx context.Context, username, digest string, generatedAt int64) error {
	const q = `UPDATE users SET token=?, token_generated=?, token_issued=? WHERE username=?`
	return execOne(ctx, r.db, "update token", q, digest, generatedAt, generatedAt, username)
}

func (r *SQLiteUserRepository) SetTokenGenerated(ctx context.Context, digest string, generatedAt int64) error {
	const q = `UPDATE users SET token_generated=? WHERE token=?`
	return execOne(ctx, r.db, "update token_generated", q, generatedAt, digest)
}

type SQLiteEmojiRepository struct {
	db *sql.DB
}

func NewSQLiteEmojiRepository(db *sql.DB) *SQLiteEmojiRepository {
	return &SQLiteEmojiRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEmoji(s rowScanner) (Emoji, error) {
	var e Emoji
	var created, modified int64
	if err := s.Scan(&e.ID, &e.Name, &e.Smiley, &e.Category, &e.Keywords, &created, &modified, &e.CreatedBy); err != nil {
		return Emoji{}, err
	}
	e.DateCreated = time.Unix(created, 0).UTC()
	e.DateModified = time.Unix(modified, 0).UTC()
	return e, nil
}

func (r *SQLiteEmojiRepository) List(ctx context.Context) ([]Emoji, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+emojiColumns+` FROM emoji ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list emoji: %w", err)
	}
	defer rows.Close()
	items := []Emoji{}
	for rows.Next() {
		e, err := scanSQLiteEmoji(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *SQLiteEmojiRepository) Get(ctx context.Context, id int64) (*Emoji, error) {
	e, err := scanSQLiteEmoji(r.db.QueryRowContext(ctx, `SELECT `+emojiColumns+` FROM emoji WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get emoji: %w", err)
	}
	return &e, nil
}

func (r *SQLiteEmojiRepository) Create(ctx context.Context, in EmojiInput, createdBy string, now time.Time) (*Emoji, error) {
	in = in.normalized()
	now = now.UTC().Truncate(time.Second)
	const q = `
INSERT INTO emoji (name, smiley, category, keywords, date_created, date_modified, created_by)
VALUES (?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, in.Name, in.Smiley, in.Category, in.Keywords, now.Unix(), now.Unix(), createdBy)
	if err != nil {
		return nil, fmt.Errorf("insert emoji: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Emoji{
		ID:           id,
		Name:         in.Name,
		Smiley:       in.Smiley,
		Category:     in.Category,
		Keywords:     in.Keywords,
		DateCreated:  now,
		DateModified: now,
		CreatedBy:    createdBy,
	}, nil
}

func (r *SQLiteEmojiRepository) Update(ctx context.Context, id int64, p EmojiPatch, now time.Time) (bool, error) {
	const q = `
UPDATE emoji SET
  name=COALESCE(?, name),
  smiley=COALESCE(?, smiley),
  category=COALESCE(?, category),
  keywords=COALESCE(?, keywords),
  date_modified=?
WHERE id=?`
	res, err := r.db.ExecContext(ctx, q, trimmed(p.Name), trimmed(p.Smiley), trimmed(p.Category), trimmed(p.Keywords), now.UTC().Unix(), id)
	if err != nil {
		return false, fmt.Errorf("update emoji: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteEmojiRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM emoji WHERE id=?`, id)
	return err
}

func execOne(ctx context.Context, db *sql.DB, what, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
