package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"naija-emoji-api/core/migrations"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Reasonable defaults for small services; callers can override if needed.
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	// Validate connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// OpenSQLite opens the SQLite database at path (":memory:" for tests).
// SQLite serializes writers anyway, and a single connection keeps an
// in-memory database alive and shared.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded migrations for dialect to db.
func Migrate(ctx context.Context, db *sql.DB, backend string) error {
	var (
		dialect goose.Dialect
		fsys    fs.FS
		err     error
	)
	switch backend {
	case BackendPostgres:
		dialect = goose.DialectPostgres
		fsys, err = fs.Sub(migrations.Postgres, "postgres")
	case BackendSQLite:
		dialect = goose.DialectSQLite3
		fsys, err = fs.Sub(migrations.SQLite, "sqlite")
	default:
		return fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.WithFields(log.Fields{"backend": backend, "migration": r.Source.Path}).Info("migration applied")
	}
	return nil
}

// Store bundles the credential store and the resource store of one backend.
type Store struct {
	Backend string
	Users   UserRepository
	Emojis  EmojiRepository

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// NewPgStore wraps a pool; the caller keeps ownership of it.
func NewPgStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Backend: BackendPostgres,
		Users:   NewPgUserRepository(pool),
		Emojis:  NewPgEmojiRepository(pool),
		ping:    pool.Ping,
		close:   pool.Close,
	}
}

func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Backend: BackendSQLite,
		Users:   NewSQLiteUserRepository(db),
		Emojis:  NewSQLiteEmojiRepository(db),
		ping:    db.PingContext,
		close:   func() { _ = db.Close() },
	}
}

// OpenStore connects the configured backend and migrates it. A remote
// database that cannot be reached falls back to the local SQLite file.
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	if strings.EqualFold(cfg.DBLocation, "remote") {
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err == nil {
			sqlDB := stdlib.OpenDBFromPool(pool)
			defer sqlDB.Close()
			if err := Migrate(ctx, sqlDB, BackendPostgres); err != nil {
				pool.Close()
				return nil, err
			}
			return NewPgStore(pool), nil
		}
		log.WithError(err).Warn("postgres unavailable, falling back to sqlite")
	}

	db, err := OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
	}
	if err := Migrate(ctx, db, BackendSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}
