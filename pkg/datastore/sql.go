package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/relaychat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// SQLStore is a SQLite-backed UserStore.
type SQLStore struct {
	DB *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}
	// PRAGMAs below are per-connection; keep a single one so they always apply.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &SQLStore{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.DB.Close()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0),
		password_hash TEXT    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate to v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// CreateUser inserts a user. The UNIQUE constraint on username makes the
// existence check and the insert a single atomic statement.
func (s *SQLStore) CreateUser(username, passwordHash string) (*model.User, error) {
	res, err := s.DB.ExecContext(context.Background(),
		"INSERT INTO users (username, password_hash) VALUES (?, ?) ON CONFLICT(username) DO NOTHING",
		username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("datastore: create user: %w", err)
	}
	if n == 0 {
		return nil, ErrUserExists
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLStore) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := s.DB.QueryRowContext(context.Background(),
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get user: %w", err)
	}
	u.CreatedAt = parsed
	return u, nil
}

// ListUsers returns all users ordered by ID.
func (s *SQLStore) ListUsers() ([]model.User, error) {
	rows, err := s.DB.QueryContext(context.Background(),
		"SELECT id, username, password_hash, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	return users, rows.Err()
}
