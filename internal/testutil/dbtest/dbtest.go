// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"chat-escrow/internal/repository"
)

// Open returns a migrated in-memory SQLite database closed at test cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	logger := zap.NewNop()
	db, err := repository.NewSQLiteDB(":memory:", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := repository.MigrateDB(db, logger); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// Repos bundles the repositories over one test database.
type Repos struct {
	DB       *sqlx.DB
	Messages repository.MessageRepository
	Admins   repository.AdminRepository
}

// OpenRepos opens a database and builds its repositories.
func OpenRepos(t testing.TB) Repos {
	t.Helper()
	db := Open(t)
	return Repos{
		DB:       db,
		Messages: repository.NewMessageRepository(db, zap.NewNop()),
		Admins:   repository.NewAdminRepository(db, zap.NewNop()),
	}
}
