package store

import (
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/learnhub/enrollment-be/shared/postgresql"
)

// Storage handles all portal-store database operations used by the
// pipeline: payments, enrollments, progress records, users and courses.
// Every mutating method is a per-row conditional update so that
// idempotency guards double as optimistic concurrency checks.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}
