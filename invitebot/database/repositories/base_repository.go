package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

const DefaultQueryTimeout = 30 * time.Second

// BaseRepository provides common repository functionality. db is either the
// pool or a running transaction.
type BaseRepository struct {
	db             bun.IDB
	defaultTimeout time.Duration
}

func NewBaseRepository(db bun.IDB) BaseRepository {
	return BaseRepository{
		db:             db,
		defaultTimeout: DefaultQueryTimeout,
	}
}

// RepositoryError represents a repository-level error
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

// WithTimeout creates a context with the default timeout
func (br BaseRepository) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, br.defaultTimeout)
}

// HandleError standardizes error handling across repositories
func (br BaseRepository) HandleError(operation, entity string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{
		Operation: operation,
		Entity:    entity,
		Err:       err,
	}
}

// SelectOne runs a single row query. A missing row is reported as found ==
// false, not as an error.
func (br BaseRepository) SelectOne(ctx context.Context, operation, entity string, query func(context.Context) error) (bool, error) {
	timeoutCtx, cancel := br.WithTimeout(ctx)
	defer cancel()

	err := query(timeoutCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, br.HandleError(operation, entity, err)
	}
	return true, nil
}

// Exec runs a write query with timeout and error handling.
func (br BaseRepository) Exec(ctx context.Context, operation, entity string, query func(context.Context) (sql.Result, error)) (sql.Result, error) {
	timeoutCtx, cancel := br.WithTimeout(ctx)
	defer cancel()

	result, err := query(timeoutCtx)
	return result, br.HandleError(operation, entity, err)
}

// Select runs a multi row query with timeout and error handling.
func (br BaseRepository) Select(ctx context.Context, operation, entity string, query func(context.Context) error) error {
	timeoutCtx, cancel := br.WithTimeout(ctx)
	defer cancel()

	return br.HandleError(operation, entity, query(timeoutCtx))
}

// IsRepositoryError checks if an error is a RepositoryError
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}
