package logger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// QueryHook logs every bun query with its duration. Failed queries are
// logged as errors, sql.ErrNoRows is not a failure.
type QueryHook struct {
	slowThreshold time.Duration
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook() *QueryHook {
	return &QueryHook{slowThreshold: 500 * time.Millisecond}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	attrs := []any{
		slog.String("type", "db"),
		slog.String("operation", event.Operation()),
		slog.String("query", event.Query),
		slog.Duration("took", duration),
	}

	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		slog.Error("Query failed", append(attrs, slog.Any("error", event.Err))...)
		return
	}
	if duration > h.slowThreshold {
		slog.Warn("Query executed slowly", attrs...)
		return
	}
	slog.Debug("Query executed", attrs...)
}
