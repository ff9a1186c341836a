package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type eventRepository struct {
	BaseRepository
}

func NewEventRepository(db bun.IDB) contest.EventRepository {
	return &eventRepository{NewBaseRepository(db)}
}

func (r *eventRepository) Append(ctx context.Context, event *models.MembershipEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.Exec(ctx, "append", "event", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(event).Exec(ctx)
	})
	return err
}

func (r *eventRepository) NextUnprocessed(ctx context.Context, guildID snowflake.ID) (*models.MembershipEvent, error) {
	event := new(models.MembershipEvent)
	found, err := r.SelectOne(ctx, "next_unprocessed", "event", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(event).
			Where("guild_id = ?", guildID).
			Where("processed = false").
			Order("timestamp ASC").
			Limit(1).
			Scan(ctx)
	})
	if err != nil || !found {
		return nil, err
	}
	return event, nil
}

// MarkProcessed flips the processed flag and stores what scoring resolved.
// An event that is already processed is left alone.
func (r *eventRepository) MarkProcessed(ctx context.Context, event *models.MembershipEvent) error {
	now := time.Now().UTC()
	_, err := r.Exec(ctx, "mark_processed", "event", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewUpdate().
			Model((*models.MembershipEvent)(nil)).
			Set("processed = true").
			Set("processed_at = ?", now).
			Set("original_inviter_id = ?", nullID(event.OriginalInviterID)).
			Set("fake = ?", event.Fake).
			Set("stage_id = ?", nullString(event.StageID)).
			Set("stage_points = ?", event.StagePoints).
			Where("id = ?", event.ID).
			Where("processed = false").
			Exec(ctx)
	})
	if err != nil {
		return err
	}
	event.Processed = true
	event.ProcessedAt = &now
	return nil
}

func (r *eventRepository) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	_, err := r.Exec(ctx, "record_failure", "event", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewUpdate().
			Model((*models.MembershipEvent)(nil)).
			Set("attempts = attempts + 1").
			Set("last_error = ?", cause.Error()).
			Where("id = ?", id).
			Exec(ctx)
	})
	return err
}

func (r *eventRepository) LatestTimestamp(ctx context.Context, guildID snowflake.ID) (*time.Time, error) {
	var latest sql.NullTime
	err := r.Select(ctx, "latest_timestamp", "event", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model((*models.MembershipEvent)(nil)).
			ColumnExpr("MAX(timestamp)").
			Where("guild_id = ?", guildID).
			Scan(ctx, &latest)
	})
	return nullTime(latest), err
}

func (r *eventRepository) LastReachedScore(ctx context.Context, guildID snowflake.ID, stageID string, originalInviterID snowflake.ID, points int) (*time.Time, error) {
	var latest sql.NullTime
	err := r.Select(ctx, "last_reached_score", "event", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model((*models.MembershipEvent)(nil)).
			ColumnExpr("MAX(timestamp)").
			Where("guild_id = ?", guildID).
			Where("type = ?", models.EventJoin).
			Where("processed = true").
			Where("stage_id = ?", stageID).
			Where("original_inviter_id = ?", originalInviterID).
			Where("stage_points = ?", points).
			Scan(ctx, &latest)
	})
	return nullTime(latest), err
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullID(id snowflake.ID) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
