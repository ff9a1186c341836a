package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type counterRepository struct {
	BaseRepository
}

func NewCounterRepository(db bun.IDB) contest.CounterRepository {
	return &counterRepository{NewBaseRepository(db)}
}

// Increment upserts the counter row and adds delta in the same statement, so
// concurrent increments never lose an update.
func (r *counterRepository) Increment(ctx context.Context, userID, guildID snowflake.ID, key models.CounterKey, delta int) (int, error) {
	counter := &models.MemberCounter{
		UserID:    userID,
		GuildID:   guildID,
		Scope:     key.Scope,
		StageID:   key.StageID,
		Field:     key.Field,
		Value:     delta,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.Exec(ctx, "increment", "counter", func(ctx context.Context) (sql.Result, error) {
		return nil, r.db.NewInsert().
			Model(counter).
			On("CONFLICT (user_id, guild_id, scope, stage_id, field) DO UPDATE").
			Set("value = ?TableAlias.value + EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("value").
			Scan(ctx)
	})
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

func (r *counterRepository) Get(ctx context.Context, userID, guildID snowflake.ID, key models.CounterKey) (int, error) {
	counter := new(models.MemberCounter)
	found, err := r.SelectOne(ctx, "get", "counter", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(counter).
			Where("user_id = ?", userID).
			Where("guild_id = ?", guildID).
			Where("scope = ?", key.Scope).
			Where("stage_id = ?", key.StageID).
			Where("field = ?", key.Field).
			Scan(ctx)
	})
	if err != nil || !found {
		return 0, err
	}
	return counter.Value, nil
}

func (r *counterRepository) GetMany(ctx context.Context, guildID snowflake.ID, key models.CounterKey, userIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	out := make(map[snowflake.ID]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var counters []models.MemberCounter
	err := r.Select(ctx, "get_many", "counter", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&counters).
			Column("user_id", "value").
			Where("guild_id = ?", guildID).
			Where("scope = ?", key.Scope).
			Where("stage_id = ?", key.StageID).
			Where("field = ?", key.Field).
			Where("user_id IN (?)", bun.In(userIDs)).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	for _, c := range counters {
		out[c.UserID] = c.Value
	}
	return out, nil
}

func (r *counterRepository) ListByMember(ctx context.Context, userID, guildID snowflake.ID) ([]*models.MemberCounter, error) {
	var counters []*models.MemberCounter
	err := r.Select(ctx, "list", "counter", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&counters).
			Where("user_id = ?", userID).
			Where("guild_id = ?", guildID).
			OrderExpr("scope, stage_id, field").
			Scan(ctx)
	})
	return counters, err
}
