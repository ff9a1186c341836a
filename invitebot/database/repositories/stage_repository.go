package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type stageRepository struct {
	BaseRepository
}

func NewStageRepository(db bun.IDB) contest.StageRepository {
	return &stageRepository{NewBaseRepository(db)}
}

func (r *stageRepository) one(ctx context.Context, operation string, filter func(*bun.SelectQuery) *bun.SelectQuery) (*models.Stage, error) {
	stage := new(models.Stage)
	found, err := r.SelectOne(ctx, operation, "stage", func(ctx context.Context) error {
		return filter(r.db.NewSelect().Model(stage)).Limit(1).Scan(ctx)
	})
	if err != nil || !found {
		return nil, err
	}
	return stage, nil
}

func (r *stageRepository) Get(ctx context.Context, stageID string, guildID snowflake.ID) (*models.Stage, error) {
	return r.one(ctx, "get", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("id = ?", stageID).Where("guild_id = ?", guildID)
	})
}

func (r *stageRepository) GetActive(ctx context.Context, guildID snowflake.ID) (*models.Stage, error) {
	return r.one(ctx, "get_active", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("guild_id = ?", guildID).Where("active = true").Order("stage_order ASC")
	})
}

func (r *stageRepository) GetByOrder(ctx context.Context, guildID snowflake.ID, order int) (*models.Stage, error) {
	return r.one(ctx, "get_by_order", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("guild_id = ?", guildID).Where("stage_order = ?", order)
	})
}

func (r *stageRepository) GetPrevious(ctx context.Context, guildID snowflake.ID) (*models.Stage, error) {
	return r.one(ctx, "get_previous", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("guild_id = ?", guildID).Where("ended = true").Order("stage_order DESC")
	})
}

func (r *stageRepository) List(ctx context.Context, guildID snowflake.ID) ([]*models.Stage, error) {
	var stages []*models.Stage
	err := r.Select(ctx, "list", "stage", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&stages).
			Where("guild_id = ?", guildID).
			Order("stage_order ASC").
			Scan(ctx)
	})
	return stages, err
}

// Define inserts the stage or refreshes its definition. Runtime state is
// kept, and so are the rewards of a stage that already started.
func (r *stageRepository) Define(ctx context.Context, stage *models.Stage) error {
	if stage.Rewards.Pending == nil {
		stage.Rewards.Pending = models.RewardsByLevel{}
	}
	_, err := r.Exec(ctx, "define", "stage", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().
			Model(stage).
			On("CONFLICT (id, guild_id) DO UPDATE").
			Set("stage_order = EXCLUDED.stage_order").
			Set("reward_name = EXCLUDED.reward_name").
			Set("levels = EXCLUDED.levels").
			Set("goals = EXCLUDED.goals").
			Set("rewards = CASE WHEN ?TableAlias.started THEN ?TableAlias.rewards ELSE EXCLUDED.rewards END").
			Exec(ctx)
	})
	return err
}

func (r *stageRepository) update(ctx context.Context, operation, stageID string, guildID snowflake.ID, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	_, err := r.Exec(ctx, operation, "stage", func(ctx context.Context) (sql.Result, error) {
		q := r.db.NewUpdate().
			Model((*models.Stage)(nil)).
			Where("id = ?", stageID).
			Where("guild_id = ?", guildID)
		return set(q).Exec(ctx)
	})
	return err
}

func (r *stageRepository) Start(ctx context.Context, stageID string, guildID snowflake.ID, at time.Time) error {
	return r.update(ctx, "start", stageID, guildID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("active = true").Set("started = true").Set("started_at = ?", at)
	})
}

func (r *stageRepository) End(ctx context.Context, stageID string, guildID snowflake.ID, at time.Time) error {
	return r.update(ctx, "end", stageID, guildID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("active = false").Set("ended = true").Set("ended_at = ?", at)
	})
}

func (r *stageRepository) SetEndTime(ctx context.Context, stageID string, guildID snowflake.ID, endTime time.Time) error {
	return r.update(ctx, "set_end_time", stageID, guildID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("end_time = ?", endTime)
	})
}

func (r *stageRepository) UpdateRewards(ctx context.Context, stageID string, guildID snowflake.ID, rewards models.StageRewards) error {
	data, err := json.Marshal(rewards)
	if err != nil {
		return fmt.Errorf("failed to encode stage rewards: %w", err)
	}
	return r.update(ctx, "update_rewards", stageID, guildID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("rewards = ?::jsonb", string(data))
	})
}
