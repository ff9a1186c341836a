package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type rankingRepository struct {
	BaseRepository
}

func NewRankingRepository(db bun.IDB) contest.RankingRepository {
	return &rankingRepository{NewBaseRepository(db)}
}

func (r *rankingRepository) Get(ctx context.Context, stageID string, guildID snowflake.ID) (*models.StageRanking, error) {
	ranking := new(models.StageRanking)
	found, err := r.SelectOne(ctx, "get", "ranking", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(ranking).
			Where("stage_id = ?", stageID).
			Where("guild_id = ?", guildID).
			Scan(ctx)
	})
	if err != nil || !found {
		return nil, err
	}
	return ranking, nil
}

// Save replaces the stored ranking and appends it to stage_rankings_log.
func (r *rankingRepository) Save(ctx context.Context, ranking *models.StageRanking) error {
	if ranking.UpdatedAt.IsZero() {
		ranking.UpdatedAt = time.Now().UTC()
	}
	if ranking.Rankings == nil {
		ranking.Rankings = []models.Ranking{}
	}

	_, err := r.Exec(ctx, "save", "ranking", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().
			Model(ranking).
			On("CONFLICT (stage_id, guild_id) DO UPDATE").
			Set("rankings = EXCLUDED.rankings").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
	})
	if err != nil {
		return err
	}

	entry := &models.StageRankingLog{
		StageID:   ranking.StageID,
		GuildID:   ranking.GuildID,
		Rankings:  ranking.Rankings,
		CreatedAt: ranking.UpdatedAt,
	}
	if _, err := r.Exec(ctx, "log", "ranking", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(entry).Exec(ctx)
	}); err != nil {
		return fmt.Errorf("failed to append ranking log: %w", err)
	}
	return nil
}
