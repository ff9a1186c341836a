package repositories

import (
	"context"
	"database/sql"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type rewardRepository struct {
	BaseRepository
}

func NewRewardRepository(db bun.IDB) contest.RewardRepository {
	return &rewardRepository{NewBaseRepository(db)}
}

func (r *rewardRepository) Assign(ctx context.Context, reward *models.MemberReward) error {
	_, err := r.Exec(ctx, "assign", "reward", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().Model(reward).Returning("id").Exec(ctx)
	})
	return err
}

func (r *rewardRepository) ListByMember(ctx context.Context, userID, guildID snowflake.ID) (map[string][]*models.MemberReward, error) {
	var rewards []*models.MemberReward
	err := r.Select(ctx, "list", "reward", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(&rewards).
			Where("user_id = ?", userID).
			Where("guild_id = ?", guildID).
			Order("awarded_at ASC", "id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}

	byType := make(map[string][]*models.MemberReward)
	for _, reward := range rewards {
		byType[reward.Type] = append(byType[reward.Type], reward)
	}
	return byType, nil
}
