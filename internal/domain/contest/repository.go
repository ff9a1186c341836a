package contest

import (
	"context"
	"time"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// Lookups that find nothing return nil and no error.

type CounterRepository interface {
	// Increment atomically adds delta and returns the new value.
	Increment(ctx context.Context, userID, guildID snowflake.ID, key models.CounterKey, delta int) (int, error)
	Get(ctx context.Context, userID, guildID snowflake.ID, key models.CounterKey) (int, error)
	// GetMany returns the value of one counter for many members. Missing
	// counters are absent from the map.
	GetMany(ctx context.Context, guildID snowflake.ID, key models.CounterKey, userIDs []snowflake.ID) (map[snowflake.ID]int, error)
	ListByMember(ctx context.Context, userID, guildID snowflake.ID) ([]*models.MemberCounter, error)
}

type MemberRepository interface {
	Get(ctx context.Context, userID, guildID snowflake.ID) (*models.Member, error)
	Upsert(ctx context.Context, member *models.Member) error
}

type EventRepository interface {
	Append(ctx context.Context, event *models.MembershipEvent) error
	NextUnprocessed(ctx context.Context, guildID snowflake.ID) (*models.MembershipEvent, error)
	MarkProcessed(ctx context.Context, event *models.MembershipEvent) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
	LatestTimestamp(ctx context.Context, guildID snowflake.ID) (*time.Time, error)
	// LastReachedScore returns the timestamp of the latest join in a stage
	// that left originalInviterID at exactly points.
	LastReachedScore(ctx context.Context, guildID snowflake.ID, stageID string, originalInviterID snowflake.ID, points int) (*time.Time, error)
}

type StageRepository interface {
	Get(ctx context.Context, stageID string, guildID snowflake.ID) (*models.Stage, error)
	GetActive(ctx context.Context, guildID snowflake.ID) (*models.Stage, error)
	GetByOrder(ctx context.Context, guildID snowflake.ID, order int) (*models.Stage, error)
	// GetPrevious returns the most recently ended stage.
	GetPrevious(ctx context.Context, guildID snowflake.ID) (*models.Stage, error)
	List(ctx context.Context, guildID snowflake.ID) ([]*models.Stage, error)
	// Define inserts a stage or refreshes its definition, keeping runtime state.
	Define(ctx context.Context, stage *models.Stage) error
	Start(ctx context.Context, stageID string, guildID snowflake.ID, at time.Time) error
	End(ctx context.Context, stageID string, guildID snowflake.ID, at time.Time) error
	SetEndTime(ctx context.Context, stageID string, guildID snowflake.ID, endTime time.Time) error
	UpdateRewards(ctx context.Context, stageID string, guildID snowflake.ID, rewards models.StageRewards) error
}

type RankingRepository interface {
	Get(ctx context.Context, stageID string, guildID snowflake.ID) (*models.StageRanking, error)
	// Save replaces the ranking and appends a copy to the audit log.
	Save(ctx context.Context, ranking *models.StageRanking) error
}

type RewardRepository interface {
	Assign(ctx context.Context, reward *models.MemberReward) error
	// ListByMember groups the rewards of a member by type.
	ListByMember(ctx context.Context, userID, guildID snowflake.ID) (map[string][]*models.MemberReward, error)
}

// Store gives access to every repository. Inside RunInTx the store passed to
// fn shares one database transaction.
type Store interface {
	Counters() CounterRepository
	Members() MemberRepository
	Events() EventRepository
	Stages() StageRepository
	Rankings() RankingRepository
	Rewards() RewardRepository
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
