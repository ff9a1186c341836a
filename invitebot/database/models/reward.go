package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// MemberReward is one reward won by a member. Rows are never deleted.
type MemberReward struct {
	bun.BaseModel `bun:"table:member_rewards,alias:mr"`

	ID           int64        `bun:"id,pk,autoincrement"`
	UserID       snowflake.ID `bun:"user_id,notnull"`
	GuildID      snowflake.ID `bun:"guild_id,notnull"`
	StageID      string       `bun:"stage_id,notnull"`
	Level        int          `bun:"level,notnull"`
	RewardID     string       `bun:"reward_id,notnull"`
	Type         string       `bun:"type,notnull"`
	Distribution string       `bun:"distribution,notnull"`
	AwardedAt    time.Time    `bun:"awarded_at,notnull,default:current_timestamp"`
}
