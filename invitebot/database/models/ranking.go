package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// Ranking is one row of a stage leaderboard. Level 0 means no tier.
type Ranking struct {
	ID        snowflake.ID `json:"id"`
	Points    int          `json:"points"`
	Level     int          `json:"level"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
	Position  int          `json:"position"`
}

type StageRanking struct {
	bun.BaseModel `bun:"table:stage_rankings,alias:sr"`

	StageID   string       `bun:"stage_id,pk"`
	GuildID   snowflake.ID `bun:"guild_id,pk"`
	Rankings  []Ranking    `bun:"rankings,type:jsonb,notnull"`
	UpdatedAt time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

// Find returns the entry of a member or nil.
func (r *StageRanking) Find(userID snowflake.ID) *Ranking {
	for i := range r.Rankings {
		if r.Rankings[i].ID == userID {
			return &r.Rankings[i]
		}
	}
	return nil
}

// StageRankingLog is an append-only copy of every ranking write.
type StageRankingLog struct {
	bun.BaseModel `bun:"table:stage_rankings_log,alias:srl"`

	ID        int64        `bun:"id,pk,autoincrement"`
	StageID   string       `bun:"stage_id,notnull"`
	GuildID   snowflake.ID `bun:"guild_id,notnull"`
	Rankings  []Ranking    `bun:"rankings,type:jsonb,notnull"`
	CreatedAt time.Time    `bun:"created_at,notnull,default:current_timestamp"`
}
