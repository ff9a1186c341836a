package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type EventType string

const (
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
)

// MembershipEvent is one queued join or leave. Processed only ever moves from
// false to true.
type MembershipEvent struct {
	bun.BaseModel `bun:"table:membership_events,alias:me"`

	ID                uuid.UUID    `bun:"id,pk,type:uuid"`
	GuildID           snowflake.ID `bun:"guild_id,notnull"`
	Type              EventType    `bun:"type,notnull"`
	UserID            snowflake.ID `bun:"user_id,notnull"`
	InviterID         snowflake.ID `bun:"inviter_id,nullzero"`
	OriginalInviterID snowflake.ID `bun:"original_inviter_id,nullzero"`
	Fake              bool         `bun:"fake,notnull,default:false"`
	Timestamp         time.Time    `bun:"timestamp,notnull"`
	Processed         bool         `bun:"processed,notnull,default:false"`
	ProcessedAt       *time.Time   `bun:"processed_at"`
	StageID           string       `bun:"stage_id,nullzero"`
	StagePoints       *int         `bun:"stage_points"`
	Attempts          int          `bun:"attempts,notnull,default:0"`
	LastError         string       `bun:"last_error,nullzero"`
}
