package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type CounterScope string

const (
	ScopeGlobal CounterScope = "global"
	ScopeStage  CounterScope = "stage"
)

type CounterField string

const (
	FieldTotalInvites   CounterField = "totalInvites"
	FieldRegularInvites CounterField = "regularInvites"
	FieldRegularLeaves  CounterField = "regularLeaves"
	FieldFakeInvites    CounterField = "fakeInvites"
	FieldFakeLeaves     CounterField = "fakeLeaves"
	FieldRejoins        CounterField = "rejoins"
	FieldPoints         CounterField = "points"
)

// CounterKey addresses one counter of a member. StageID is empty for the
// global scope.
type CounterKey struct {
	Scope   CounterScope
	StageID string
	Field   CounterField
}

func GlobalCounter(field CounterField) CounterKey {
	return CounterKey{Scope: ScopeGlobal, Field: field}
}

func StageCounter(stageID string, field CounterField) CounterKey {
	return CounterKey{Scope: ScopeStage, StageID: stageID, Field: field}
}

func (k CounterKey) String() string {
	if k.Scope == ScopeGlobal {
		return string(k.Scope) + "/" + string(k.Field)
	}
	return string(k.Scope) + "/" + k.StageID + "/" + string(k.Field)
}

type MemberCounter struct {
	bun.BaseModel `bun:"table:member_counters,alias:mc"`

	ID        int64        `bun:"id,pk,autoincrement"`
	UserID    snowflake.ID `bun:"user_id,notnull,unique:member_counters_key"`
	GuildID   snowflake.ID `bun:"guild_id,notnull,unique:member_counters_key"`
	Scope     CounterScope `bun:"scope,notnull,unique:member_counters_key"`
	StageID   string       `bun:"stage_id,notnull,default:'',unique:member_counters_key"`
	Field     CounterField `bun:"field,notnull,unique:member_counters_key"`
	Value     int          `bun:"value,notnull,default:0"`
	UpdatedAt time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}
