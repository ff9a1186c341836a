package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// Member is the invite record of one user in one guild. OriginalInviterID and
// OriginalInviteTimestamp are written on the first join only.
type Member struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID                      int64        `bun:"id,pk,autoincrement"`
	UserID                  snowflake.ID `bun:"user_id,notnull,unique:members_user_guild"`
	GuildID                 snowflake.ID `bun:"guild_id,notnull,unique:members_user_guild"`
	InviterID               snowflake.ID `bun:"inviter_id,nullzero"`
	OriginalInviterID       snowflake.ID `bun:"original_inviter_id,nullzero"`
	OriginalInviteTimestamp time.Time    `bun:"original_invite_timestamp,notnull"`
	InviteTimestamp         time.Time    `bun:"invite_timestamp,notnull"`
	Fake                    bool         `bun:"fake,notnull,default:false"`
	Removed                 bool         `bun:"removed,notnull,default:false"`
	RemoveTimestamp         *time.Time   `bun:"remove_timestamp"`
	UpdatedAt               time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

func (m *Member) HasOriginalInviter() bool {
	return m.OriginalInviterID != 0
}
