package repositories

import (
	"context"
	"database/sql"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type memberRepository struct {
	BaseRepository
}

func NewMemberRepository(db bun.IDB) contest.MemberRepository {
	return &memberRepository{NewBaseRepository(db)}
}

func (r *memberRepository) Get(ctx context.Context, userID, guildID snowflake.ID) (*models.Member, error) {
	member := new(models.Member)
	found, err := r.SelectOne(ctx, "get", "member", func(ctx context.Context) error {
		return r.db.NewSelect().
			Model(member).
			Where("user_id = ?", userID).
			Where("guild_id = ?", guildID).
			Scan(ctx)
	})
	if err != nil || !found {
		return nil, err
	}
	return member, nil
}

// Upsert writes the member as given. Keeping the original inviter is up to
// the caller.
func (r *memberRepository) Upsert(ctx context.Context, member *models.Member) error {
	_, err := r.Exec(ctx, "upsert", "member", func(ctx context.Context) (sql.Result, error) {
		return r.db.NewInsert().
			Model(member).
			On("CONFLICT (user_id, guild_id) DO UPDATE").
			Set("inviter_id = EXCLUDED.inviter_id").
			Set("original_inviter_id = EXCLUDED.original_inviter_id").
			Set("original_invite_timestamp = EXCLUDED.original_invite_timestamp").
			Set("invite_timestamp = EXCLUDED.invite_timestamp").
			Set("fake = EXCLUDED.fake").
			Set("removed = EXCLUDED.removed").
			Set("remove_timestamp = EXCLUDED.remove_timestamp").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("id").
			Exec(ctx)
	})
	return err
}
