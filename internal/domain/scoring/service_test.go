package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/creasury/invitebot/internal/domain/mock"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID  = snowflake.ID(1)
	stageID  = "Stage 1"
	inviter  = snowflake.ID(100)
	other    = snowflake.ID(200)
	excluded = snowflake.ID(300)
	newbie   = snowflake.ID(1000)
)

var stageStart = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

type settings struct{}

func (settings) ExcludedFromRanking(_, userID snowflake.ID) bool { return userID == excluded }
func (settings) MinAccountAge(snowflake.ID) time.Duration       { return 7 * 24 * time.Hour }
func (settings) CommunityName(snowflake.ID) string              { return "Creasury" }

func setup(t *testing.T, active bool) (*mock.Store, *Service) {
	t.Helper()
	store := mock.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Stages().Define(ctx, &models.Stage{
		ID:      stageID,
		GuildID: guildID,
		Levels:  models.Levels{1: {MinPoints: 1}, 2: {MinPoints: 2}},
		Goals:   models.Goals{MemberCount: 100},
	}))
	if active {
		require.NoError(t, store.Stages().Start(ctx, stageID, guildID, stageStart))
	}
	return store, NewService(settings{})
}

func process(t *testing.T, store *mock.Store, s *Service, event *models.MembershipEvent) *models.MembershipEvent {
	t.Helper()
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)
	require.NotNil(t, out)
	return event
}

func join(user, by snowflake.ID, at time.Time) *models.MembershipEvent {
	return &models.MembershipEvent{Type: models.EventJoin, UserID: user, InviterID: by, Timestamp: at}
}

func leave(user snowflake.ID, at time.Time) *models.MembershipEvent {
	return &models.MembershipEvent{Type: models.EventLeave, UserID: user, Timestamp: at}
}

func counter(t *testing.T, store *mock.Store, user snowflake.ID, key models.CounterKey) int {
	t.Helper()
	v, err := store.Counters().Get(context.Background(), user, guildID, key)
	require.NoError(t, err)
	return v
}

func TestService_Join(t *testing.T) {
	tests := []struct {
		name        string
		fake        bool
		wantPoints  int
		wantRegular int
		wantFake    int
		wantMessage string
	}{
		{
			name:        "regular",
			wantPoints:  1,
			wantRegular: 1,
			wantMessage: "<@100> just gained 1 point and now has 1 point in total.",
		},
		{
			name:        "fake",
			fake:        true,
			wantFake:    1,
			wantMessage: "Minimum account age requirements weren't met (> 7 days)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, s := setup(t, true)
			event := join(newbie, inviter, stageStart.Add(time.Hour))
			event.Fake = tt.fake
			event.GuildID = guildID

			out, err := s.Process(context.Background(), store, event)
			require.NoError(t, err)

			assert.Equal(t, inviter, out.OriginalInviterID)
			assert.Equal(t, inviter, event.OriginalInviterID)
			assert.False(t, out.Rejoin)
			assert.Contains(t, out.Message, "<@1000> has joined the Creasury community!")
			assert.Contains(t, out.Message, tt.wantMessage)
			require.NotNil(t, out.StagePoints)
			assert.Equal(t, tt.wantPoints, *out.StagePoints)

			assert.Equal(t, tt.wantPoints, counter(t, store, inviter, models.StageCounter(stageID, models.FieldPoints)))
			assert.Equal(t, tt.wantRegular, counter(t, store, inviter, models.GlobalCounter(models.FieldRegularInvites)))
			assert.Equal(t, tt.wantRegular, counter(t, store, inviter, models.GlobalCounter(models.FieldTotalInvites)))
			assert.Equal(t, tt.wantFake, counter(t, store, inviter, models.GlobalCounter(models.FieldFakeInvites)))
			assert.Equal(t, tt.wantFake, counter(t, store, inviter, models.StageCounter(stageID, models.FieldFakeInvites)))
		})
	}
}

func TestService_RejoinCreditsOriginalInviter(t *testing.T) {
	store, s := setup(t, true)
	process(t, store, s, join(newbie, inviter, stageStart.Add(time.Hour)))
	process(t, store, s, leave(newbie, stageStart.Add(2*time.Hour)))

	event := join(newbie, other, stageStart.Add(3*time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.True(t, out.Rejoin)
	assert.Equal(t, inviter, out.OriginalInviterID)
	assert.Contains(t, out.Message, "has re-joined")
	assert.Contains(t, out.Message, "They were **originally** invited by <@100>.")

	assert.Equal(t, 1, counter(t, store, inviter, models.StageCounter(stageID, models.FieldPoints)))
	assert.Equal(t, 0, counter(t, store, other, models.StageCounter(stageID, models.FieldPoints)))
	assert.Equal(t, 1, counter(t, store, newbie, models.GlobalCounter(models.FieldRejoins)))
	assert.Equal(t, 1, counter(t, store, inviter, models.GlobalCounter(models.FieldRegularLeaves)))
	assert.Equal(t, 1, counter(t, store, inviter, models.GlobalCounter(models.FieldTotalInvites)))
	assert.Equal(t, 2, counter(t, store, inviter, models.GlobalCounter(models.FieldRegularInvites)))

	member, err := store.Members().Get(context.Background(), newbie, guildID)
	require.NoError(t, err)
	assert.Equal(t, other, member.InviterID)
	assert.Equal(t, inviter, member.OriginalInviterID)
	assert.Equal(t, stageStart.Add(time.Hour), member.OriginalInviteTimestamp)
	assert.False(t, member.Removed)
}

func TestService_GrandfatheredMember(t *testing.T) {
	store, s := setup(t, true)
	// joined before the stage started
	process(t, store, s, join(newbie, inviter, stageStart.Add(-time.Hour)))

	event := leave(newbie, stageStart.Add(time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)
	assert.Contains(t, out.Message, "originally joined before the current stage has started, won't update stage points.")

	event = join(newbie, other, stageStart.Add(2*time.Hour))
	event.GuildID = guildID
	out, err = s.Process(context.Background(), store, event)
	require.NoError(t, err)
	assert.Contains(t, out.Message, "<@100> won't be awarded any points.")
	assert.Equal(t, 0, counter(t, store, inviter, models.StageCounter(stageID, models.FieldPoints)))
}

func TestService_LeaveRegular(t *testing.T) {
	store, s := setup(t, true)
	process(t, store, s, join(newbie, inviter, stageStart.Add(time.Hour)))

	event := leave(newbie, stageStart.Add(2*time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.Equal(t, inviter, event.OriginalInviterID)
	assert.Contains(t, out.Message, "<@1000> has left the Creasury community.")
	assert.Contains(t, out.Message, "<@100> just lost 1 point and now has 0 points in total.")
	require.NotNil(t, out.StagePoints)
	assert.Equal(t, 0, *out.StagePoints)
	assert.Equal(t, 0, counter(t, store, inviter, models.GlobalCounter(models.FieldTotalInvites)))
	assert.Equal(t, 1, counter(t, store, inviter, models.GlobalCounter(models.FieldRegularLeaves)))

	member, err := store.Members().Get(context.Background(), newbie, guildID)
	require.NoError(t, err)
	assert.True(t, member.Removed)
	require.NotNil(t, member.RemoveTimestamp)
}

func TestService_FakeLeave(t *testing.T) {
	store, s := setup(t, true)
	event := join(newbie, inviter, stageStart.Add(time.Hour))
	event.Fake = true
	process(t, store, s, event)
	process(t, store, s, leave(newbie, stageStart.Add(2*time.Hour)))

	assert.Equal(t, 1, counter(t, store, inviter, models.GlobalCounter(models.FieldFakeLeaves)))
	assert.Equal(t, 1, counter(t, store, inviter, models.StageCounter(stageID, models.FieldFakeLeaves)))
	assert.Equal(t, 0, counter(t, store, inviter, models.GlobalCounter(models.FieldTotalInvites)))
	assert.Equal(t, 0, counter(t, store, inviter, models.StageCounter(stageID, models.FieldPoints)))
}

func TestService_UnknownInviter(t *testing.T) {
	store, s := setup(t, true)
	event := join(newbie, 0, stageStart.Add(time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.Contains(t, out.Message, "They were invited by some mysterious force.")
	assert.Contains(t, out.Message, "Original inviter of member <@1000> is unknown, no points will be awarded.")
	assert.Nil(t, out.StagePoints)

	counters, err := store.Counters().ListByMember(context.Background(), 0, guildID)
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestService_LeaveOfUnknownMember(t *testing.T) {
	store, s := setup(t, true)
	event := leave(newbie, stageStart.Add(time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.Contains(t, out.Message, "originally invited by some mysterious force")
	member, err := store.Members().Get(context.Background(), newbie, guildID)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.True(t, member.Removed)
	assert.False(t, member.HasOriginalInviter())
}

func TestService_NoActiveStage(t *testing.T) {
	store, s := setup(t, false)
	event := join(newbie, inviter, stageStart.Add(time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.Nil(t, out.Stage)
	assert.Nil(t, out.StagePoints)
	assert.Contains(t, out.LogLines, "No active stage found, won't award any stage points.")
	assert.Equal(t, 1, counter(t, store, inviter, models.GlobalCounter(models.FieldTotalInvites)))
	assert.Equal(t, 0, counter(t, store, inviter, models.StageCounter(stageID, models.FieldPoints)))
}

func TestService_ExcludedInviterScoresQuietly(t *testing.T) {
	store, s := setup(t, true)
	event := join(newbie, excluded, stageStart.Add(time.Hour))
	event.GuildID = guildID
	out, err := s.Process(context.Background(), store, event)
	require.NoError(t, err)

	assert.NotContains(t, out.Message, "just gained")
	assert.Equal(t, 1, counter(t, store, excluded, models.StageCounter(stageID, models.FieldPoints)))
}
