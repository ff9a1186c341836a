package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creasury/invitebot/internal/domain/mock"
	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/invites"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const guildID = snowflake.ID(1)

type recordingAppender struct {
	events []*models.MembershipEvent
}

func (r *recordingAppender) Append(_ context.Context, event *models.MembershipEvent) error {
	r.events = append(r.events, event)
	return nil
}

type stubTracker struct {
	inviterID snowflake.ID
	err       error
	added     []invites.Invite
	snapshots int
}

func (s *stubTracker) Snapshot(snowflake.ID) error { s.snapshots++; return s.err }
func (s *stubTracker) ResolveInviter(snowflake.ID) (snowflake.ID, error) {
	return s.inviterID, s.err
}
func (s *stubTracker) Add(_ snowflake.ID, inv invites.Invite) { s.added = append(s.added, inv) }
func (s *stubTracker) Remove(snowflake.ID, string)            {}

var guilds = invitebot.Guilds{{ID: guildID, CommunityName: "Creasury", MinAccountAgeDays: 7}}

func setup(t *testing.T, tracker *stubTracker) (*Membership, *recordingAppender, *mock.MockNotifier) {
	t.Helper()
	appender := &recordingAppender{}
	notifier := mock.NewMockNotifier(gomock.NewController(t))
	m := NewMembership(appender, tracker, notifier, guilds)
	return m, appender, notifier
}

// userCreatedAt returns a user whose snowflake encodes the given creation time.
func userCreatedAt(at time.Time) discord.User {
	return discord.User{ID: snowflake.New(at)}
}

func TestMembership_Join(t *testing.T) {
	now := time.Date(2022, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		createdAt time.Time
		fake      bool
	}{
		{name: "old account", createdAt: now.AddDate(-1, 0, 0), fake: false},
		{name: "fresh account", createdAt: now.Add(-48 * time.Hour), fake: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, appender, notifier := setup(t, &stubTracker{inviterID: 42})
			m.now = func() time.Time { return now }
			user := userCreatedAt(tt.createdAt)

			notifier.EXPECT().Log(guildID, "New member joined <@"+user.ID.String()+"> invited by <@42>.")
			require.NoError(t, m.Join(context.Background(), guildID, user))

			require.Len(t, appender.events, 1)
			event := appender.events[0]
			assert.Equal(t, models.EventJoin, event.Type)
			assert.Equal(t, user.ID, event.UserID)
			assert.Equal(t, snowflake.ID(42), event.InviterID)
			assert.Equal(t, tt.fake, event.Fake)
		})
	}
}

func TestMembership_JoinWithUnknownInviter(t *testing.T) {
	m, appender, notifier := setup(t, &stubTracker{err: errors.New("missing access")})
	user := userCreatedAt(time.Now().AddDate(-1, 0, 0))

	notifier.EXPECT().Log(guildID, "New member joined <@"+user.ID.String()+"> invited by some mysterious force.")
	require.NoError(t, m.Join(context.Background(), guildID, user))
	require.Len(t, appender.events, 1)
	assert.Zero(t, appender.events[0].InviterID)
}

func TestMembership_Leave(t *testing.T) {
	m, appender, notifier := setup(t, &stubTracker{})

	notifier.EXPECT().Log(guildID, "Member left: <@7>.")
	require.NoError(t, m.Leave(context.Background(), guildID, 7))
	require.Len(t, appender.events, 1)
	assert.Equal(t, models.EventLeave, appender.events[0].Type)
}

func TestMembership_IgnoresUnknownGuilds(t *testing.T) {
	tracker := &stubTracker{}
	m, appender, _ := setup(t, tracker)
	const other = snowflake.ID(99)

	require.NoError(t, m.Join(context.Background(), other, discord.User{ID: 5}))
	require.NoError(t, m.Leave(context.Background(), other, 5))
	m.InviteCreated(other, 3, invites.Invite{Code: "abc"})
	m.GuildReady(other)

	assert.Empty(t, appender.events)
	assert.Empty(t, tracker.added)
	assert.Zero(t, tracker.snapshots)
}

func TestMembership_InviteCreatedAndReady(t *testing.T) {
	tracker := &stubTracker{}
	m, _, notifier := setup(t, tracker)
	var started []snowflake.ID
	m.ready = func(id snowflake.ID) { started = append(started, id) }

	notifier.EXPECT().Log(guildID, `A new invite code "abc" was created by <@5> for channel <#3>.`)
	m.InviteCreated(guildID, 3, invites.Invite{Code: "abc", InviterID: 5})
	require.Len(t, tracker.added, 1)

	notifier.EXPECT().Log(guildID, "Creasury Bot ready for action!")
	m.GuildReady(guildID)
	assert.Equal(t, 1, tracker.snapshots)
	assert.Equal(t, []snowflake.ID{guildID}, started)
}
