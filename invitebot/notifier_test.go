package invitebot

import (
	"errors"
	"strings"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	channelID snowflake.ID
	create    discord.MessageCreate
}

type fakeRest struct {
	sent []sentMessage
	err  error
}

func (f *fakeRest) CreateMessage(channelID snowflake.ID, create discord.MessageCreate, _ ...rest.RequestOpt) (*discord.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, create: create})
	return &discord.Message{}, nil
}

var notifierGuilds = Guilds{
	{ID: 1, InviteChannelID: 100, LogChannelID: 200},
	{ID: 2},
}

func TestChannelNotifier_Routes(t *testing.T) {
	r := &fakeRest{}
	n := NewChannelNotifier(r, notifierGuilds)

	n.Invite(1, "<@5> joined")
	n.Log(1, "New member joined <@5> invited by <@6>.")
	require.Len(t, r.sent, 2)

	assert.Equal(t, snowflake.ID(100), r.sent[0].channelID)
	assert.Nil(t, r.sent[0].create.AllowedMentions)

	assert.Equal(t, snowflake.ID(200), r.sent[1].channelID)
	require.NotNil(t, r.sent[1].create.AllowedMentions)
	assert.Empty(t, r.sent[1].create.AllowedMentions.Users)
}

func TestChannelNotifier_DropsWithoutChannel(t *testing.T) {
	r := &fakeRest{}
	n := NewChannelNotifier(r, notifierGuilds)

	n.Invite(2, "hello")
	n.Log(3, "hello")
	n.Invite(1, "")
	assert.Empty(t, r.sent)
}

func TestChannelNotifier_SplitsLongMessages(t *testing.T) {
	r := &fakeRest{}
	n := NewChannelNotifier(r, notifierGuilds)

	line := strings.Repeat("x", 999) + "\n"
	n.Log(1, strings.Repeat(line, 3))
	require.Len(t, r.sent, 2)
	assert.Equal(t, strings.Repeat(line, 2), r.sent[0].create.Content)
}

func TestChannelNotifier_SendError(t *testing.T) {
	r := &fakeRest{err: errors.New("missing permissions")}
	n := NewChannelNotifier(r, notifierGuilds)
	assert.NotPanics(t, func() { n.Invite(1, "hello") })
}
