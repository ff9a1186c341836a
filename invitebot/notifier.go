package invitebot

import (
	"log/slog"

	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

type messageCreator interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// ChannelNotifier posts contest messages to the invite and log channels of a
// guild. Log messages never ping anyone.
type ChannelNotifier struct {
	rest   messageCreator
	guilds Guilds
}

func NewChannelNotifier(rest messageCreator, guilds Guilds) *ChannelNotifier {
	return &ChannelNotifier{rest: rest, guilds: guilds}
}

func (n *ChannelNotifier) Invite(guildID snowflake.ID, message string) {
	var channelID snowflake.ID
	if cfg := n.guilds.Get(guildID); cfg != nil {
		channelID = cfg.InviteChannelID
	}
	n.send(guildID, channelID, "invite", message, nil)
}

func (n *ChannelNotifier) Log(guildID snowflake.ID, message string) {
	var channelID snowflake.ID
	if cfg := n.guilds.Get(guildID); cfg != nil {
		channelID = cfg.LogChannelID
	}
	n.send(guildID, channelID, "log", message, &discord.AllowedMentions{})
}

func (n *ChannelNotifier) send(guildID, channelID snowflake.ID, kind, message string, mentions *discord.AllowedMentions) {
	if message == "" {
		return
	}
	if channelID == 0 {
		slog.Warn("Channel is not configured, message dropped",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID.String()),
			slog.String("channel", kind),
		)
		return
	}

	for _, chunk := range utils.SplitMessage(message, utils.MaxMessageLength) {
		create := discord.NewMessageCreateBuilder().SetContent(chunk)
		if mentions != nil {
			create.SetAllowedMentions(mentions)
		}
		if _, err := n.rest.CreateMessage(channelID, create.Build()); err != nil {
			slog.Error("Failed to send channel message",
				slog.String("type", "error"),
				slog.String("guild_id", guildID.String()),
				slog.String("channel_id", channelID.String()),
				slog.Any("error", err),
			)
			return
		}
	}
}
