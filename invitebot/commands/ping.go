package commands

import (
	"fmt"

	"github.com/creasury/invitebot/invitebot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Ping = discord.SlashCommandCreate{
	Name:        "ping",
	Description: "Replies with Pong!",
}

func PingHandler(e *handler.CommandEvent) error {
	return e.CreateMessage(discord.MessageCreate{Content: "Pong!"})
}

var Version = discord.SlashCommandCreate{
	Name:        "version",
	Description: "Shows the running bot version",
}

func VersionHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		return ephemeral(e, fmt.Sprintf("Version: %s\nCommit: %s", b.Version, b.Commit))
	}
}
