package commands

import (
	"context"

	"github.com/creasury/invitebot/invitebot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Invites = discord.SlashCommandCreate{
	Name:        "invites",
	Description: "Shows the invite counters and rewards of a member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Member to look up, yourself by default",
			Required:    false,
		},
	},
}

func InvitesHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := guildOf(e)
		if !ok {
			return ephemeral(e, "This command can only be used in a server.")
		}
		user := e.User()
		if member, ok := e.SlashCommandInteractionData().OptUser("member"); ok {
			user = member
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		counters, err := b.Store.Counters().ListByMember(ctx, user.ID, guildID)
		if err != nil {
			return err
		}
		won, err := b.Store.Rewards().ListByMember(ctx, user.ID, guildID)
		if err != nil {
			return err
		}
		return ephemeral(e, InvitesMessage(user.ID, counters, won))
	}
}
