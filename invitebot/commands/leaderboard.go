package commands

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/creasury/invitebot/internal/domain/leaderboard"
	"github.com/creasury/invitebot/invitebot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
)

const scoreboardPageSize = 20

var Leaderboard = discord.SlashCommandCreate{
	Name:        "leaderboard",
	Description: "Prints the stage leaderboard.",
	Options:     []discord.ApplicationCommandOption{stageSelector},
}

var Scoreboard = discord.SlashCommandCreate{
	Name:        "scoreboard",
	Description: "Prints stage levels and ranking.",
	Options:     []discord.ApplicationCommandOption{stageSelector},
}

// LeaderboardHandler shows the top of the ranking, the level boundaries and
// the neighbourhood of the caller.
func LeaderboardHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := guildOf(e)
		if !ok {
			return ephemeral(e, "This command can only be used in a server.")
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		stage, message, err := selectStage(ctx, b, guildID, e.SlashCommandInteractionData().String("stage"))
		if err != nil {
			return err
		}
		if stage == nil {
			return reply(e, message, nil)
		}

		rankings, err := b.Rankings.Rankings(ctx, stage.ID, guildID)
		if err != nil {
			return err
		}
		if rankings == nil {
			return reply(e, fmt.Sprintf("Leaderboard for the stage **%s** does not exist yet.", stage.ID), nil)
		}
		entries := leaderboard.Window(rankings.Rankings, e.User().ID)
		return reply(e, LeaderboardMessage(stage, entries), &discord.AllowedMentions{})
	}
}

// ScoreboardHandler pages through the whole ranking. Guilds may limit it to
// a few channels.
func ScoreboardHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := guildOf(e)
		if !ok {
			return ephemeral(e, "This command can only be used in a server.")
		}
		if !b.Cfg.Guilds.ScoreboardAllowed(guildID, e.ChannelID()) {
			return e.CreateMessage(discord.MessageCreate{
				Content:         ChannelsMessage(b.Cfg.Guilds.Get(guildID).ScoreboardChannelIDs),
				AllowedMentions: &discord.AllowedMentions{},
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		stage, message, err := selectStage(ctx, b, guildID, e.SlashCommandInteractionData().String("stage"))
		if err != nil {
			return err
		}
		if stage == nil {
			return reply(e, message, nil)
		}

		rankings, err := b.Rankings.Rankings(ctx, stage.ID, guildID)
		if err != nil {
			return err
		}
		if rankings == nil || len(rankings.Rankings) == 0 {
			return reply(e, fmt.Sprintf("Scoreboard for the stage **%s** does not exist yet.", stage.ID), nil)
		}

		lines := ScoreboardLines(stage, rankings.Rankings, e.User().ID)
		totalPages := int(math.Ceil(float64(len(lines)) / float64(scoreboardPageSize)))

		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * scoreboardPageSize
				end := min(start+scoreboardPageSize, len(lines))

				embed.
					SetTitle(fmt.Sprintf("Scoreboard for the stage %s", stage.ID)).
					SetDescription(strings.Join(lines[start:end], "\n")).
					SetColor(0x2B2D31).
					SetFooter(fmt.Sprintf("Page %d/%d • %d members", page+1, totalPages, len(lines)), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}
