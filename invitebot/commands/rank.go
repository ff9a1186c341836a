package commands

import (
	"context"

	"github.com/creasury/invitebot/internal/domain/ranking"
	"github.com/creasury/invitebot/invitebot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Rank = discord.SlashCommandCreate{
	Name:        "rank",
	Description: "Checks your current stage rank",
	Options:     []discord.ApplicationCommandOption{stageSelector},
}

func RankHandler(b *invitebot.Bot) handler.CommandHandler {
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
			return ephemeral(e, message)
		}

		rankings, err := b.Rankings.Rankings(ctx, stage.ID, guildID)
		if err != nil {
			return err
		}
		if rankings == nil {
			return ephemeral(e, RankMessage(stage, nil, 0, 0))
		}

		entry := rankings.Find(e.User().ID)
		diff := 0
		if entry != nil {
			diff = ranking.NextLevelPointsDiff(entry.Level, entry.Points, rankings.Rankings, stage.Levels)
		}
		return ephemeral(e, RankMessage(stage, entry, len(rankings.Rankings), diff))
	}
}
