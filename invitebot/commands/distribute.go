package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var (
	minLevel = 1
	maxLevel = 5
)

var Distribute = discord.SlashCommandCreate{
	Name:        "distribute",
	Description: "Initiates reward distribution.",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "level",
			Description: "Level",
			Required:    true,
			MinValue:    &minLevel,
			MaxValue:    &maxLevel,
		},
	},
}

// DistributeHandler hands out the rewards of one level of the stage that
// ended last.
func DistributeHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := guildOf(e)
		if !ok {
			return ephemeral(e, "This command can only be used in a server.")
		}
		if _, admin := isAdmin(e, b.Cfg.Guilds.Get(guildID)); !admin {
			return e.CreateMessage(discord.MessageCreate{Content: "This command requires admin."})
		}

		level := e.SlashCommandInteractionData().Int("level")
		b.Notifier.Log(guildID, fmt.Sprintf("Initiating distribution for level %d", level))

		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		respond := func(content string) error {
			chunks := utils.SplitMessage(content, utils.MaxMessageLength)
			if _, err := e.UpdateInteractionResponse(discord.MessageUpdate{Content: &chunks[0]}); err != nil {
				return err
			}
			for _, chunk := range chunks[1:] {
				if _, err := e.CreateFollowupMessage(discord.MessageCreate{Content: chunk}); err != nil {
					return err
				}
			}
			return nil
		}

		stage, err := b.Stages.PreviousStage(ctx, guildID)
		if err != nil {
			_ = respond("Failed to load the previous stage.")
			return err
		}
		if stage == nil {
			return respond("Previous stage not found.")
		}

		snapshot, err := b.Rankings.Rankings(ctx, stage.ID, guildID)
		if err != nil {
			_ = respond("Failed to load the rankings.")
			return err
		}
		if snapshot == nil {
			return respond(fmt.Sprintf("Rankings for the stage %s not found", stage.ID))
		}

		result, err := b.Distributor.DistributeLevelRewards(ctx, stage, snapshot, level, guildID)
		if contest.IsConfigError(err) {
			return respond(err.Error())
		}
		if err != nil {
			_ = respond("Distribution failed, rewards handed out so far were kept. Please try again.")
			return err
		}

		slog.Info("Rewards distributed",
			slog.String("type", "stage"),
			slog.String("stage_id", stage.ID),
			slog.Int("level", level),
			slog.Int("distributed", len(result.Distributed)),
			slog.Int("unclaimed", len(result.Unclaimed)),
		)
		if b.Archive != nil {
			if _, err := b.Archive.ArchiveDistribution(ctx, stage, level); err != nil {
				slog.Error("Failed to archive distribution",
					slog.String("type", "error"),
					slog.String("stage_id", stage.ID),
					slog.Any("error", err))
			}
		}
		return respond(DistributionMessage(stage, level, result))
	}
}
