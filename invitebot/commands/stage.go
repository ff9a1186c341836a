package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/sahilm/fuzzy"
)

const maxAutocompleteChoices = 25

var Stage = discord.SlashCommandCreate{
	Name:        "stage",
	Description: "Controls stage state.",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "start",
			Description: "Start a stage",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         "stage_id",
					Description:  "Stage ID",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
	},
}

func StageStartHandler(b *invitebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := guildOf(e)
		if !ok {
			return ephemeral(e, "This command can only be used in a server.")
		}
		configured, admin := isAdmin(e, b.Cfg.Guilds.Get(guildID))
		if !configured {
			return e.CreateMessage(discord.MessageCreate{Content: "Admin role ID is not configured."})
		}
		if !admin {
			return e.CreateMessage(discord.MessageCreate{Content: "This command requires an admin role."})
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		stageID := strings.TrimSpace(e.SlashCommandInteractionData().String("stage_id"))
		started, err := b.Stages.StartStage(ctx, stageID, guildID)
		if contest.IsConfigError(err) {
			return e.CreateMessage(discord.MessageCreate{Content: err.Error()})
		}
		if err != nil {
			_ = e.CreateMessage(discord.MessageCreate{Content: "Failed to start the stage, please try again."})
			return err
		}

		startedAt := time.Now().UTC()
		if started.StartedAt != nil {
			startedAt = *started.StartedAt
		}
		b.Notifier.Log(guildID, fmt.Sprintf("Started stage **%s** at %s", started.ID, startedAt.Format(time.RFC1123)))
		return e.CreateMessage(discord.MessageCreate{Content: StageStartedMessage(started)})
	}
}

// StageAutocompleteHandler suggests stages that can still be started.
func StageAutocompleteHandler(b *invitebot.Bot) handler.AutocompleteHandler {
	return func(e *handler.AutocompleteEvent) error {
		focused := e.Data.Focused()
		if focused.Name != "stage_id" || e.GuildID() == nil {
			return e.AutocompleteResult(nil)
		}

		query := ""
		if focused.Value != nil {
			var s string
			if err := json.Unmarshal(focused.Value, &s); err == nil {
				query = strings.TrimSpace(s)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		stages, err := b.Store.Stages().List(ctx, *e.GuildID())
		if err != nil {
			slog.Error("Failed to list stages",
				slog.String("type", "error"),
				slog.Any("error", err))
			return e.AutocompleteResult(nil)
		}

		choices := make([]discord.AutocompleteChoice, 0, maxAutocompleteChoices)
		for _, id := range MatchStages(stages, query) {
			if len(choices) == maxAutocompleteChoices {
				break
			}
			choices = append(choices, discord.AutocompleteChoiceString{Name: id, Value: id})
		}
		return e.AutocompleteResult(choices)
	}
}

// MatchStages returns the ids of stages that have not ended, best fuzzy
// match first. An empty query keeps the stage order.
func MatchStages(stages []*models.Stage, query string) []string {
	ids := make([]string, 0, len(stages))
	for _, s := range stages {
		if !s.Ended {
			ids = append(ids, s.ID)
		}
	}
	if query == "" {
		return ids
	}

	matches := fuzzy.Find(strings.ToLower(query), lowered(ids))
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = ids[m.Index]
	}
	return out
}

func lowered(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.ToLower(id)
	}
	return out
}
