package commands

import (
	"context"
	"slices"
	"time"

	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/handlers"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"
)

const (
	commandTimeout = 8 * time.Second

	stageCurrent  = "current"
	stagePrevious = "previous"
)

var Commands = []discord.ApplicationCommandCreate{
	Stage,
	Distribute,
	Leaderboard,
	Scoreboard,
	Rank,
	Invites,
	Ping,
	Version,
}

// Register routes every command of the bot.
func Register(h handler.Router, b *invitebot.Bot) {
	h.Command("/stage/start", handlers.WrapWithLogging("stage start", StageStartHandler(b)))
	h.Autocomplete("/stage/start", StageAutocompleteHandler(b))
	h.Command("/distribute", handlers.WrapWithLogging("distribute", DistributeHandler(b)))
	h.Command("/leaderboard", handlers.WrapWithLogging("leaderboard", LeaderboardHandler(b)))
	h.Command("/scoreboard", handlers.WrapWithLogging("scoreboard", ScoreboardHandler(b)))
	h.Command("/rank", handlers.WrapWithLogging("rank", RankHandler(b)))
	h.Command("/invites", handlers.WrapWithLogging("invites", InvitesHandler(b)))
	h.Command("/ping", PingHandler)
	h.Command("/version", VersionHandler(b))
}

var stageSelector = discord.ApplicationCommandOptionString{
	Name:        "stage",
	Description: "Stage selector",
	Required:    false,
	Choices: []discord.ApplicationCommandOptionChoiceString{
		{Name: stageCurrent, Value: stageCurrent},
		{Name: stagePrevious, Value: stagePrevious},
	},
}

// selectStage resolves the stage selector option. When no stage matches,
// the returned text explains why.
func selectStage(ctx context.Context, b *invitebot.Bot, guildID snowflake.ID, option string) (*models.Stage, string, error) {
	if option == stagePrevious {
		stage, err := b.Stages.PreviousStage(ctx, guildID)
		if err != nil || stage == nil {
			return nil, "Previous stage not found.", err
		}
		return stage, "", nil
	}

	stage, err := b.Stages.ActiveStage(ctx, guildID)
	if err != nil || stage == nil {
		return nil, "Currently there is no active stage.", err
	}
	return stage, "", nil
}

// isAdmin reports whether the admin role is configured for the guild and
// whether the member invoking e holds it.
func isAdmin(e *handler.CommandEvent, guild *invitebot.GuildConfig) (configured bool, admin bool) {
	if guild == nil || guild.AdminRoleID == 0 {
		return false, false
	}
	member := e.Member()
	if member == nil {
		return true, false
	}
	return true, slices.Contains(member.RoleIDs, guild.AdminRoleID)
}

func reply(e *handler.CommandEvent, content string, mentions *discord.AllowedMentions) error {
	chunks := utils.SplitMessage(content, utils.MaxMessageLength)
	if len(chunks) == 0 {
		chunks = []string{"Nothing to show."}
	}
	if err := e.CreateMessage(discord.MessageCreate{Content: chunks[0], AllowedMentions: mentions}); err != nil {
		return err
	}
	for _, chunk := range chunks[1:] {
		if _, err := e.CreateFollowupMessage(discord.MessageCreate{Content: chunk, AllowedMentions: mentions}); err != nil {
			return err
		}
	}
	return nil
}

func ephemeral(e *handler.CommandEvent, content string) error {
	return e.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	})
}

func guildOf(e *handler.CommandEvent) (snowflake.ID, bool) {
	if id := e.GuildID(); id != nil {
		return *id, true
	}
	return 0, false
}
