package invitebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	contestevents "github.com/creasury/invitebot/internal/domain/events"
	"github.com/creasury/invitebot/internal/domain/ranking"
	"github.com/creasury/invitebot/internal/domain/rewards"
	"github.com/creasury/invitebot/internal/domain/scoring"
	"github.com/creasury/invitebot/internal/domain/stages"
	"github.com/creasury/invitebot/invitebot/archive"
	"github.com/creasury/invitebot/invitebot/database"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/invites"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
	"github.com/disgoorg/snowflake/v2"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
		Processes: utils.NewProcessManager(),
	}
}

type Bot struct {
	Cfg         Config
	Client      bot.Client
	Paginator   *paginator.Manager
	Version     string
	Commit      string
	DB          *database.DB
	Store       contest.Store
	Scoring     *scoring.Service
	Sequencer   *contestevents.Sequencer
	Rankings    *ranking.Engine
	Distributor *rewards.Distributor
	Stages      *stages.Controller
	Archive     *archive.Archiver
	Notifier    *ChannelNotifier
	Invites     *invites.Tracker
	Pipeline    *Pipeline
	Processes   *utils.ProcessManager
}

// Init builds the contest services on top of db. It has to run before
// SetupBot.
func (b *Bot) Init(ctx context.Context, db *database.DB) error {
	b.DB = db
	b.Store = database.NewStore(db.BunDB())
	b.Scoring = scoring.NewService(b.Cfg.Guilds)
	b.Sequencer = contestevents.NewSequencer(b.Store, b.Scoring, contestevents.Config{
		PollInterval:    b.Cfg.Contest.PollInterval.Std(),
		RetryBackoff:    b.Cfg.Contest.RetryBackoff.Std(),
		MaxRetryBackoff: b.Cfg.Contest.MaxRetryBackoff.Std(),
	})
	b.Rankings = ranking.NewEngine(b.Store, b.Cfg.Contest.RankingCacheSize)
	b.Stages = stages.NewController(b.Store, b.Cfg.Contest.CountdownInterval.Std())

	random, err := rewards.NewRandomSource(b.Cfg.Contest.LotterySeed)
	if err != nil {
		return fmt.Errorf("failed to seed lottery: %w", err)
	}
	b.Distributor = rewards.NewDistributor(b.Store, random)

	if b.Cfg.Spaces.Enabled() {
		if b.Archive, err = archive.New(ctx, b.Cfg.Spaces); err != nil {
			return err
		}
	}
	return nil
}

// DefineStages stores stage definitions. Stages that already started keep
// their runtime state and rewards.
func (b *Bot) DefineStages(ctx context.Context, defined []*models.Stage) error {
	for _, stage := range defined {
		if b.Cfg.Guilds.Get(stage.GuildID) == nil {
			return fmt.Errorf("stage %s belongs to guild %s, which is not configured", stage.ID, stage.GuildID)
		}
		if err := b.Store.Stages().Define(ctx, stage); err != nil {
			return fmt.Errorf("failed to define stage %s: %w", stage.ID, err)
		}
		slog.Info("Stage defined",
			slog.String("type", "stage"),
			slog.String("stage_id", stage.ID),
			slog.String("guild_id", stage.GuildID.String()),
		)
	}
	return nil
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentGuildMembers, gateway.IntentGuildInvites)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds, cache.FlagMembers)),
		bot.WithMemberChunkingFilter(bot.MemberChunkingFilterAll),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	b.Notifier = NewChannelNotifier(client.Rest(), b.Cfg.Guilds)
	b.Invites = invites.NewTracker(invites.RestSource{Rest: client.Rest()})
	b.Pipeline = NewPipeline(b.Notifier, b.Rankings, b.Stages, cachedMembers{caches: client.Caches(), guilds: b.Cfg.Guilds})
	if b.Archive != nil {
		b.Pipeline.WithArchive(b.Archive)
	}
	b.Sequencer.OnProcessed(b.Pipeline.OnProcessed)
	return nil
}

// Start re-arms the stage countdowns left over from a previous run and
// starts the scheduler.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.Stages.Init(ctx, b.Cfg.Guilds.IDs()); err != nil {
		return err
	}
	b.Stages.Start()
	return nil
}

// StartSequencer starts consuming the event queue of a guild unless that
// already happens.
func (b *Bot) StartSequencer(guildID snowflake.ID) {
	name := "sequencer-" + guildID.String()
	if b.Processes.Running(name) {
		return
	}
	b.Processes.Start(name, func(ctx context.Context) {
		if err := b.Sequencer.Run(ctx, guildID); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Event sequencer stopped",
				slog.String("type", "error"),
				slog.String("guild_id", guildID.String()),
				slog.Any("error", err),
			)
		}
	})
}

func (b *Bot) Shutdown(timeout time.Duration) {
	if err := b.Processes.Shutdown(timeout); err != nil {
		slog.Warn("Background processes did not stop in time", slog.String("type", "sys"))
	}
	if b.Stages != nil {
		b.Stages.Stop()
	}
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("InviteBot is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("your invites"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.String("type", "error"), slog.Any("error", err))
	}
}

// cachedMembers reads members from the gateway cache, which is filled by
// member chunking when a guild becomes ready.
type cachedMembers struct {
	caches cache.Caches
	guilds Guilds
}

func (m cachedMembers) RankedMemberIDs(guildID snowflake.ID) []snowflake.ID {
	var ids []snowflake.ID
	m.caches.MembersForEach(guildID, func(member discord.Member) {
		if member.User.Bot || m.guilds.ExcludedFromRanking(guildID, member.User.ID) {
			return
		}
		ids = append(ids, member.User.ID)
	})
	return ids
}

func (m cachedMembers) MemberCount(guildID snowflake.ID) int {
	count := 0
	m.caches.MembersForEach(guildID, func(discord.Member) {
		count++
	})
	return count
}
