package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/invites"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

const appendTimeout = 10 * time.Second

type eventAppender interface {
	Append(ctx context.Context, event *models.MembershipEvent) error
}

type inviteTracker interface {
	Snapshot(guildID snowflake.ID) error
	ResolveInviter(guildID snowflake.ID) (snowflake.ID, error)
	Add(guildID snowflake.ID, inv invites.Invite)
	Remove(guildID snowflake.ID, code string)
}

// Membership turns gateway member and invite events into queued contest
// events. Guilds that are not configured are ignored.
type Membership struct {
	events   eventAppender
	invites  inviteTracker
	notifier contest.Notifier
	guilds   invitebot.Guilds
	ready    func(guildID snowflake.ID)
	now      func() time.Time
}

func NewMembership(events eventAppender, tracker inviteTracker, notifier contest.Notifier, guilds invitebot.Guilds) *Membership {
	return &Membership{
		events:   events,
		invites:  tracker,
		notifier: notifier,
		guilds:   guilds,
		ready:    func(snowflake.ID) {},
		now:      time.Now,
	}
}

// MembershipHandler wires the gateway listeners of b.
func MembershipHandler(b *invitebot.Bot) bot.EventListener {
	m := NewMembership(b.Sequencer, b.Invites, b.Notifier, b.Cfg.Guilds)
	m.ready = b.StartSequencer
	return m.Listener()
}

func (m *Membership) Listener() bot.EventListener {
	return &events.ListenerAdapter{
		OnGuildReady: func(e *events.GuildReady) {
			m.GuildReady(e.GuildID)
		},
		OnGuildMemberJoin: func(e *events.GuildMemberJoin) {
			ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
			defer cancel()
			if err := m.Join(ctx, e.GuildID, e.Member.User); err != nil {
				logAppendError(e.GuildID, e.Member.User.ID, err)
			}
		},
		OnGuildMemberLeave: func(e *events.GuildMemberLeave) {
			ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
			defer cancel()
			if err := m.Leave(ctx, e.GuildID, e.User.ID); err != nil {
				logAppendError(e.GuildID, e.User.ID, err)
			}
		},
		OnInviteCreate: func(e *events.InviteCreate) {
			if e.GuildID == nil {
				return
			}
			var inviterID snowflake.ID
			if e.Invite.Inviter != nil {
				inviterID = e.Invite.Inviter.ID
			}
			m.InviteCreated(*e.GuildID, e.ChannelID, invites.Invite{Code: e.Code, InviterID: inviterID})
		},
		OnInviteDelete: func(e *events.InviteDelete) {
			if e.GuildID != nil && m.guilds.Get(*e.GuildID) != nil {
				m.invites.Remove(*e.GuildID, e.Code)
			}
		},
	}
}

// GuildReady snapshots the invites of a guild and starts its sequencer.
func (m *Membership) GuildReady(guildID snowflake.ID) {
	if m.guilds.Get(guildID) == nil {
		return
	}
	if err := m.invites.Snapshot(guildID); err != nil {
		slog.Error("Failed to snapshot invites",
			slog.String("type", "error"),
			slog.String("guild_id", guildID.String()),
			slog.Any("error", err),
		)
	}
	m.notifier.Log(guildID, fmt.Sprintf("%s Bot ready for action!", m.guilds.CommunityName(guildID)))
	m.ready(guildID)
}

// Join queues the join of user. Accounts younger than the guild's minimum
// account age count as fake.
func (m *Membership) Join(ctx context.Context, guildID snowflake.ID, user discord.User) error {
	if m.guilds.Get(guildID) == nil {
		return nil
	}

	inviterID, err := m.invites.ResolveInviter(guildID)
	if err != nil {
		slog.Warn("Failed to resolve inviter",
			slog.String("type", "event"),
			slog.String("guild_id", guildID.String()),
			slog.Any("error", err),
		)
	}
	m.notifier.Log(guildID, fmt.Sprintf("New member joined %s invited by %s.", utils.UserTag(user.ID), utils.InviterTag(inviterID)))

	return m.events.Append(ctx, &models.MembershipEvent{
		GuildID:   guildID,
		Type:      models.EventJoin,
		UserID:    user.ID,
		InviterID: inviterID,
		Fake:      m.now().Sub(user.ID.Time()) < m.guilds.MinAccountAge(guildID),
	})
}

func (m *Membership) Leave(ctx context.Context, guildID, userID snowflake.ID) error {
	if m.guilds.Get(guildID) == nil {
		return nil
	}
	m.notifier.Log(guildID, fmt.Sprintf("Member left: %s.", utils.UserTag(userID)))

	return m.events.Append(ctx, &models.MembershipEvent{
		GuildID: guildID,
		Type:    models.EventLeave,
		UserID:  userID,
	})
}

func (m *Membership) InviteCreated(guildID, channelID snowflake.ID, inv invites.Invite) {
	if m.guilds.Get(guildID) == nil {
		return
	}
	m.invites.Add(guildID, inv)
	m.notifier.Log(guildID, fmt.Sprintf("A new invite code \"%s\" was created by %s for channel %s.", inv.Code, utils.UserTag(inv.InviterID), utils.ChannelTag(channelID)))
}

func logAppendError(guildID, userID snowflake.ID, err error) {
	slog.Error("Failed to queue membership event",
		slog.String("type", "error"),
		slog.String("guild_id", guildID.String()),
		slog.String("user_id", userID.String()),
		slog.Any("error", err),
	)
}
