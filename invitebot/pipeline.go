package invitebot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/internal/domain/ranking"
	"github.com/creasury/invitebot/internal/domain/stages"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
)

// GuildMembers answers the member questions the contest asks about a guild.
type GuildMembers interface {
	// RankedMemberIDs lists the members that take part in the ranking.
	RankedMemberIDs(guildID snowflake.ID) []snowflake.ID
	MemberCount(guildID snowflake.ID) int
}

type rankingArchiver interface {
	ArchiveRanking(ctx context.Context, stage *models.Stage, ranking *models.StageRanking) (string, error)
}

// Pipeline reacts to committed events and stage transitions.
type Pipeline struct {
	notifier contest.Notifier
	rankings *ranking.Engine
	stages   *stages.Controller
	members  GuildMembers
	archive  rankingArchiver
}

func NewPipeline(notifier contest.Notifier, rankings *ranking.Engine, controller *stages.Controller, members GuildMembers) *Pipeline {
	p := &Pipeline{
		notifier: notifier,
		rankings: rankings,
		stages:   controller,
		members:  members,
	}
	controller.OnGoalReached(p.OnGoalReached)
	controller.OnSwitch(p.OnSwitch)
	return p
}

// WithArchive keeps a copy of every final ranking.
func (p *Pipeline) WithArchive(a rankingArchiver) *Pipeline {
	p.archive = a
	return p
}

// OnProcessed is registered with the sequencer. It runs after the event was
// committed, so nothing here can undo the scoring.
func (p *Pipeline) OnProcessed(ctx context.Context, event *models.MembershipEvent, outcome *contest.Outcome) {
	for _, line := range outcome.LogLines {
		p.notifier.Log(event.GuildID, line)
	}
	if outcome.Message != "" {
		p.notifier.Invite(event.GuildID, outcome.Message)
	}

	if outcome.Stage == nil {
		return
	}
	if _, err := p.rankings.Recompute(ctx, outcome.Stage, p.members.RankedMemberIDs(event.GuildID)); err != nil {
		slog.Error("Failed to recompute rankings",
			slog.String("type", "error"),
			slog.String("stage_id", outcome.Stage.ID),
			slog.Any("error", err),
		)
	}
	if event.Type != models.EventJoin {
		return
	}
	if _, err := p.stages.CheckGoal(ctx, outcome.Stage, p.members.MemberCount(event.GuildID)); err != nil {
		slog.Error("Failed to check stage goal",
			slog.String("type", "error"),
			slog.String("stage_id", outcome.Stage.ID),
			slog.Any("error", err),
		)
	}
}

func (p *Pipeline) OnGoalReached(_ context.Context, stage *models.Stage, endTime time.Time) {
	p.notifier.Invite(stage.GuildID, fmt.Sprintf(
		"Attention @everyone, the stage **%s** has reached its goal of **%d** members! :confetti_ball:\n\nThe stage ends <t:%d:R>, on <t:%d:F>. There is still time to climb the leaderboard!\n",
		stage.ID, stage.Goals.MemberCount, endTime.Unix(), endTime.Unix(),
	))
	p.notifier.Log(stage.GuildID, fmt.Sprintf("Stage **%s** goal reached, ending at %s", stage.ID, endTime.Format(time.RFC3339)))
}

// OnSwitch freezes the final ranking of the ended stage and announces the
// next one.
func (p *Pipeline) OnSwitch(ctx context.Context, ended, next *models.Stage) {
	final, err := p.rankings.Recompute(ctx, ended, p.members.RankedMemberIDs(ended.GuildID))
	if err != nil {
		slog.Error("Failed to compute final rankings",
			slog.String("type", "error"),
			slog.String("stage_id", ended.ID),
			slog.Any("error", err),
		)
	} else if p.archive != nil {
		if _, err := p.archive.ArchiveRanking(ctx, ended, final); err != nil {
			slog.Error("Failed to archive final rankings",
				slog.String("type", "error"),
				slog.String("stage_id", ended.ID),
				slog.Any("error", err),
			)
		}
	}

	message := fmt.Sprintf("The stage **%s** has ended! Thank you all for taking part. :pray:\n", ended.ID)
	if next != nil {
		message += fmt.Sprintf("\nThe stage **%s** has just started! :fire::fire::fire:\n", next.ID)
		if next.Goals.MemberCount > 0 {
			message += fmt.Sprintf("\nThe stage goal is set to reach **%d** members. Good luck, @everyone!\n", next.Goals.MemberCount)
		}
	}
	p.notifier.Invite(ended.GuildID, message)

	if next != nil {
		p.notifier.Log(ended.GuildID, fmt.Sprintf("Ended stage **%s**, started stage **%s**", ended.ID, next.ID))
		return
	}
	p.notifier.Log(ended.GuildID, fmt.Sprintf("Ended stage **%s**, no stage follows it", ended.ID))
}
