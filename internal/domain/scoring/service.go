package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/snowflake/v2"
)

// GuildSettings is the per-guild configuration scoring depends on.
type GuildSettings interface {
	ExcludedFromRanking(guildID, userID snowflake.ID) bool
	MinAccountAge(guildID snowflake.ID) time.Duration
	CommunityName(guildID snowflake.ID) string
}

// Service turns membership events into counter updates.
type Service struct {
	settings GuildSettings
}

func NewService(settings GuildSettings) *Service {
	return &Service{settings: settings}
}

// Process scores one event against the stage active in tx.
func (s *Service) Process(ctx context.Context, tx contest.Store, event *models.MembershipEvent) (*contest.Outcome, error) {
	stage, err := tx.Stages().GetActive(ctx, event.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active stage: %w", err)
	}

	switch event.Type {
	case models.EventJoin:
		return s.Join(ctx, tx, event, stage)
	case models.EventLeave:
		return s.Leave(ctx, tx, event, stage)
	}
	return nil, fmt.Errorf("unknown event type %q", event.Type)
}

// Join records a join. The original inviter is credited, never the current
// one, so rejoins through another invite still count for the first inviter.
func (s *Service) Join(ctx context.Context, tx contest.Store, event *models.MembershipEvent, stage *models.Stage) (*contest.Outcome, error) {
	out := &contest.Outcome{Stage: stage}

	member, err := tx.Members().Get(ctx, event.UserID, event.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if member == nil {
		member = &models.Member{UserID: event.UserID, GuildID: event.GuildID}
	} else {
		out.Rejoin = true
	}
	if member.OriginalInviteTimestamp.IsZero() {
		member.OriginalInviterID = event.InviterID
		member.OriginalInviteTimestamp = event.Timestamp
	}
	member.InviterID = event.InviterID
	member.InviteTimestamp = event.Timestamp
	member.Fake = event.Fake
	member.Removed = false
	member.RemoveTimestamp = nil
	member.UpdatedAt = event.Timestamp

	if err := tx.Members().Upsert(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to save member: %w", err)
	}
	event.OriginalInviterID = member.OriginalInviterID
	out.OriginalInviterID = member.OriginalInviterID

	if out.Rejoin {
		if _, err := s.bump(ctx, tx, out, member.UserID, member.GuildID, models.GlobalCounter(models.FieldRejoins), 1); err != nil {
			return nil, err
		}
	}

	message := s.joinMessage(member, out.Rejoin)

	if err := s.joinGlobal(ctx, tx, out, member); err != nil {
		return nil, err
	}

	if stage == nil {
		out.Log("No active stage found, won't award any stage points.")
		out.Message = message
		return out, nil
	}

	stageMessage, err := s.joinStage(ctx, tx, out, member, stage)
	if err != nil {
		return nil, err
	}
	if err := s.snapshotPoints(ctx, tx, out, member, stage); err != nil {
		return nil, err
	}

	out.Message = message + "\n" + stageMessage
	return out, nil
}

func (s *Service) joinGlobal(ctx context.Context, tx contest.Store, out *contest.Outcome, member *models.Member) error {
	if !member.HasOriginalInviter() {
		out.Log(fmt.Sprintf("Original inviter of member %s is unknown, no global points will be awarded.", utils.UserTag(member.UserID)))
		return nil
	}

	inviter := member.OriginalInviterID
	if member.Fake {
		_, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldFakeInvites), 1)
		return err
	}
	if _, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldRegularInvites), 1); err != nil {
		return err
	}
	_, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldTotalInvites), 1)
	return err
}

func (s *Service) joinStage(ctx context.Context, tx contest.Store, out *contest.Outcome, member *models.Member, stage *models.Stage) (string, error) {
	if !member.HasOriginalInviter() {
		out.Log(fmt.Sprintf("Original inviter of member %s is unknown, no stage points will be awarded.", utils.UserTag(member.UserID)))
		return fmt.Sprintf("Original inviter of member %s is unknown, no points will be awarded.\n", utils.UserTag(member.UserID)), nil
	}

	inviter := member.OriginalInviterID
	public := !s.settings.ExcludedFromRanking(member.GuildID, inviter)

	switch {
	case member.Fake:
		if _, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.StageCounter(stage.ID, models.FieldFakeInvites), 1); err != nil {
			return "", err
		}
		if public {
			return fmt.Sprintf("Minimum account age requirements weren't met (> %d days), %s won't be awarded any points.\n",
				int(s.settings.MinAccountAge(member.GuildID).Hours()/24), utils.UserTag(inviter)), nil
		}
	case stage.StartedBefore(member.OriginalInviteTimestamp):
		out.Log(fmt.Sprintf("%s originally joined before the current stage has started, no points will be awarded.", utils.UserTag(member.UserID)))
		if public {
			return fmt.Sprintf("%s originally joined before the current stage has started, %s won't be awarded any points.\n",
				utils.UserTag(member.UserID), utils.UserTag(inviter)), nil
		}
	default:
		points, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.StageCounter(stage.ID, models.FieldPoints), 1)
		if err != nil {
			return "", err
		}
		if public {
			return fmt.Sprintf("%s just gained 1 point and now has %s in total.\n", utils.UserTag(inviter), utils.Points(points)), nil
		}
	}
	return "", nil
}

// Leave records a departure, undoing what the join earned.
func (s *Service) Leave(ctx context.Context, tx contest.Store, event *models.MembershipEvent, stage *models.Stage) (*contest.Outcome, error) {
	out := &contest.Outcome{Stage: stage}

	member, err := tx.Members().Get(ctx, event.UserID, event.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		member = &models.Member{UserID: event.UserID, GuildID: event.GuildID, InviteTimestamp: event.Timestamp}
	}
	removedAt := event.Timestamp
	member.Removed = true
	member.RemoveTimestamp = &removedAt
	member.UpdatedAt = event.Timestamp

	if err := tx.Members().Upsert(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to save member: %w", err)
	}
	event.OriginalInviterID = member.OriginalInviterID
	event.Fake = member.Fake
	out.OriginalInviterID = member.OriginalInviterID

	message := fmt.Sprintf("%s has left the %s community. :pensive:\n", utils.UserTag(member.UserID), s.settings.CommunityName(member.GuildID))
	message += fmt.Sprintf("They were originally invited by %s.\n", utils.InviterTag(member.OriginalInviterID))

	if err := s.leaveGlobal(ctx, tx, out, member); err != nil {
		return nil, err
	}

	if stage == nil {
		out.Log("No active stage found, won't update stage points.")
		out.Message = message
		return out, nil
	}

	stageMessage, err := s.leaveStage(ctx, tx, out, member, stage)
	if err != nil {
		return nil, err
	}
	if err := s.snapshotPoints(ctx, tx, out, member, stage); err != nil {
		return nil, err
	}

	out.Message = message + "\n" + stageMessage
	return out, nil
}

func (s *Service) leaveGlobal(ctx context.Context, tx contest.Store, out *contest.Outcome, member *models.Member) error {
	if !member.HasOriginalInviter() {
		out.Log(fmt.Sprintf("Original inviter of member %s is unknown, won't update global points.", utils.UserTag(member.UserID)))
		return nil
	}

	inviter := member.OriginalInviterID
	if member.Fake {
		_, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldFakeLeaves), 1)
		return err
	}
	if _, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldRegularLeaves), 1); err != nil {
		return err
	}
	_, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.GlobalCounter(models.FieldTotalInvites), -1)
	return err
}

func (s *Service) leaveStage(ctx context.Context, tx contest.Store, out *contest.Outcome, member *models.Member, stage *models.Stage) (string, error) {
	if !member.HasOriginalInviter() {
		line := fmt.Sprintf("Original inviter of member %s is unknown, won't update stage points.", utils.UserTag(member.UserID))
		out.Log(line)
		return line, nil
	}

	inviter := member.OriginalInviterID
	public := !s.settings.ExcludedFromRanking(member.GuildID, inviter)

	switch {
	case member.Fake:
		if _, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.StageCounter(stage.ID, models.FieldFakeLeaves), 1); err != nil {
			return "", err
		}
		if public {
			return fmt.Sprintf("Minimum account age requirements weren't met (> %d hours), won't update stage points.",
				int(s.settings.MinAccountAge(member.GuildID).Hours())), nil
		}
	case stage.StartedBefore(member.OriginalInviteTimestamp):
		line := fmt.Sprintf("%s originally joined before the current stage has started, won't update stage points.", utils.UserTag(member.UserID))
		out.Log(line)
		if public {
			return line, nil
		}
	default:
		points, err := s.bump(ctx, tx, out, inviter, member.GuildID, models.StageCounter(stage.ID, models.FieldPoints), -1)
		if err != nil {
			return "", err
		}
		if public {
			return fmt.Sprintf("%s just lost 1 point and now has %s in total.", utils.UserTag(inviter), utils.Points(points)), nil
		}
	}
	return "", nil
}

// snapshotPoints records the stage points the original inviter holds after
// this event. Ranking tie-breaks look these snapshots up.
func (s *Service) snapshotPoints(ctx context.Context, tx contest.Store, out *contest.Outcome, member *models.Member, stage *models.Stage) error {
	if !member.HasOriginalInviter() {
		return nil
	}
	points, err := tx.Counters().Get(ctx, member.OriginalInviterID, member.GuildID, models.StageCounter(stage.ID, models.FieldPoints))
	if err != nil {
		return fmt.Errorf("failed to read stage points: %w", err)
	}
	out.StagePoints = &points
	return nil
}

func (s *Service) bump(ctx context.Context, tx contest.Store, out *contest.Outcome, userID, guildID snowflake.ID, key models.CounterKey, delta int) (int, error) {
	value, err := tx.Counters().Increment(ctx, userID, guildID, key, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to update counter %s: %w", key, err)
	}

	direction := "incremented"
	if delta < 0 {
		direction = "decremented"
	}
	scope := "Global"
	if key.Scope == models.ScopeStage {
		scope = key.StageID
	}
	out.Log(fmt.Sprintf(`%s counter **"%s"** %s for member %s, they now have %d.`, scope, key.Field, direction, utils.UserTag(userID), value))
	return value, nil
}

func (s *Service) joinMessage(member *models.Member, rejoin bool) string {
	var b strings.Builder
	prefix := ""
	if rejoin {
		prefix = "re-"
	}
	fmt.Fprintf(&b, "%s has %sjoined the %s community! :tada:\n", utils.UserTag(member.UserID), prefix, s.settings.CommunityName(member.GuildID))
	if !rejoin {
		fmt.Fprintf(&b, "They were invited by %s.\n", utils.InviterTag(member.OriginalInviterID))
		return b.String()
	}
	fmt.Fprintf(&b, "They were invited by %s.\n", utils.InviterTag(member.InviterID))
	if member.InviterID != member.OriginalInviterID {
		fmt.Fprintf(&b, "They were **originally** invited by %s.\n", utils.InviterTag(member.OriginalInviterID))
	}
	return b.String()
}
