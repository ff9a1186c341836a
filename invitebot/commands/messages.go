package commands

import (
	"fmt"
	"slices"
	"strings"

	"github.com/creasury/invitebot/internal/domain/leaderboard"
	"github.com/creasury/invitebot/internal/domain/rewards"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/creasury/invitebot/invitebot/utils"
	"github.com/disgoorg/snowflake/v2"
)

func rewardTag(stage *models.Stage, level int) string {
	return utils.RewardTag(stage.RewardName, stage.Order+1, level)
}

// StageStartedMessage announces a stage to everyone.
func StageStartedMessage(stage *models.Stage) string {
	message := fmt.Sprintf("Big news, @everyone! I am pleased to announce that the stage **%s** has just started! :fire::fire::fire:\n\n", stage.ID)
	return message + fmt.Sprintf("The stage goal is set to reach **%d** members. Good luck, @everyone!\n", stage.Goals.MemberCount)
}

// DistributionMessage lists the winners of a level and what was left over.
func DistributionMessage(stage *models.Stage, level int, result *rewards.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attention @everyone, starting reward distribution for the stage **%s** and level **%d**.\n\n", stage.ID, level)

	for _, reward := range result.Distributed {
		id := utils.MarkdownEscape(reward.ID)
		if len(reward.Winners) == 0 {
			fmt.Fprintf(&b, "Reward **%s** winners could not yet be determined.\n\n", id)
			continue
		}
		tags := make([]string, len(reward.Winners))
		for i, winner := range reward.Winners {
			tags[i] = utils.UserTag(winner)
		}
		fmt.Fprintf(&b, "Reward **%s** %s: %s. Congratulations!!! :tada::tada::tada:\n\n",
			id, utils.Plural(len(reward.Winners), "winner is", "winners are"), strings.Join(tags, ","))
	}

	for _, reward := range result.Unclaimed {
		id := utils.MarkdownEscape(reward.ID)
		if reward.Supply != nil && *reward.Supply > 0 {
			fmt.Fprintf(&b, "**%d %s** %s left unclaimed, as there were not enough candidates.\n\n",
				*reward.Supply, id, utils.Plural(*reward.Supply, "reward", "rewards"))
			continue
		}
		fmt.Fprintf(&b, "**%s** rewards left unclaimed, as there were not enough candidates.\n\n", id)
	}

	if len(result.Distributed) == 0 && len(result.Unclaimed) == 0 {
		b.WriteString("Oops, it seems all rewards for this level have already been distributed.\n\n")
	}
	return b.String()
}

// LeaderboardMessage renders a leaderboard window.
func LeaderboardMessage(stage *models.Stage, entries []leaderboard.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-------------------- Current leaderboard for the stage **%s** --------------------\n", stage.ID)
	for _, entry := range entries {
		if entry.IsSpacer() {
			b.WriteString("...\n")
			continue
		}
		r := entry.Ranking
		fmt.Fprintf(&b, "%d. %s %s, ", r.Position, utils.UserTag(r.ID), utils.Points(r.Points))
		if r.Level > 0 {
			fmt.Fprintf(&b, "**%s** candidate.", rewardTag(stage, r.Level))
		} else {
			b.WriteString("not enough points for a reward.")
		}
		if entry.Me {
			b.WriteString(" <== that's you!")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ScoreboardLines renders every ranking row. Once a stage has ended the
// tiers are achievements, not candidacies.
func ScoreboardLines(stage *models.Stage, rankings []models.Ranking, viewerID snowflake.ID) []string {
	lines := make([]string, len(rankings))
	for i, r := range rankings {
		line := fmt.Sprintf("%d. %s %s, ", r.Position, utils.UserTag(r.ID), utils.Points(r.Points))
		if r.Level > 0 {
			line += fmt.Sprintf("**%s**", rewardTag(stage, r.Level))
			if !stage.Ended {
				line += " candidate"
			}
		} else {
			line += "not enough points for an achievement"
		}
		if r.ID == viewerID {
			line += " <== that's you!"
		} else {
			line += "."
		}
		lines[i] = line
	}
	return lines
}

// RankMessage tells a member where they stand and what the next tier costs.
// diff is ignored once no higher tier is configured.
func RankMessage(stage *models.Stage, r *models.Ranking, total, diff int) string {
	if r == nil {
		return fmt.Sprintf("You are not ranked in the stage **%s** yet.", stage.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your rank in the stage **%s** is **%d** of %d with %s.\n", stage.ID, r.Position, total, utils.Points(r.Points))
	if stage.Ended {
		if r.Level > 0 {
			fmt.Fprintf(&b, "You achieved **%s**.\n", rewardTag(stage, r.Level))
		} else {
			b.WriteString("You did not collect enough points for an achievement.\n")
		}
		return b.String()
	}

	if r.Level > 0 {
		fmt.Fprintf(&b, "You are a **%s** candidate.\n", rewardTag(stage, r.Level))
	} else {
		b.WriteString("You do not have enough points for a reward yet.\n")
	}
	if _, ok := stage.Levels[r.Level+1]; !ok {
		if r.Level > 0 {
			b.WriteString("You are at the top, keep it up!\n")
		}
		return b.String()
	}
	fmt.Fprintf(&b, "You need %s more to become a **%s** candidate.\n", utils.Points(diff), rewardTag(stage, r.Level+1))
	return b.String()
}

// ChannelsMessage lists where a command may be used.
func ChannelsMessage(channelIDs []snowflake.ID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This command can only be used in %s ", utils.Plural(len(channelIDs), "channel", "channels"))
	for _, id := range channelIDs {
		b.WriteString(utils.ChannelTag(id) + " ")
	}
	return strings.TrimRight(b.String(), " ")
}

// InvitesMessage summarizes the counters of a member and the rewards they
// won across all stages.
func InvitesMessage(userID snowflake.ID, counters []*models.MemberCounter, won map[string][]*models.MemberReward) string {
	if len(counters) == 0 && len(won) == 0 {
		return fmt.Sprintf("%s has not invited anyone yet.", utils.UserTag(userID))
	}

	global := map[models.CounterField]int{}
	var stageIDs []string
	points := map[string]int{}
	for _, c := range counters {
		switch {
		case c.Scope == models.ScopeGlobal:
			global[c.Field] = c.Value
		case c.Field == models.FieldPoints:
			stageIDs = append(stageIDs, c.StageID)
			points[c.StageID] = c.Value
		}
	}
	slices.Sort(stageIDs)

	var b strings.Builder
	fmt.Fprintf(&b, "Invites of %s:\n", utils.UserTag(userID))
	fmt.Fprintf(&b, "Total: **%d** (regular %d, fake %d)\n",
		global[models.FieldTotalInvites], global[models.FieldRegularInvites], global[models.FieldFakeInvites])
	fmt.Fprintf(&b, "Leaves: regular %d, fake %d\n", global[models.FieldRegularLeaves], global[models.FieldFakeLeaves])
	fmt.Fprintf(&b, "Rejoins: %d\n", global[models.FieldRejoins])

	if len(stageIDs) > 0 {
		b.WriteString("\nStage points:\n")
		for _, id := range stageIDs {
			fmt.Fprintf(&b, "- **%s**: %s\n", utils.MarkdownEscape(id), utils.Points(points[id]))
		}
	}

	if len(won) > 0 {
		types := make([]string, 0, len(won))
		for t := range won {
			types = append(types, t)
		}
		slices.Sort(types)
		b.WriteString("\nRewards:\n")
		for _, t := range types {
			for _, r := range won[t] {
				fmt.Fprintf(&b, "- **%s**: %s (%s, level %d)\n",
					utils.MarkdownEscape(t), utils.MarkdownEscape(r.RewardID), utils.MarkdownEscape(r.StageID), r.Level)
			}
		}
	}
	return b.String()
}
