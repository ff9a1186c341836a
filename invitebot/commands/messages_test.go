package commands

import (
	"strings"
	"testing"

	"github.com/creasury/invitebot/internal/domain/leaderboard"
	"github.com/creasury/invitebot/internal/domain/rewards"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

func testStage() *models.Stage {
	return &models.Stage{
		ID:         "Newborn Butterflies: Stage 1",
		Order:      0,
		RewardName: "Butterfly",
		Levels:     models.Levels{1: {MinPoints: 1}, 2: {MinPoints: 3}},
		Goals:      models.Goals{MemberCount: 250},
	}
}

func intPtr(v int) *int { return &v }

func TestStageStartedMessage(t *testing.T) {
	assert.Equal(t,
		"Big news, @everyone! I am pleased to announce that the stage **Newborn Butterflies: Stage 1** has just started! :fire::fire::fire:\n\n"+
			"The stage goal is set to reach **250** members. Good luck, @everyone!\n",
		StageStartedMessage(testStage()))
}

func TestDistributionMessage(t *testing.T) {
	stage := testStage()
	tests := []struct {
		name   string
		result *rewards.Result
		want   string
	}{
		{
			name: "winners and leftovers",
			result: &rewards.Result{
				Distributed: []models.Reward{
					{ID: "Whitelist_Spot", Winners: []snowflake.ID{9}},
					{ID: "NFT", Winners: []snowflake.ID{9, 10}},
				},
				Unclaimed: []models.Reward{{ID: "NFT", Supply: intPtr(1)}},
			},
			want: "Reward **Whitelist\\_Spot** winner is: <@9>. Congratulations!!! :tada::tada::tada:\n\n" +
				"Reward **NFT** winners are: <@9>,<@10>. Congratulations!!! :tada::tada::tada:\n\n" +
				"**1 NFT** reward left unclaimed, as there were not enough candidates.\n\n",
		},
		{
			name: "unlimited leftovers",
			result: &rewards.Result{
				Unclaimed: []models.Reward{{ID: "Badge", Supply: intPtr(3)}, {ID: "Role"}},
			},
			want: "**3 Badge** rewards left unclaimed, as there were not enough candidates.\n\n" +
				"**Role** rewards left unclaimed, as there were not enough candidates.\n\n",
		},
		{
			name:   "nothing left",
			result: &rewards.Result{},
			want:   "Oops, it seems all rewards for this level have already been distributed.\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistributionMessage(stage, 2, tt.result)
			header := "Attention @everyone, starting reward distribution for the stage **Newborn Butterflies: Stage 1** and level **2**.\n\n"
			assert.Equal(t, header+tt.want, got)
		})
	}
}

func TestLeaderboardMessage(t *testing.T) {
	stage := testStage()
	entries := []leaderboard.Entry{
		{Type: leaderboard.EntryMember, Ranking: models.Ranking{ID: 1, Points: 5, Level: 2, Position: 1}},
		{Type: leaderboard.EntrySpacer},
		{Type: leaderboard.EntryMember, Ranking: models.Ranking{ID: 7, Points: 1, Level: 1, Position: 7}, Me: true},
		{Type: leaderboard.EntryMember, Ranking: models.Ranking{ID: 8, Points: 0, Position: 8}},
	}

	want := "-------------------- Current leaderboard for the stage **Newborn Butterflies: Stage 1** --------------------\n" +
		"1. <@1> 5 points, **Butterfly Master I** candidate.\n" +
		"...\n" +
		"7. <@7> 1 point, **Butterfly Rookie I** candidate. <== that's you!\n" +
		"8. <@8> 0 points, not enough points for a reward.\n"
	assert.Equal(t, want, LeaderboardMessage(stage, entries))
}

func TestScoreboardLines(t *testing.T) {
	stage := testStage()
	rankings := []models.Ranking{
		{ID: 1, Points: 5, Level: 2, Position: 1},
		{ID: 2, Points: 0, Position: 2},
	}

	assert.Equal(t, []string{
		"1. <@1> 5 points, **Butterfly Master I** candidate <== that's you!",
		"2. <@2> 0 points, not enough points for an achievement.",
	}, ScoreboardLines(stage, rankings, 1))

	stage.Ended = true
	assert.Equal(t, "1. <@1> 5 points, **Butterfly Master I**.", ScoreboardLines(stage, rankings, 2)[0])
}

func TestRankMessage(t *testing.T) {
	stage := testStage()

	assert.Equal(t, "You are not ranked in the stage **Newborn Butterflies: Stage 1** yet.", RankMessage(stage, nil, 10, 0))

	got := RankMessage(stage, &models.Ranking{ID: 3, Points: 1, Level: 1, Position: 4}, 10, 3)
	assert.Equal(t, "Your rank in the stage **Newborn Butterflies: Stage 1** is **4** of 10 with 1 point.\n"+
		"You are a **Butterfly Rookie I** candidate.\n"+
		"You need 3 points more to become a **Butterfly Master I** candidate.\n", got)

	got = RankMessage(stage, &models.Ranking{ID: 3, Points: 6, Level: 2, Position: 1}, 10, 0)
	assert.True(t, strings.HasSuffix(got, "You are at the top, keep it up!\n"))

	got = RankMessage(stage, &models.Ranking{ID: 3, Points: 0, Position: 9}, 10, 1)
	assert.Contains(t, got, "You do not have enough points for a reward yet.\n")
	assert.Contains(t, got, "You need 1 point more to become a **Butterfly Rookie I** candidate.\n")

	stage.Ended = true
	got = RankMessage(stage, &models.Ranking{ID: 3, Points: 6, Level: 2, Position: 1}, 10, 0)
	assert.True(t, strings.HasSuffix(got, "You achieved **Butterfly Master I**.\n"))
}

func TestChannelsMessage(t *testing.T) {
	assert.Equal(t, "This command can only be used in channel <#5>", ChannelsMessage([]snowflake.ID{5}))
	assert.Equal(t, "This command can only be used in channels <#5> <#6>", ChannelsMessage([]snowflake.ID{5, 6}))
}

func TestInvitesMessage(t *testing.T) {
	assert.Equal(t, "<@7> has not invited anyone yet.", InvitesMessage(7, nil, nil))

	counters := []*models.MemberCounter{
		{Scope: models.ScopeGlobal, Field: models.FieldTotalInvites, Value: 4},
		{Scope: models.ScopeGlobal, Field: models.FieldRegularInvites, Value: 4},
		{Scope: models.ScopeGlobal, Field: models.FieldFakeInvites, Value: 1},
		{Scope: models.ScopeGlobal, Field: models.FieldRegularLeaves, Value: 2},
		{Scope: models.ScopeStage, StageID: "Stage 2", Field: models.FieldPoints, Value: 1},
		{Scope: models.ScopeStage, StageID: "Stage 1", Field: models.FieldPoints, Value: 3},
		{Scope: models.ScopeStage, StageID: "Stage 1", Field: models.FieldFakeInvites, Value: 1},
	}
	won := map[string][]*models.MemberReward{
		"Whitelist": {{StageID: "Stage 1", Level: 1, RewardID: "wl"}},
		"NFT":       {{StageID: "Stage 1", Level: 2, RewardID: "nft"}},
	}

	assert.Equal(t, "Invites of <@7>:\n"+
		"Total: **4** (regular 4, fake 1)\n"+
		"Leaves: regular 2, fake 0\n"+
		"Rejoins: 0\n"+
		"\nStage points:\n"+
		"- **Stage 1**: 3 points\n"+
		"- **Stage 2**: 1 point\n"+
		"\nRewards:\n"+
		"- **NFT**: nft (Stage 1, level 2)\n"+
		"- **Whitelist**: wl (Stage 1, level 1)\n",
		InvitesMessage(7, counters, won))
}
