package invitebot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[log]
level = "debug"

[bot]
token = "from-file"

[db]
host = "localhost"
port = 5432
user = "invitebot"
password = "secret"
database = "invitebot"

[contest]
poll_interval = "2s"
countdown_interval = "1m"
ranking_cache_size = 64

[[guilds]]
id = 800000000000000001
community_name = "Creasury"
admin_role_id = 1
log_channel_id = 2
invite_channel_id = 3
excluded_from_ranking = [42]
min_account_age_days = 7
scoreboard_channel_ids = [5]
`

const testStages = `
[[stages]]
id = "Newborn Butterflies: Stage 1"
guild_id = 800000000000000001
order = 1
reward_name = "Butterfly"
goal_member_count = 100

[[stages.levels]]
level = 1
min_points = 1

[[stages.levels]]
level = 2
min_points = 5

[[stages.rewards]]
id = "wl"
level = 1
type = "Whitelist"
distribution = "guaranteed"

[[stages.rewards]]
id = "nft"
level = 2
type = "NFT"
distribution = "weighted-lottery"
supply = 3
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "config.toml", testConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Bot.Token)
	assert.Equal(t, 2*time.Second, cfg.Contest.PollInterval.Std())
	assert.Equal(t, time.Minute, cfg.Contest.CountdownInterval.Std())
	assert.False(t, cfg.Spaces.Enabled())

	guildID := snowflake.ID(800000000000000001)
	require.NotNil(t, cfg.Guilds.Get(guildID))
	assert.Nil(t, cfg.Guilds.Get(1))
	assert.Equal(t, []snowflake.ID{guildID}, cfg.Guilds.IDs())
	assert.True(t, cfg.Guilds.ExcludedFromRanking(guildID, 42))
	assert.False(t, cfg.Guilds.ExcludedFromRanking(guildID, 43))
	assert.Equal(t, 7*24*time.Hour, cfg.Guilds.MinAccountAge(guildID))
	assert.Zero(t, cfg.Guilds.MinAccountAge(1))
	assert.Equal(t, "Creasury", cfg.Guilds.CommunityName(guildID))
	assert.True(t, cfg.Guilds.ScoreboardAllowed(guildID, 5))
	assert.False(t, cfg.Guilds.ScoreboardAllowed(guildID, 6))
	assert.True(t, cfg.Guilds.ScoreboardAllowed(1, 6))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("DB_PASSWORD", "env-secret")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(writeFile(t, "config.toml", testConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, "env-secret", cfg.DB.Password)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", testConfig + "\n[extra]\nfoo = 1\n"},
		{"no guilds", "[bot]\ntoken = \"t\"\n"},
		{"no token", "[[guilds]]\nid = 1\n"},
		{"duplicate guild", "[bot]\ntoken = \"t\"\n[[guilds]]\nid = 1\n[[guilds]]\nid = 1\n"},
		{"bad duration", "[bot]\ntoken = \"t\"\n[contest]\npoll_interval = \"soon\"\n[[guilds]]\nid = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.toml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadStages(t *testing.T) {
	stages, err := LoadStages(writeFile(t, "stages.toml", testStages))
	require.NoError(t, err)
	require.Len(t, stages, 1)

	stage := stages[0]
	assert.Equal(t, "Newborn Butterflies: Stage 1", stage.ID)
	assert.Equal(t, snowflake.ID(800000000000000001), stage.GuildID)
	assert.Equal(t, 100, stage.Goals.MemberCount)
	assert.Equal(t, 5, stage.Levels.MinPoints(2))
	assert.Equal(t, models.StagePending, stage.Status())

	require.Len(t, stage.Rewards.Pending[1], 1)
	assert.Equal(t, models.DistributionGuaranteed, stage.Rewards.Pending[1][0].Distribution)
	assert.Nil(t, stage.Rewards.Pending[1][0].Supply)
	require.Len(t, stage.Rewards.Pending[2], 1)
	assert.Equal(t, models.DistributionWeightedLottery, stage.Rewards.Pending[2][0].Distribution)
	require.NotNil(t, stage.Rewards.Pending[2][0].Supply)
	assert.Equal(t, 3, *stage.Rewards.Pending[2][0].Supply)
}

func TestLoadStages_RejectsUnknownDistribution(t *testing.T) {
	content := `
[[stages]]
id = "Stage 1"
guild_id = 1

[[stages.rewards]]
id = "nft"
level = 1
distribution = "raffle"
`
	_, err := LoadStages(writeFile(t, "stages.toml", content))
	assert.ErrorContains(t, err, models.ErrUnknownDistribution.Error())
}

func TestStageDefinition_Rejects(t *testing.T) {
	tests := []struct {
		name string
		def  StageDefinition
	}{
		{"no id", StageDefinition{GuildID: 1}},
		{"no guild", StageDefinition{ID: "s"}},
		{"level zero", StageDefinition{ID: "s", GuildID: 1, Levels: []LevelDefinition{{Level: 0}}}},
		{"reward level six", StageDefinition{ID: "s", GuildID: 1, Rewards: []RewardDefinition{{ID: "r", Level: 6, Distribution: models.DistributionGuaranteed}}}},
		{"missing distribution", StageDefinition{ID: "s", GuildID: 1, Rewards: []RewardDefinition{{ID: "r", Level: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Stage()
			assert.Error(t, err)
		})
	}
}
