package invitebot

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasury/invitebot/invitebot/archive"
	"github.com/creasury/invitebot/invitebot/database"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err = cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	Bot     BotConfig         `toml:"bot"`
	DB      database.DBConfig `toml:"db"`
	Spaces  archive.Config    `toml:"spaces"`
	Contest ContestConfig     `toml:"contest"`
	Guilds  Guilds            `toml:"guilds"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     string `toml:"level"`
	AddSource bool   `toml:"add_source"`
}

type ContestConfig struct {
	PollInterval      Duration `toml:"poll_interval"`
	RetryBackoff      Duration `toml:"retry_backoff"`
	MaxRetryBackoff   Duration `toml:"max_retry_backoff"`
	CountdownInterval Duration `toml:"countdown_interval"`
	RankingCacheSize  int      `toml:"ranking_cache_size"`
	// LotterySeed makes draws reproducible. Zero seeds from crypto/rand.
	LotterySeed uint64 `toml:"lottery_seed"`
}

// envOverrides are the secrets that may come from the environment instead
// of the config file.
type envOverrides struct {
	Token        string `env:"DISCORD_TOKEN"`
	DBPassword   string `env:"DB_PASSWORD"`
	SpacesKey    string `env:"SPACES_KEY"`
	SpacesSecret string `env:"SPACES_SECRET"`
	LogLevel     string `env:"LOG_LEVEL"`
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.Bot.Token, o.Token)
	override(&c.DB.Password, o.DBPassword)
	override(&c.Spaces.Key, o.SpacesKey)
	override(&c.Spaces.Secret, o.SpacesSecret)
	override(&c.Log.Level, o.LogLevel)
	return nil
}

func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is not configured")
	}
	if len(c.Guilds) == 0 {
		return fmt.Errorf("no guilds configured")
	}
	seen := make(map[snowflake.ID]struct{}, len(c.Guilds))
	for _, g := range c.Guilds {
		if g.ID == 0 {
			return fmt.Errorf("guild without id")
		}
		if _, ok := seen[g.ID]; ok {
			return fmt.Errorf("guild %s configured twice", g.ID)
		}
		seen[g.ID] = struct{}{}
	}
	return nil
}

// Duration decodes strings like "10s" from TOML and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type GuildConfig struct {
	ID                   snowflake.ID   `toml:"id"`
	CommunityName        string         `toml:"community_name"`
	AdminRoleID          snowflake.ID   `toml:"admin_role_id"`
	InviteChannelID      snowflake.ID   `toml:"invite_channel_id"`
	LogChannelID         snowflake.ID   `toml:"log_channel_id"`
	ExcludedFromRanking  []snowflake.ID `toml:"excluded_from_ranking"`
	MinAccountAgeDays    int            `toml:"min_account_age_days"`
	ScoreboardChannelIDs []snowflake.ID `toml:"scoreboard_channel_ids"`
}

// Guilds is the per guild configuration. It implements the settings
// scoring depends on.
type Guilds []GuildConfig

func (g Guilds) Get(guildID snowflake.ID) *GuildConfig {
	for i := range g {
		if g[i].ID == guildID {
			return &g[i]
		}
	}
	return nil
}

func (g Guilds) IDs() []snowflake.ID {
	ids := make([]snowflake.ID, len(g))
	for i := range g {
		ids[i] = g[i].ID
	}
	return ids
}

func (g Guilds) ExcludedFromRanking(guildID, userID snowflake.ID) bool {
	cfg := g.Get(guildID)
	return cfg != nil && slices.Contains(cfg.ExcludedFromRanking, userID)
}

func (g Guilds) MinAccountAge(guildID snowflake.ID) time.Duration {
	cfg := g.Get(guildID)
	if cfg == nil {
		return 0
	}
	return time.Duration(cfg.MinAccountAgeDays) * 24 * time.Hour
}

func (g Guilds) CommunityName(guildID snowflake.ID) string {
	if cfg := g.Get(guildID); cfg != nil && cfg.CommunityName != "" {
		return cfg.CommunityName
	}
	return "Creasury"
}

// ScoreboardAllowed reports whether the scoreboard may be posted in
// channelID. No configured channels means everywhere.
func (g Guilds) ScoreboardAllowed(guildID, channelID snowflake.ID) bool {
	cfg := g.Get(guildID)
	if cfg == nil || len(cfg.ScoreboardChannelIDs) == 0 {
		return true
	}
	return slices.Contains(cfg.ScoreboardChannelIDs, channelID)
}

type stagesFile struct {
	Stages []StageDefinition `toml:"stages"`
}

type StageDefinition struct {
	ID              string             `toml:"id"`
	GuildID         snowflake.ID       `toml:"guild_id"`
	Order           int                `toml:"order"`
	RewardName      string             `toml:"reward_name"`
	GoalMemberCount int                `toml:"goal_member_count"`
	Levels          []LevelDefinition  `toml:"levels"`
	Rewards         []RewardDefinition `toml:"rewards"`
}

type LevelDefinition struct {
	Level     int `toml:"level"`
	MinPoints int `toml:"min_points"`
}

type RewardDefinition struct {
	ID           string              `toml:"id"`
	Level        int                 `toml:"level"`
	Type         string              `toml:"type"`
	Distribution models.Distribution `toml:"distribution"`
	Supply       *int                `toml:"supply"`
}

// LoadStages reads stage definitions. Unknown reward distributions are
// rejected here, before anything is stored.
func LoadStages(path string) ([]*models.Stage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stages: %w", err)
	}
	defer file.Close()

	var defs stagesFile
	if err = toml.NewDecoder(file).DisallowUnknownFields().Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode stages: %w", err)
	}

	stages := make([]*models.Stage, 0, len(defs.Stages))
	for _, def := range defs.Stages {
		stage, err := def.Stage()
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func (d StageDefinition) Stage() (*models.Stage, error) {
	if d.ID == "" || d.GuildID == 0 {
		return nil, fmt.Errorf("stage definition needs an id and a guild_id")
	}

	stage := &models.Stage{
		ID:         d.ID,
		GuildID:    d.GuildID,
		Order:      d.Order,
		RewardName: d.RewardName,
		Levels:     models.Levels{},
		Goals:      models.Goals{MemberCount: d.GoalMemberCount},
		Rewards:    models.StageRewards{Pending: models.RewardsByLevel{}},
	}
	for _, l := range d.Levels {
		if l.Level < 1 || l.Level > 5 {
			return nil, fmt.Errorf("stage %s: level must be between 1 and 5, got %d", d.ID, l.Level)
		}
		stage.Levels[l.Level] = models.Level{MinPoints: l.MinPoints}
	}
	for _, r := range d.Rewards {
		if r.Level < 1 || r.Level > 5 {
			return nil, fmt.Errorf("stage %s: reward %s has level %d", d.ID, r.ID, r.Level)
		}
		if r.Distribution == 0 {
			return nil, fmt.Errorf("stage %s: reward %s: %w", d.ID, r.ID, models.ErrUnknownDistribution)
		}
		stage.Rewards.Pending[r.Level] = append(stage.Rewards.Pending[r.Level], models.Reward{
			ID:           r.ID,
			Type:         r.Type,
			Distribution: r.Distribution,
			Supply:       r.Supply,
		})
	}
	return stage, nil
}
