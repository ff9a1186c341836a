package migration

// Documents of the previous bot. Discord IDs were stored as strings and
// inviters as embedded user objects.

type LegacyUser struct {
	ID       string `bson:"id"`
	Username string `bson:"username"`
}

type LegacyMember struct {
	ID                      string      `bson:"id"`
	GuildID                 string      `bson:"guildId"`
	Inviter                 *LegacyUser `bson:"inviter"`
	OriginalInviter         *LegacyUser `bson:"originalInviter"`
	InviteTimestamp         any         `bson:"inviteTimestamp"`
	OriginalInviteTimestamp any         `bson:"originalInviteTimestamp"`
	Fake                    bool        `bson:"fake"`
	Removed                 bool        `bson:"removed"`
	RemoveTimestamp         any         `bson:"removeTimestamp"`
}

type LegacyLevel struct {
	MinPoints int `bson:"minPoints"`
}

type LegacyReward struct {
	ID           string   `bson:"id"`
	Type         string   `bson:"type"`
	Distribution string   `bson:"distribution"`
	Supply       *int     `bson:"supply"`
	Winners      []string `bson:"winners"`
}

type LegacyRewards struct {
	Pending     map[string][]LegacyReward `bson:"pending"`
	Distributed map[string][]LegacyReward `bson:"distributed"`
	Unclaimed   map[string][]LegacyReward `bson:"unclaimed"`
}

type LegacyStage struct {
	ID         string                 `bson:"id"`
	GuildID    string                 `bson:"guildId"`
	Order      int                    `bson:"order"`
	RewardName string                 `bson:"rewardName"`
	Levels     map[string]LegacyLevel `bson:"levels"`
	Goals      struct {
		MemberCount int `bson:"memberCount"`
	} `bson:"goals"`
	Active    bool          `bson:"active"`
	Started   bool          `bson:"started"`
	Ended     bool          `bson:"ended"`
	StartedAt any           `bson:"startedAt"`
	EndedAt   any           `bson:"endedAt"`
	EndTime   any           `bson:"endTime"`
	Rewards   LegacyRewards `bson:"rewards"`
}

// MigrationStats counts what was read and written per collection.
type MigrationStats struct {
	Read    map[string]int
	Written map[string]int
	Skipped map[string]int
}

func newStats() MigrationStats {
	return MigrationStats{
		Read:    map[string]int{},
		Written: map[string]int{},
		Skipped: map[string]int{},
	}
}
