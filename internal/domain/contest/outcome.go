package contest

import (
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
)

// Outcome is what scoring one membership event decided.
type Outcome struct {
	OriginalInviterID snowflake.ID
	Rejoin            bool
	// Stage is the stage that was active while scoring, nil if none.
	Stage       *models.Stage
	StagePoints *int
	// Message is the public narrative for the invite channel.
	Message string
	// LogLines go to the guild log channel.
	LogLines []string
}

func (o *Outcome) Log(line string) {
	o.LogLines = append(o.LogLines, line)
}

// Notifier sends pre-formatted text to a guild's channels.
type Notifier interface {
	Invite(guildID snowflake.ID, message string)
	Log(guildID snowflake.ID, message string)
}
