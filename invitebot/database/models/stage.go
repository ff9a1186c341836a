package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

var ErrUnknownDistribution = errors.New("unknown reward distribution")

// Distribution is how a reward picks its winners.
type Distribution uint8

const (
	DistributionGuaranteed Distribution = iota + 1
	DistributionWeightedLottery
	DistributionSimpleLottery
)

func ParseDistribution(s string) (Distribution, error) {
	switch s {
	case "guaranteed":
		return DistributionGuaranteed, nil
	case "weighted-lottery":
		return DistributionWeightedLottery, nil
	case "simple-lottery":
		return DistributionSimpleLottery, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDistribution, s)
}

func (d Distribution) String() string {
	switch d {
	case DistributionGuaranteed:
		return "guaranteed"
	case DistributionWeightedLottery:
		return "weighted-lottery"
	case DistributionSimpleLottery:
		return "simple-lottery"
	}
	return fmt.Sprintf("Distribution(%d)", uint8(d))
}

func (d Distribution) IsLottery() bool {
	return d == DistributionWeightedLottery || d == DistributionSimpleLottery
}

func (d Distribution) MarshalText() ([]byte, error) {
	switch d {
	case DistributionGuaranteed, DistributionWeightedLottery, DistributionSimpleLottery:
		return []byte(d.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownDistribution, uint8(d))
}

func (d *Distribution) UnmarshalText(text []byte) error {
	parsed, err := ParseDistribution(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DrawRecord describes how one winner of a reward was picked.
type DrawRecord struct {
	Type             string       `json:"type"`
	Winner           snowflake.ID `json:"winner"`
	ParticipantCount int          `json:"participantCount,omitempty"`
	TicketCount      int          `json:"ticketCount,omitempty"`
	WinningTicket    int          `json:"winningTicket,omitempty"`
}

type Reward struct {
	ID                  string         `json:"id"`
	Type                string         `json:"type"`
	Distribution        Distribution   `json:"distribution"`
	Supply              *int           `json:"supply,omitempty"`
	Winners             []snowflake.ID `json:"winners,omitempty"`
	DistributionDetails []DrawRecord   `json:"distributionDetails,omitempty"`
}

func (r Reward) Clone() Reward {
	c := r
	if r.Supply != nil {
		supply := *r.Supply
		c.Supply = &supply
	}
	c.Winners = append([]snowflake.ID(nil), r.Winners...)
	c.DistributionDetails = append([]DrawRecord(nil), r.DistributionDetails...)
	return c
}

type RewardsByLevel map[int][]Reward

func (r RewardsByLevel) Has(level int) bool {
	_, ok := r[level]
	return ok
}

func (r RewardsByLevel) Clone() RewardsByLevel {
	if r == nil {
		return nil
	}
	c := make(RewardsByLevel, len(r))
	for level, rewards := range r {
		list := make([]Reward, len(rewards))
		for i, reward := range rewards {
			list[i] = reward.Clone()
		}
		c[level] = list
	}
	return c
}

type StageRewards struct {
	Pending     RewardsByLevel `json:"pending"`
	Distributed RewardsByLevel `json:"distributed"`
	Unclaimed   RewardsByLevel `json:"unclaimed"`
}

func (r StageRewards) Clone() StageRewards {
	return StageRewards{
		Pending:     r.Pending.Clone(),
		Distributed: r.Distributed.Clone(),
		Unclaimed:   r.Unclaimed.Clone(),
	}
}

type Level struct {
	MinPoints int `json:"minPoints"`
}

// Levels maps tier 1..5 to its requirements.
type Levels map[int]Level

// MinPoints returns the threshold of a tier, or math.MaxInt when the tier is
// not configured so nobody can reach it.
func (l Levels) MinPoints(level int) int {
	if lvl, ok := l[level]; ok {
		return lvl.MinPoints
	}
	return math.MaxInt
}

type Goals struct {
	MemberCount int `json:"memberCount"`
}

type StageStatus string

const (
	StagePending StageStatus = "PENDING"
	StageActive  StageStatus = "ACTIVE"
	StageEnded   StageStatus = "ENDED"
)

type Stage struct {
	bun.BaseModel `bun:"table:stages,alias:s"`

	ID         string       `bun:"id,pk"`
	GuildID    snowflake.ID `bun:"guild_id,pk"`
	Order      int          `bun:"stage_order,notnull"`
	RewardName string       `bun:"reward_name,nullzero"`
	Levels     Levels       `bun:"levels,type:jsonb,notnull"`
	Goals      Goals        `bun:"goals,type:jsonb,notnull"`
	Active     bool         `bun:"active,notnull,default:false"`
	Started    bool         `bun:"started,notnull,default:false"`
	Ended      bool         `bun:"ended,notnull,default:false"`
	StartedAt  *time.Time   `bun:"started_at"`
	EndedAt    *time.Time   `bun:"ended_at"`
	EndTime    *time.Time   `bun:"end_time"`
	Rewards    StageRewards `bun:"rewards,type:jsonb,notnull"`
	CreatedAt  time.Time    `bun:"created_at,notnull,default:current_timestamp"`
}

func (s *Stage) Status() StageStatus {
	switch {
	case s.Ended:
		return StageEnded
	case s.Active:
		return StageActive
	}
	return StagePending
}

// StartedBefore reports whether t predates the start of the stage.
func (s *Stage) StartedBefore(t time.Time) bool {
	return s.StartedAt != nil && t.Before(*s.StartedAt)
}
