package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
)

// Draw record types, as stored in a reward's distribution details.
const (
	DrawGuaranteed = "guaranteed"
	DrawAssigned   = "assigned"
)

type Result struct {
	Distributed []models.Reward
	Unclaimed   []models.Reward
}

// Distributor hands out the pending rewards of a stage level.
type Distributor struct {
	store  contest.Store
	random RandomSource
	now    func() time.Time
}

func NewDistributor(store contest.Store, random RandomSource) *Distributor {
	return &Distributor{store: store, random: random, now: time.Now}
}

// DistributeLevelRewards draws the winners of every pending reward of level
// from the ranking snapshot. Rewards are handed out in their configured
// order and each one is persisted on its own, so a failure leaves the
// rewards that were already handed out in place. On success stage.Rewards
// holds the new state.
func (d *Distributor) DistributeLevelRewards(ctx context.Context, stage *models.Stage, snapshot *models.StageRanking, level int, guildID snowflake.ID) (*Result, error) {
	if level < 1 || level > 5 {
		return nil, contest.ConfigErrorf(contest.ErrInvalidLevel, "got %d", level)
	}

	pending := stage.Rewards.Pending[level]
	for _, reward := range pending {
		if reward.Distribution.IsLottery() && (reward.Supply == nil || *reward.Supply <= 0) {
			return nil, contest.ConfigErrorf(contest.ErrInvalidLotterySupply, "reward %s", reward.ID)
		}
	}

	candidates, err := Candidates(snapshot, level, stage.Rewards)
	if err != nil {
		return nil, err
	}

	slog.Info("Distributing rewards",
		slog.String("type", "stage"),
		slog.String("stage_id", stage.ID),
		slog.Int("level", level),
		slog.Int("rewards", len(pending)),
		slog.Int("candidates", len(candidates)),
	)

	state := stage.Rewards.Clone()
	if state.Pending == nil {
		state.Pending = models.RewardsByLevel{}
	}
	if state.Distributed == nil {
		state.Distributed = models.RewardsByLevel{}
	}
	if state.Unclaimed == nil {
		state.Unclaimed = models.RewardsByLevel{}
	}

	result := &Result{}
	if len(pending) == 0 {
		// Nothing to hand out. Record the level as done so level 1 is not
		// blocked waiting for level 2.
		if !state.Distributed.Has(level) && !state.Unclaimed.Has(level) {
			state.Distributed[level] = []models.Reward{}
			if err := d.store.Stages().UpdateRewards(ctx, stage.ID, guildID, state); err != nil {
				return nil, fmt.Errorf("failed to update stage rewards: %w", err)
			}
			stage.Rewards = state
		}
		return result, nil
	}

	for len(state.Pending[level]) > 0 {
		reward := state.Pending[level][0]

		var distributed, unclaimed *models.Reward
		if len(candidates) == 0 {
			u := reward.Clone()
			unclaimed = &u
		} else {
			var (
				records  []models.DrawRecord
				leftover int
			)
			records, candidates, leftover = d.draw(reward, candidates)

			dist := reward.Clone()
			dist.Supply = nil
			dist.Winners = make([]snowflake.ID, len(records))
			for i, r := range records {
				dist.Winners[i] = r.Winner
			}
			dist.DistributionDetails = records
			distributed = &dist

			if leftover > 0 {
				u := reward.Clone()
				u.Supply = &leftover
				unclaimed = &u
			}
		}

		state.Pending[level] = state.Pending[level][1:]
		if distributed != nil {
			state.Distributed[level] = append(state.Distributed[level], *distributed)
		}
		if unclaimed != nil {
			state.Unclaimed[level] = append(state.Unclaimed[level], *unclaimed)
		}

		if err := d.persist(ctx, stage, guildID, level, distributed, state); err != nil {
			return result, err
		}
		stage.Rewards = state.Clone()

		if distributed != nil {
			result.Distributed = append(result.Distributed, *distributed)
		}
		if unclaimed != nil {
			result.Unclaimed = append(result.Unclaimed, *unclaimed)
			slog.Info("Reward left unclaimed",
				slog.String("type", "stage"),
				slog.String("reward_id", unclaimed.ID),
				slog.Any("supply", unclaimed.Supply),
			)
		}
	}
	return result, nil
}

// persist stores the winners of one reward together with the new reward
// state of the stage.
func (d *Distributor) persist(ctx context.Context, stage *models.Stage, guildID snowflake.ID, level int, distributed *models.Reward, state models.StageRewards) error {
	return d.store.RunInTx(ctx, func(ctx context.Context, tx contest.Store) error {
		if distributed != nil {
			awardedAt := d.now().UTC()
			for _, winner := range distributed.Winners {
				err := tx.Rewards().Assign(ctx, &models.MemberReward{
					UserID:       winner,
					GuildID:      guildID,
					StageID:      stage.ID,
					Level:        level,
					RewardID:     distributed.ID,
					Type:         distributed.Type,
					Distribution: distributed.Distribution.String(),
					AwardedAt:    awardedAt,
				})
				if err != nil {
					return fmt.Errorf("failed to assign reward %s: %w", distributed.ID, err)
				}
				slog.Info("Reward assigned",
					slog.String("type", "stage"),
					slog.String("reward_id", distributed.ID),
					slog.String("user_id", winner.String()),
				)
			}
		}
		if err := tx.Stages().UpdateRewards(ctx, stage.ID, guildID, state); err != nil {
			return fmt.Errorf("failed to update stage rewards: %w", err)
		}
		return nil
	})
}

// draw picks the winners of one reward. It returns the draws, the candidates
// still eligible for the following rewards and the supply that was left over.
func (d *Distributor) draw(reward models.Reward, candidates []models.Ranking) ([]models.DrawRecord, []models.Ranking, int) {
	if reward.Distribution == models.DistributionGuaranteed {
		records := make([]models.DrawRecord, len(candidates))
		for i, c := range candidates {
			records[i] = models.DrawRecord{Type: DrawGuaranteed, Winner: c.ID}
		}
		return records, candidates, 0
	}

	supply := *reward.Supply
	if supply >= len(candidates) {
		records := make([]models.DrawRecord, len(candidates))
		for i, c := range candidates {
			records[i] = models.DrawRecord{Type: DrawAssigned, Winner: c.ID}
		}
		return records, nil, supply - len(candidates)
	}

	pool := append([]models.Ranking(nil), candidates...)
	records := make([]models.DrawRecord, 0, supply)
	for ; supply > 0; supply-- {
		var (
			record models.DrawRecord
			index  int
		)
		if reward.Distribution == models.DistributionWeightedLottery {
			record, index = WeightedLottery(pool, d.random)
		} else {
			record, index = SimpleLottery(pool, d.random)
		}
		slog.Info("Lottery drawn",
			slog.String("type", "stage"),
			slog.String("reward_id", reward.ID),
			slog.String("winner", record.Winner.String()),
			slog.Int("ticket", record.WinningTicket),
			slog.Int("tickets", record.TicketCount),
		)
		records = append(records, record)
		pool = append(pool[:index], pool[index+1:]...)
	}
	return records, pool, 0
}

// WeightedLottery gives every candidate one ticket per point, numbered
// contiguously in candidate order, and draws one ticket. It returns the
// draw and the index of the winner in candidates.
func WeightedLottery(candidates []models.Ranking, random RandomSource) (models.DrawRecord, int) {
	total := 0
	for _, c := range candidates {
		total += max(c.Points, 0)
	}
	if total == 0 {
		return SimpleLottery(candidates, random)
	}

	ticket := pick(random, total)
	index := 0
	for upper := 0; index < len(candidates); index++ {
		upper += max(candidates[index].Points, 0)
		if ticket < upper {
			break
		}
	}
	return models.DrawRecord{
		Type:             models.DistributionWeightedLottery.String(),
		Winner:           candidates[index].ID,
		ParticipantCount: len(candidates),
		TicketCount:      total,
		WinningTicket:    ticket,
	}, index
}

// SimpleLottery draws one candidate with equal chances.
func SimpleLottery(candidates []models.Ranking, random RandomSource) (models.DrawRecord, int) {
	index := pick(random, len(candidates))
	return models.DrawRecord{
		Type:             models.DistributionSimpleLottery.String(),
		Winner:           candidates[index].ID,
		ParticipantCount: len(candidates),
		TicketCount:      len(candidates),
		WinningTicket:    index,
	}, index
}

func pick(random RandomSource, n int) int {
	i := int(math.Floor(random.Next() * float64(n)))
	return min(max(i, 0), n-1)
}

// Candidates returns the snapshot entries eligible for the rewards of level.
// Level 1 also takes the level 2 members that did not win a limited level 2
// reward, which requires level 2 to be settled first.
func Candidates(snapshot *models.StageRanking, level int, rewards models.StageRewards) ([]models.Ranking, error) {
	if level == 1 && !rewards.Distributed.Has(2) && !rewards.Unclaimed.Has(2) {
		return nil, contest.ErrLevelTwoNotDistributed
	}
	if snapshot == nil {
		return nil, contest.ErrNoRankingSnapshot
	}

	var candidates []models.Ranking
	for _, r := range snapshot.Rankings {
		if r.Level == level {
			candidates = append(candidates, r)
		}
	}
	if level != 1 {
		return candidates, nil
	}

	won := make(map[snowflake.ID]struct{})
	for _, reward := range rewards.Distributed[2] {
		if reward.Distribution == models.DistributionGuaranteed {
			continue
		}
		for _, winner := range reward.Winners {
			won[winner] = struct{}{}
		}
	}
	for _, r := range snapshot.Rankings {
		if r.Level != 2 {
			continue
		}
		if _, ok := won[r.ID]; !ok {
			candidates = append(candidates, r)
		}
	}
	return candidates, nil
}
