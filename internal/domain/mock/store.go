package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

type memberKey struct {
	userID, guildID snowflake.ID
}

type counterKey struct {
	userID, guildID snowflake.ID
	key             models.CounterKey
}

type stageKey struct {
	stageID string
	guildID snowflake.ID
}

type state struct {
	members    map[memberKey]models.Member
	counters   map[counterKey]int
	events     []models.MembershipEvent
	stages     map[stageKey]*models.Stage
	rankings   map[stageKey]*models.StageRanking
	rankingLog []models.StageRankingLog
	rewards    []models.MemberReward
}

func newState() *state {
	return &state{
		members:  map[memberKey]models.Member{},
		counters: map[counterKey]int{},
		stages:   map[stageKey]*models.Stage{},
		rankings: map[stageKey]*models.StageRanking{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	c.events = append(c.events, s.events...)
	for k, v := range s.stages {
		c.stages[k] = cloneStage(v)
	}
	for k, v := range s.rankings {
		c.rankings[k] = cloneRanking(v)
	}
	c.rankingLog = append(c.rankingLog, s.rankingLog...)
	c.rewards = append(c.rewards, s.rewards...)
	return c
}

type root struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	st     *state
	failOn func(op string) error
}

// Store is an in-memory contest.Store. Transactions work on a copy of the
// data that replaces the committed data only when fn succeeds.
type Store struct {
	root *root
	tx   *state
}

var _ contest.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{root: &root{st: newState()}}
}

// FailOn installs a hook that can make an operation such as
// "Counters.Increment" fail.
func (s *Store) FailOn(fn func(op string) error) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.failOn = fn
}

func (s *Store) fail(op string) error {
	if s.root.failOn == nil {
		return nil
	}
	return s.root.failOn(op)
}

// with runs fn under the store lock with the state this view sees.
func (s *Store) with(op string, fn func(st *state) error) error {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	if err := s.fail(op); err != nil {
		return err
	}
	if s.tx != nil {
		return fn(s.tx)
	}
	return fn(s.root.st)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx contest.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	s.root.txMu.Lock()
	defer s.root.txMu.Unlock()

	s.root.mu.Lock()
	working := s.root.st.clone()
	s.root.mu.Unlock()

	if err := fn(ctx, &Store{root: s.root, tx: working}); err != nil {
		return err
	}

	s.root.mu.Lock()
	s.root.st = working
	s.root.mu.Unlock()
	return nil
}

func (s *Store) Counters() contest.CounterRepository { return counters{s} }
func (s *Store) Members() contest.MemberRepository   { return members{s} }
func (s *Store) Events() contest.EventRepository     { return events{s} }
func (s *Store) Stages() contest.StageRepository     { return stages{s} }
func (s *Store) Rankings() contest.RankingRepository { return rankings{s} }
func (s *Store) Rewards() contest.RewardRepository   { return rewards{s} }

// AllEvents returns a copy of every stored event in insertion order.
func (s *Store) AllEvents() []models.MembershipEvent {
	var out []models.MembershipEvent
	_ = s.with("", func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out
}

// RankingLog returns a copy of the ranking audit log.
func (s *Store) RankingLog() []models.StageRankingLog {
	var out []models.StageRankingLog
	_ = s.with("", func(st *state) error {
		out = append(out, st.rankingLog...)
		return nil
	})
	return out
}

// AllRewards returns every awarded member reward.
func (s *Store) AllRewards() []models.MemberReward {
	var out []models.MemberReward
	_ = s.with("", func(st *state) error {
		out = append(out, st.rewards...)
		return nil
	})
	return out
}

type counters struct{ s *Store }

func (r counters) Increment(_ context.Context, userID, guildID snowflake.ID, key models.CounterKey, delta int) (int, error) {
	var value int
	err := r.s.with("Counters.Increment", func(st *state) error {
		k := counterKey{userID, guildID, key}
		st.counters[k] += delta
		value = st.counters[k]
		return nil
	})
	return value, err
}

func (r counters) Get(_ context.Context, userID, guildID snowflake.ID, key models.CounterKey) (int, error) {
	var value int
	err := r.s.with("Counters.Get", func(st *state) error {
		value = st.counters[counterKey{userID, guildID, key}]
		return nil
	})
	return value, err
}

func (r counters) GetMany(_ context.Context, guildID snowflake.ID, key models.CounterKey, userIDs []snowflake.ID) (map[snowflake.ID]int, error) {
	out := make(map[snowflake.ID]int, len(userIDs))
	err := r.s.with("Counters.GetMany", func(st *state) error {
		for _, id := range userIDs {
			if v, ok := st.counters[counterKey{id, guildID, key}]; ok {
				out[id] = v
			}
		}
		return nil
	})
	return out, err
}

func (r counters) ListByMember(_ context.Context, userID, guildID snowflake.ID) ([]*models.MemberCounter, error) {
	var out []*models.MemberCounter
	err := r.s.with("Counters.ListByMember", func(st *state) error {
		for k, v := range st.counters {
			if k.userID == userID && k.guildID == guildID {
				out = append(out, &models.MemberCounter{
					UserID:  userID,
					GuildID: guildID,
					Scope:   k.key.Scope,
					StageID: k.key.StageID,
					Field:   k.key.Field,
					Value:   v,
				})
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return counterKeyOf(out[i]).String() < counterKeyOf(out[j]).String() })
	return out, err
}

func counterKeyOf(c *models.MemberCounter) models.CounterKey {
	return models.CounterKey{Scope: c.Scope, StageID: c.StageID, Field: c.Field}
}

type members struct{ s *Store }

func (r members) Get(_ context.Context, userID, guildID snowflake.ID) (*models.Member, error) {
	var out *models.Member
	err := r.s.with("Members.Get", func(st *state) error {
		if m, ok := st.members[memberKey{userID, guildID}]; ok {
			out = &m
		}
		return nil
	})
	return out, err
}

func (r members) Upsert(_ context.Context, member *models.Member) error {
	return r.s.with("Members.Upsert", func(st *state) error {
		st.members[memberKey{member.UserID, member.GuildID}] = *member
		return nil
	})
}

type events struct{ s *Store }

func (r events) Append(_ context.Context, event *models.MembershipEvent) error {
	return r.s.with("Events.Append", func(st *state) error {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		st.events = append(st.events, *event)
		return nil
	})
}

func (r events) NextUnprocessed(_ context.Context, guildID snowflake.ID) (*models.MembershipEvent, error) {
	var out *models.MembershipEvent
	err := r.s.with("Events.NextUnprocessed", func(st *state) error {
		for i := range st.events {
			e := st.events[i]
			if e.GuildID != guildID || e.Processed {
				continue
			}
			if out == nil || e.Timestamp.Before(out.Timestamp) {
				out = &e
			}
		}
		return nil
	})
	return out, err
}

func (r events) MarkProcessed(_ context.Context, event *models.MembershipEvent) error {
	return r.s.with("Events.MarkProcessed", func(st *state) error {
		for i := range st.events {
			if st.events[i].ID == event.ID {
				now := time.Now()
				e := *event
				e.Processed = true
				e.ProcessedAt = &now
				st.events[i] = e
				return nil
			}
		}
		return nil
	})
}

func (r events) RecordFailure(_ context.Context, id uuid.UUID, cause error) error {
	return r.s.with("Events.RecordFailure", func(st *state) error {
		for i := range st.events {
			if st.events[i].ID == id {
				st.events[i].Attempts++
				st.events[i].LastError = cause.Error()
			}
		}
		return nil
	})
}

func (r events) LatestTimestamp(_ context.Context, guildID snowflake.ID) (*time.Time, error) {
	var out *time.Time
	err := r.s.with("Events.LatestTimestamp", func(st *state) error {
		for _, e := range st.events {
			if e.GuildID == guildID && (out == nil || e.Timestamp.After(*out)) {
				ts := e.Timestamp
				out = &ts
			}
		}
		return nil
	})
	return out, err
}

func (r events) LastReachedScore(_ context.Context, guildID snowflake.ID, stageID string, originalInviterID snowflake.ID, points int) (*time.Time, error) {
	var out *time.Time
	err := r.s.with("Events.LastReachedScore", func(st *state) error {
		for _, e := range st.events {
			if e.GuildID != guildID || e.Type != models.EventJoin || !e.Processed ||
				e.StageID != stageID || e.OriginalInviterID != originalInviterID ||
				e.StagePoints == nil || *e.StagePoints != points {
				continue
			}
			if out == nil || e.Timestamp.After(*out) {
				ts := e.Timestamp
				out = &ts
			}
		}
		return nil
	})
	return out, err
}

type stages struct{ s *Store }

func (r stages) find(st *state, match func(*models.Stage) bool) *models.Stage {
	var found []*models.Stage
	for _, stage := range st.stages {
		if match(stage) {
			found = append(found, stage)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Order < found[j].Order })
	return cloneStage(found[0])
}

func (r stages) Get(_ context.Context, stageID string, guildID snowflake.ID) (*models.Stage, error) {
	var out *models.Stage
	err := r.s.with("Stages.Get", func(st *state) error {
		if stage, ok := st.stages[stageKey{stageID, guildID}]; ok {
			out = cloneStage(stage)
		}
		return nil
	})
	return out, err
}

func (r stages) GetActive(_ context.Context, guildID snowflake.ID) (*models.Stage, error) {
	var out *models.Stage
	err := r.s.with("Stages.GetActive", func(st *state) error {
		out = r.find(st, func(s *models.Stage) bool { return s.GuildID == guildID && s.Active })
		return nil
	})
	return out, err
}

func (r stages) GetByOrder(_ context.Context, guildID snowflake.ID, order int) (*models.Stage, error) {
	var out *models.Stage
	err := r.s.with("Stages.GetByOrder", func(st *state) error {
		out = r.find(st, func(s *models.Stage) bool { return s.GuildID == guildID && s.Order == order })
		return nil
	})
	return out, err
}

func (r stages) GetPrevious(_ context.Context, guildID snowflake.ID) (*models.Stage, error) {
	var out *models.Stage
	err := r.s.with("Stages.GetPrevious", func(st *state) error {
		for _, stage := range st.stages {
			if stage.GuildID != guildID || !stage.Ended {
				continue
			}
			if out == nil || stage.Order > out.Order {
				out = stage
			}
		}
		if out != nil {
			out = cloneStage(out)
		}
		return nil
	})
	return out, err
}

func (r stages) List(_ context.Context, guildID snowflake.ID) ([]*models.Stage, error) {
	var out []*models.Stage
	err := r.s.with("Stages.List", func(st *state) error {
		for _, stage := range st.stages {
			if stage.GuildID == guildID {
				out = append(out, cloneStage(stage))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, err
}

func (r stages) Define(_ context.Context, stage *models.Stage) error {
	return r.s.with("Stages.Define", func(st *state) error {
		k := stageKey{stage.ID, stage.GuildID}
		existing, ok := st.stages[k]
		if !ok {
			st.stages[k] = cloneStage(stage)
			return nil
		}
		existing.Order = stage.Order
		existing.RewardName = stage.RewardName
		existing.Levels = stage.Levels
		existing.Goals = stage.Goals
		if !existing.Started {
			existing.Rewards = stage.Rewards.Clone()
		}
		return nil
	})
}

func (r stages) update(op, stageID string, guildID snowflake.ID, fn func(*models.Stage)) error {
	return r.s.with(op, func(st *state) error {
		if stage, ok := st.stages[stageKey{stageID, guildID}]; ok {
			fn(stage)
		}
		return nil
	})
}

func (r stages) Start(_ context.Context, stageID string, guildID snowflake.ID, at time.Time) error {
	return r.update("Stages.Start", stageID, guildID, func(s *models.Stage) {
		s.Active = true
		s.Started = true
		s.StartedAt = &at
	})
}

func (r stages) End(_ context.Context, stageID string, guildID snowflake.ID, at time.Time) error {
	return r.update("Stages.End", stageID, guildID, func(s *models.Stage) {
		s.Active = false
		s.Ended = true
		s.EndedAt = &at
	})
}

func (r stages) SetEndTime(_ context.Context, stageID string, guildID snowflake.ID, endTime time.Time) error {
	return r.update("Stages.SetEndTime", stageID, guildID, func(s *models.Stage) {
		s.EndTime = &endTime
	})
}

func (r stages) UpdateRewards(_ context.Context, stageID string, guildID snowflake.ID, rw models.StageRewards) error {
	return r.update("Stages.UpdateRewards", stageID, guildID, func(s *models.Stage) {
		s.Rewards = rw.Clone()
	})
}

type rankings struct{ s *Store }

func (r rankings) Get(_ context.Context, stageID string, guildID snowflake.ID) (*models.StageRanking, error) {
	var out *models.StageRanking
	err := r.s.with("Rankings.Get", func(st *state) error {
		if ranking, ok := st.rankings[stageKey{stageID, guildID}]; ok {
			out = cloneRanking(ranking)
		}
		return nil
	})
	return out, err
}

func (r rankings) Save(_ context.Context, ranking *models.StageRanking) error {
	return r.s.with("Rankings.Save", func(st *state) error {
		st.rankings[stageKey{ranking.StageID, ranking.GuildID}] = cloneRanking(ranking)
		st.rankingLog = append(st.rankingLog, models.StageRankingLog{
			ID:        int64(len(st.rankingLog) + 1),
			StageID:   ranking.StageID,
			GuildID:   ranking.GuildID,
			Rankings:  append([]models.Ranking(nil), ranking.Rankings...),
			CreatedAt: time.Now(),
		})
		return nil
	})
}

type rewards struct{ s *Store }

func (r rewards) Assign(_ context.Context, reward *models.MemberReward) error {
	return r.s.with("Rewards.Assign", func(st *state) error {
		reward.ID = int64(len(st.rewards) + 1)
		st.rewards = append(st.rewards, *reward)
		return nil
	})
}

func (r rewards) ListByMember(_ context.Context, userID, guildID snowflake.ID) (map[string][]*models.MemberReward, error) {
	out := map[string][]*models.MemberReward{}
	err := r.s.with("Rewards.ListByMember", func(st *state) error {
		for i := range st.rewards {
			rw := st.rewards[i]
			if rw.UserID == userID && rw.GuildID == guildID {
				out[rw.Type] = append(out[rw.Type], &rw)
			}
		}
		return nil
	})
	return out, err
}

func cloneStage(s *models.Stage) *models.Stage {
	c := *s
	c.Levels = make(models.Levels, len(s.Levels))
	for k, v := range s.Levels {
		c.Levels[k] = v
	}
	c.Rewards = s.Rewards.Clone()
	return &c
}

func cloneRanking(r *models.StageRanking) *models.StageRanking {
	c := *r
	c.Rankings = append([]models.Ranking(nil), r.Rankings...)
	return &c
}
