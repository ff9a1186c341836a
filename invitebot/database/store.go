package database

import (
	"context"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/repositories"
	"github.com/uptrace/bun"
)

// Store is the Postgres contest.Store. Repositories are bound to the pool,
// or to the transaction inside RunInTx.
type Store struct {
	root *bun.DB
	db   bun.IDB
	inTx bool
}

var _ contest.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{root: db, db: db}
}

func (s *Store) Counters() contest.CounterRepository {
	return repositories.NewCounterRepository(s.db)
}

func (s *Store) Members() contest.MemberRepository {
	return repositories.NewMemberRepository(s.db)
}

func (s *Store) Events() contest.EventRepository {
	return repositories.NewEventRepository(s.db)
}

func (s *Store) Stages() contest.StageRepository {
	return repositories.NewStageRepository(s.db)
}

func (s *Store) Rankings() contest.RankingRepository {
	return repositories.NewRankingRepository(s.db)
}

func (s *Store) Rewards() contest.RewardRepository {
	return repositories.NewRewardRepository(s.db)
}

// RunInTx runs fn in a transaction. Nested calls join the running one.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx contest.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{root: s.root, db: tx, inTx: true})
	})
}
