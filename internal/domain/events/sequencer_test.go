package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/internal/domain/mock"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guildID = snowflake.ID(1)

var errBoom = errors.New("boom")

// countingProcessor bumps a global counter for the joining user, optionally
// failing afterwards so the transaction has something to roll back.
type countingProcessor struct {
	mu    sync.Mutex
	fail  int
	calls []snowflake.ID
}

func (p *countingProcessor) Process(ctx context.Context, tx contest.Store, event *models.MembershipEvent) (*contest.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, event.UserID)

	if _, err := tx.Counters().Increment(ctx, event.UserID, event.GuildID, models.GlobalCounter(models.FieldTotalInvites), 1); err != nil {
		return nil, err
	}
	if p.fail > 0 {
		p.fail--
		return nil, errBoom
	}
	points := 7
	return &contest.Outcome{
		OriginalInviterID: event.InviterID,
		Stage:             &models.Stage{ID: "Stage 1"},
		StagePoints:       &points,
	}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSequencer_AppendTimestampsStrictlyIncrease(t *testing.T) {
	store := mock.NewStore()
	now := time.Date(2022, 1, 1, 10, 0, 0, 123456789, time.UTC)
	s := NewSequencer(store, &countingProcessor{}, Config{}).WithClock(fixedClock(now))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(context.Background(), &models.MembershipEvent{
			GuildID: guildID,
			Type:    models.EventJoin,
			UserID:  snowflake.ID(10 + i),
		}))
	}

	events := store.AllEvents()
	require.Len(t, events, 3)
	base := now.Truncate(time.Microsecond)
	for i, e := range events {
		assert.Equal(t, base.Add(time.Duration(i)*time.Microsecond), e.Timestamp)
		assert.False(t, e.Processed)
		assert.NotEqual(t, uuid.Nil, e.ID)
	}
}

func TestSequencer_AppendContinuesAfterStoredEvents(t *testing.T) {
	store := mock.NewStore()
	stored := time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Events().Append(context.Background(), &models.MembershipEvent{
		GuildID: guildID, Type: models.EventJoin, UserID: 5, Timestamp: stored,
	}))

	s := NewSequencer(store, &countingProcessor{}, Config{}).WithClock(fixedClock(stored.Add(-time.Hour)))
	event := &models.MembershipEvent{GuildID: guildID, Type: models.EventLeave, UserID: 5}
	require.NoError(t, s.Append(context.Background(), event))

	assert.Equal(t, stored.Add(time.Microsecond), event.Timestamp)
}

func TestSequencer_ProcessNextInOrder(t *testing.T) {
	store := mock.NewStore()
	p := &countingProcessor{}
	s := NewSequencer(store, p, Config{})
	ctx := context.Background()

	var seen []snowflake.ID
	s.OnProcessed(func(_ context.Context, event *models.MembershipEvent, out *contest.Outcome) {
		seen = append(seen, event.UserID)
		assert.Equal(t, 7, *out.StagePoints)
	})

	for _, user := range []snowflake.ID{30, 10, 20} {
		require.NoError(t, s.Append(ctx, &models.MembershipEvent{GuildID: guildID, Type: models.EventJoin, UserID: user, InviterID: 99}))
	}

	for i := 0; i < 3; i++ {
		ok, err := s.ProcessNext(ctx, guildID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := s.ProcessNext(ctx, guildID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []snowflake.ID{30, 10, 20}, seen)
	for _, e := range store.AllEvents() {
		assert.True(t, e.Processed)
		assert.Equal(t, "Stage 1", e.StageID)
		require.NotNil(t, e.StagePoints)
		assert.Equal(t, 7, *e.StagePoints)
		assert.Equal(t, snowflake.ID(99), e.OriginalInviterID)
	}

	next, err := s.DequeueNext(ctx, guildID)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestSequencer_FailureRollsBackAndRetries(t *testing.T) {
	store := mock.NewStore()
	p := &countingProcessor{fail: 1}
	s := NewSequencer(store, p, Config{})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &models.MembershipEvent{GuildID: guildID, Type: models.EventJoin, UserID: 10}))

	ok, err := s.ProcessNext(ctx, guildID)
	require.ErrorIs(t, err, errBoom)
	assert.False(t, ok)

	total, err := store.Counters().Get(ctx, 10, guildID, models.GlobalCounter(models.FieldTotalInvites))
	require.NoError(t, err)
	assert.Zero(t, total, "counter mutation must be rolled back")

	events := store.AllEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Processed)
	assert.Equal(t, 1, events[0].Attempts)
	assert.Equal(t, "boom", events[0].LastError)

	ok, err = s.ProcessNext(ctx, guildID)
	require.NoError(t, err)
	assert.True(t, ok)

	total, err = store.Counters().Get(ctx, 10, guildID, models.GlobalCounter(models.FieldTotalInvites))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.True(t, store.AllEvents()[0].Processed)
}

func TestSequencer_MarkProcessedFailureKeepsEventQueued(t *testing.T) {
	store := mock.NewStore()
	s := NewSequencer(store, &countingProcessor{}, Config{})
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, &models.MembershipEvent{GuildID: guildID, Type: models.EventJoin, UserID: 10}))

	store.FailOn(func(op string) error {
		if op == "Events.MarkProcessed" {
			return errBoom
		}
		return nil
	})
	_, err := s.ProcessNext(ctx, guildID)
	require.ErrorIs(t, err, errBoom)

	total, err := store.Counters().Get(ctx, 10, guildID, models.GlobalCounter(models.FieldTotalInvites))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.False(t, store.AllEvents()[0].Processed)
}

func TestSequencer_RunDrainsQueueWithRetry(t *testing.T) {
	store := mock.NewStore()
	p := &countingProcessor{fail: 2}
	s := NewSequencer(store, p, Config{
		PollInterval:    time.Millisecond,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 2 * time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, user := range []snowflake.ID{1, 2, 3} {
		require.NoError(t, s.Append(ctx, &models.MembershipEvent{GuildID: guildID, Type: models.EventJoin, UserID: user}))
	}

	var done sync.WaitGroup
	done.Add(3)
	s.OnProcessed(func(context.Context, *models.MembershipEvent, *contest.Outcome) { done.Done() })

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, guildID) }()

	done.Wait()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []snowflake.ID{1, 1, 1, 2, 3}, p.calls)
	for _, e := range store.AllEvents() {
		assert.True(t, e.Processed)
	}
}

func TestSequencer_Backoff(t *testing.T) {
	s := NewSequencer(mock.NewStore(), &countingProcessor{}, Config{RetryBackoff: time.Second, MaxRetryBackoff: 5 * time.Second})

	var got []time.Duration
	var b time.Duration
	for i := 0; i < 5; i++ {
		b = s.nextBackoff(b)
		got = append(got, b)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}
