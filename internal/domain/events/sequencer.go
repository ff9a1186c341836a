package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/creasury/invitebot/internal/domain/contest"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

const (
	DefaultPollInterval    = time.Second
	DefaultRetryBackoff    = time.Second
	DefaultMaxRetryBackoff = time.Minute
)

// Processor applies one event inside the transaction tx.
type Processor interface {
	Process(ctx context.Context, tx contest.Store, event *models.MembershipEvent) (*contest.Outcome, error)
}

// Listener is called after an event has been committed as processed.
type Listener func(ctx context.Context, event *models.MembershipEvent, outcome *contest.Outcome)

type Config struct {
	PollInterval    time.Duration
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = max(DefaultMaxRetryBackoff, c.RetryBackoff)
	}
	return c
}

// Sequencer feeds membership events to a Processor one at a time, oldest
// first. An event is marked processed in the same transaction that applies
// it, so a failure leaves it queued for the next attempt.
type Sequencer struct {
	store     contest.Store
	processor Processor
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	last      map[snowflake.ID]time.Time
	listeners []Listener
}

func NewSequencer(store contest.Store, processor Processor, cfg Config) *Sequencer {
	return &Sequencer{
		store:     store,
		processor: processor,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		last:      make(map[snowflake.ID]time.Time),
	}
}

// WithClock replaces the clock used to stamp appended events.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

func (s *Sequencer) OnProcessed(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Append queues an event. Events of one guild get strictly increasing
// timestamps, so the queue order never depends on clock resolution.
func (s *Sequencer) Append(ctx context.Context, event *models.MembershipEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.last[event.GuildID]
	if !ok {
		latest, err := s.store.Events().LatestTimestamp(ctx, event.GuildID)
		if err != nil {
			return fmt.Errorf("failed to get latest event timestamp: %w", err)
		}
		if latest != nil {
			last = *latest
		}
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)
	if !last.IsZero() && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}

	event.ID = uuid.New()
	event.Timestamp = ts
	event.Processed = false
	if err := s.store.Events().Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	s.last[event.GuildID] = ts

	slog.Debug("Event queued",
		slog.String("type", "event"),
		slog.String("event_type", string(event.Type)),
		slog.String("user_id", event.UserID.String()),
		slog.Time("timestamp", ts),
	)
	return nil
}

// DequeueNext returns the oldest unprocessed event of a guild, or nil.
func (s *Sequencer) DequeueNext(ctx context.Context, guildID snowflake.ID) (*models.MembershipEvent, error) {
	return s.store.Events().NextUnprocessed(ctx, guildID)
}

// ProcessNext applies the oldest unprocessed event. It reports whether an
// event was found and committed.
func (s *Sequencer) ProcessNext(ctx context.Context, guildID snowflake.ID) (bool, error) {
	var (
		event   *models.MembershipEvent
		outcome *contest.Outcome
	)
	start := time.Now()

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx contest.Store) error {
		next, err := tx.Events().NextUnprocessed(ctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to dequeue event: %w", err)
		}
		if next == nil {
			return nil
		}
		event = next

		out, err := s.processor.Process(ctx, tx, next)
		if err != nil {
			return err
		}
		if out.Stage != nil {
			next.StageID = out.Stage.ID
			next.StagePoints = out.StagePoints
		}
		next.OriginalInviterID = out.OriginalInviterID

		if err := tx.Events().MarkProcessed(ctx, next); err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
		outcome = out
		return nil
	})
	if err != nil {
		if event != nil {
			if rerr := s.store.Events().RecordFailure(ctx, event.ID, err); rerr != nil {
				slog.Error("Failed to record event failure",
					slog.String("type", "error"),
					slog.String("event_id", event.ID.String()),
					slog.Any("error", rerr),
				)
			}
		}
		return false, err
	}
	if event == nil {
		return false, nil
	}

	slog.Info("Event processed",
		slog.String("type", "event"),
		slog.String("event_type", string(event.Type)),
		slog.String("user_id", event.UserID.String()),
		slog.String("stage_id", event.StageID),
		slog.Duration("took", time.Since(start)),
	)

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l(ctx, event, outcome)
	}
	return true, nil
}

// Run consumes the queue of one guild until ctx is done. Failed events are
// retried with capped exponential backoff.
func (s *Sequencer) Run(ctx context.Context, guildID snowflake.ID) error {
	var backoff time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := s.ProcessNext(ctx, guildID)
		var wait time.Duration
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) {
				return err
			}
			backoff = s.nextBackoff(backoff)
			wait = backoff
			slog.Error("Failed to process event, will retry",
				slog.String("type", "error"),
				slog.String("guild_id", guildID.String()),
				slog.Duration("retry_in", wait),
				slog.Any("error", err),
			)
		case !processed:
			backoff = 0
			wait = s.cfg.PollInterval
		default:
			backoff = 0
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Sequencer) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return s.cfg.RetryBackoff
	}
	return min(current*2, s.cfg.MaxRetryBackoff)
}
