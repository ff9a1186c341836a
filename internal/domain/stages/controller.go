package stages

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
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCountdownInterval = 10 * time.Second
	tickTimeout              = 30 * time.Second
)

// SwitchListener is called after a stage ended. next is nil when no stage
// followed it.
type SwitchListener func(ctx context.Context, ended, next *models.Stage)

// GoalListener is called when a stage reached its member goal.
type GoalListener func(ctx context.Context, stage *models.Stage, endTime time.Time)

// Controller owns stage transitions and the per guild countdowns that end
// a stage once its goal was reached.
type Controller struct {
	store    contest.Store
	cron     *cron.Cron
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	entries  map[snowflake.ID]cron.EntryID
	onSwitch []SwitchListener
	onGoal   []GoalListener
}

func NewController(store contest.Store, countdownInterval time.Duration) *Controller {
	if countdownInterval <= 0 {
		countdownInterval = DefaultCountdownInterval
	}
	// one countdown tick per guild at a time
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Controller{
		store:    store,
		cron:     scheduler,
		interval: countdownInterval,
		now:      time.Now,
		entries:  make(map[snowflake.ID]cron.EntryID),
	}
}

func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func (c *Controller) OnSwitch(l SwitchListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSwitch = append(c.onSwitch, l)
}

func (c *Controller) OnGoalReached(l GoalListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onGoal = append(c.onGoal, l)
}

// Start runs the countdown scheduler in the background.
func (c *Controller) Start() {
	c.cron.Start()
}

// Stop halts the scheduler and waits for running ticks.
func (c *Controller) Stop() {
	<-c.cron.Stop().Done()
}

// NextNoonUTC is the first 12:00 UTC after t: the same day before noon,
// the next day from noon on.
func NextNoonUTC(t time.Time) time.Time {
	u := t.UTC()
	noon := time.Date(u.Year(), u.Month(), u.Day(), 12, 0, 0, 0, time.UTC)
	if u.Hour() >= 12 {
		noon = noon.AddDate(0, 0, 1)
	}
	return noon
}

func (c *Controller) ActiveStage(ctx context.Context, guildID snowflake.ID) (*models.Stage, error) {
	return c.store.Stages().GetActive(ctx, guildID)
}

// PreviousStage returns the most recently ended stage, or nil.
func (c *Controller) PreviousStage(ctx context.Context, guildID snowflake.ID) (*models.Stage, error) {
	return c.store.Stages().GetPrevious(ctx, guildID)
}

// StartStage activates a pending stage. Only one stage per guild can be
// active.
func (c *Controller) StartStage(ctx context.Context, stageID string, guildID snowflake.ID) (*models.Stage, error) {
	var started *models.Stage
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx contest.Store) error {
		stage, err := tx.Stages().Get(ctx, stageID, guildID)
		if err != nil {
			return fmt.Errorf("failed to get stage: %w", err)
		}
		if stage == nil {
			return contest.ConfigErrorf(contest.ErrStageNotFound, "%s", stageID)
		}
		if stage.Ended {
			return contest.ConfigErrorf(contest.ErrStageEnded, "%s", stageID)
		}

		active, err := tx.Stages().GetActive(ctx, guildID)
		if err != nil {
			return fmt.Errorf("failed to get active stage: %w", err)
		}
		if active != nil {
			return contest.ConfigErrorf(contest.ErrStageAlreadyActive, "%s", active.ID)
		}

		if err := tx.Stages().Start(ctx, stageID, guildID, c.now().UTC()); err != nil {
			return fmt.Errorf("failed to start stage: %w", err)
		}
		started, err = tx.Stages().Get(ctx, stageID, guildID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Stage started",
		slog.String("type", "stage"),
		slog.String("stage_id", stageID),
		slog.String("guild_id", guildID.String()),
	)
	return started, nil
}

// CheckGoal sets the end time of an active stage once memberCount reaches
// its goal and arms the countdown. It reports whether the goal was reached
// by this call.
func (c *Controller) CheckGoal(ctx context.Context, stage *models.Stage, memberCount int) (bool, error) {
	current, err := c.store.Stages().Get(ctx, stage.ID, stage.GuildID)
	if err != nil {
		return false, fmt.Errorf("failed to get stage: %w", err)
	}
	if current == nil || !current.Active || current.EndTime != nil {
		return false, nil
	}
	if current.Goals.MemberCount <= 0 || memberCount < current.Goals.MemberCount {
		return false, nil
	}

	endTime := NextNoonUTC(c.now())
	if err := c.store.Stages().SetEndTime(ctx, current.ID, current.GuildID, endTime); err != nil {
		return false, fmt.Errorf("failed to set stage end time: %w", err)
	}
	current.EndTime = &endTime
	c.Arm(current.GuildID)

	slog.Info("Stage goal reached",
		slog.String("type", "stage"),
		slog.String("stage_id", current.ID),
		slog.Int("members", memberCount),
		slog.Time("end_time", endTime),
	)

	c.mu.Lock()
	listeners := append([]GoalListener(nil), c.onGoal...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(ctx, current, endTime)
	}
	return true, nil
}

// Arm registers the countdown of a guild. Arming an armed guild does
// nothing and returns false.
func (c *Controller) Arm(guildID snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[guildID]; ok {
		return false
	}
	c.entries[guildID] = c.cron.Schedule(cron.Every(c.interval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if err := c.Tick(ctx, guildID); err != nil {
			slog.Error("Stage countdown failed",
				slog.String("type", "error"),
				slog.String("guild_id", guildID.String()),
				slog.Any("error", err),
			)
		}
	}))
	slog.Debug("Stage countdown armed",
		slog.String("type", "stage"),
		slog.String("guild_id", guildID.String()),
	)
	return true
}

func (c *Controller) Armed(guildID snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[guildID]
	return ok
}

func (c *Controller) Disarm(guildID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.entries[guildID]; ok {
		c.cron.Remove(id)
		delete(c.entries, guildID)
	}
}

// Tick is one countdown check. The end time is read from the store every
// time, so the countdown follows changes made while it is armed.
func (c *Controller) Tick(ctx context.Context, guildID snowflake.ID) error {
	stage, err := c.store.Stages().GetActive(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to get active stage: %w", err)
	}
	if stage == nil || stage.EndTime == nil {
		c.Disarm(guildID)
		return nil
	}
	if c.now().Before(*stage.EndTime) {
		return nil
	}

	if _, err := c.SwitchStage(ctx, stage); err != nil && !errors.Is(err, contest.ErrStageNotActive) {
		return err
	}
	c.Disarm(guildID)
	return nil
}

// SwitchStage ends stage and starts the one that follows it by order, if
// any. A stage that is no longer active is not switched twice.
func (c *Controller) SwitchStage(ctx context.Context, stage *models.Stage) (*models.Stage, error) {
	var ended, next *models.Stage
	err := c.store.RunInTx(ctx, func(ctx context.Context, tx contest.Store) error {
		current, err := tx.Stages().Get(ctx, stage.ID, stage.GuildID)
		if err != nil {
			return fmt.Errorf("failed to get stage: %w", err)
		}
		if current == nil {
			return contest.ConfigErrorf(contest.ErrStageNotFound, "%s", stage.ID)
		}
		if !current.Active {
			return contest.ConfigErrorf(contest.ErrStageNotActive, "%s", stage.ID)
		}

		now := c.now().UTC()
		if err := tx.Stages().End(ctx, stage.ID, stage.GuildID, now); err != nil {
			return fmt.Errorf("failed to end stage: %w", err)
		}
		if ended, err = tx.Stages().Get(ctx, stage.ID, stage.GuildID); err != nil {
			return fmt.Errorf("failed to get stage: %w", err)
		}

		following, err := tx.Stages().GetByOrder(ctx, stage.GuildID, stage.Order+1)
		if err != nil {
			return fmt.Errorf("failed to get next stage: %w", err)
		}
		if following == nil {
			return nil
		}
		if err := tx.Stages().Start(ctx, following.ID, following.GuildID, now); err != nil {
			return fmt.Errorf("failed to start next stage: %w", err)
		}
		next, err = tx.Stages().Get(ctx, following.ID, following.GuildID)
		return err
	})
	if err != nil {
		return nil, err
	}

	attrs := []any{
		slog.String("type", "stage"),
		slog.String("stage_id", stage.ID),
		slog.String("guild_id", stage.GuildID.String()),
	}
	if next != nil {
		attrs = append(attrs, slog.String("next_stage_id", next.ID))
	}
	slog.Info("Stage ended", attrs...)

	c.mu.Lock()
	listeners := append([]SwitchListener(nil), c.onSwitch...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(ctx, ended, next)
	}
	return next, nil
}

// Init re-arms the countdowns of guilds whose active stage has a persisted
// end time. Nothing else is carried over from a previous run.
func (c *Controller) Init(ctx context.Context, guildIDs []snowflake.ID) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, guildID := range guildIDs {
		g.Go(func() error {
			stage, err := c.store.Stages().GetActive(ctx, guildID)
			if err != nil {
				return fmt.Errorf("failed to get active stage of guild %s: %w", guildID, err)
			}
			if stage != nil && stage.EndTime != nil {
				c.Arm(guildID)
			}
			return nil
		})
	}
	return g.Wait()
}
