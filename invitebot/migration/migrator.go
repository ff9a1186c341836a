package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const defaultBatchSize = 500

// Migrator copies the previous bot's Mongo collections into Postgres.
// Every write is an upsert so an import can be repeated.
type Migrator struct {
	pgDB      *bun.DB
	mongoDB   *mongo.Database
	batchSize int
	collNames map[string]string
	stats     MigrationStats
}

func NewMigrator(pgDB *bun.DB, mongoDB *mongo.Database) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		mongoDB:   mongoDB,
		batchSize: defaultBatchSize,
		collNames: map[string]string{
			"stages":   "stages",
			"members":  "members",
			"counters": "memberCounters",
		},
		stats: newStats(),
	}
}

func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// SetCollectionName overrides the Mongo collection used for kind, one of
// "stages", "members" or "counters".
func (m *Migrator) SetCollectionName(kind, name string) {
	if name != "" {
		m.collNames[kind] = name
	}
}

func (m *Migrator) Stats() MigrationStats {
	return m.stats
}

func (m *Migrator) MigrateAll(ctx context.Context) error {
	start := time.Now()
	steps := []struct {
		name    string
		migrate func(context.Context) error
	}{
		{"stages", m.MigrateStages},
		{"members", m.MigrateMembers},
		{"counters", m.MigrateCounters},
	}
	for _, step := range steps {
		slog.Info("Starting migration step",
			slog.String("type", "db"),
			slog.String("step", step.name))
		if err := step.migrate(ctx); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", step.name, err)
		}
	}

	for _, step := range steps {
		slog.Info("Migration step summary",
			slog.String("type", "db"),
			slog.String("step", step.name),
			slog.Int("read", m.stats.Read[step.name]),
			slog.Int("written", m.stats.Written[step.name]),
			slog.Int("skipped", m.stats.Skipped[step.name]))
	}
	slog.Info("Migration completed",
		slog.String("type", "db"),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (m *Migrator) MigrateStages(ctx context.Context) error {
	return forEachBatch(ctx, m, "stages", func(ctx context.Context, batch []LegacyStage) error {
		stages := make([]*models.Stage, 0, len(batch))
		for _, ls := range batch {
			stage, err := ConvertStage(ls)
			if err != nil {
				m.skip("stages", err)
				continue
			}
			stages = append(stages, stage)
		}
		if len(stages) == 0 {
			return nil
		}
		_, err := m.pgDB.NewInsert().
			Model(&stages).
			On("CONFLICT (id, guild_id) DO UPDATE").
			Set("stage_order = EXCLUDED.stage_order").
			Set("reward_name = EXCLUDED.reward_name").
			Set("levels = EXCLUDED.levels").
			Set("goals = EXCLUDED.goals").
			Set("active = EXCLUDED.active").
			Set("started = EXCLUDED.started").
			Set("ended = EXCLUDED.ended").
			Set("started_at = EXCLUDED.started_at").
			Set("ended_at = EXCLUDED.ended_at").
			Set("end_time = EXCLUDED.end_time").
			Set("rewards = EXCLUDED.rewards").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert stages: %w", err)
		}
		m.stats.Written["stages"] += len(stages)
		return nil
	})
}

func (m *Migrator) MigrateMembers(ctx context.Context) error {
	return forEachBatch(ctx, m, "members", func(ctx context.Context, batch []LegacyMember) error {
		members := make([]*models.Member, 0, len(batch))
		for _, lm := range batch {
			member, err := ConvertMember(lm)
			if err != nil {
				m.skip("members", err)
				continue
			}
			members = append(members, member)
		}
		if len(members) == 0 {
			return nil
		}
		_, err := m.pgDB.NewInsert().
			Model(&members).
			On("CONFLICT (user_id, guild_id) DO UPDATE").
			Set("inviter_id = EXCLUDED.inviter_id").
			Set("original_inviter_id = EXCLUDED.original_inviter_id").
			Set("original_invite_timestamp = EXCLUDED.original_invite_timestamp").
			Set("invite_timestamp = EXCLUDED.invite_timestamp").
			Set("fake = EXCLUDED.fake").
			Set("removed = EXCLUDED.removed").
			Set("remove_timestamp = EXCLUDED.remove_timestamp").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert members: %w", err)
		}
		m.stats.Written["members"] += len(members)
		return nil
	})
}

func (m *Migrator) MigrateCounters(ctx context.Context) error {
	return forEachBatch(ctx, m, "counters", func(ctx context.Context, batch []bson.M) error {
		var counters []*models.MemberCounter
		for _, doc := range batch {
			converted, err := ConvertCounters(doc)
			if err != nil {
				m.skip("counters", err)
				continue
			}
			counters = append(counters, converted...)
		}
		if len(counters) == 0 {
			return nil
		}
		_, err := m.pgDB.NewInsert().
			Model(&counters).
			On("CONFLICT (user_id, guild_id, scope, stage_id, field) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert counters: %w", err)
		}
		m.stats.Written["counters"] += len(counters)
		return nil
	})
}

func (m *Migrator) skip(kind string, err error) {
	m.stats.Skipped[kind]++
	slog.Warn("Skipping legacy document",
		slog.String("type", "db"),
		slog.String("collection", m.collNames[kind]),
		slog.Any("error", err))
}

// forEachBatch streams a collection and hands fn at most batchSize decoded
// documents at a time. Documents that fail to decode are skipped.
func forEachBatch[T any](ctx context.Context, m *Migrator, kind string, fn func(context.Context, []T) error) error {
	if m.mongoDB == nil {
		return fmt.Errorf("mongo database not configured")
	}
	cur, err := m.mongoDB.Collection(m.collNames[kind]).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", m.collNames[kind], err)
	}
	defer cur.Close(ctx)

	batch := make([]T, 0, m.batchSize)
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			m.skip(kind, err)
			continue
		}
		m.stats.Read[kind]++
		batch = append(batch, doc)
		if len(batch) >= m.batchSize {
			if err := fn(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("cursor %s: %w", m.collNames[kind], err)
	}
	if len(batch) > 0 {
		return fn(ctx, batch)
	}
	return nil
}
