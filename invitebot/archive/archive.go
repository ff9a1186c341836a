package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
)

// Config points at a DigitalOcean Spaces bucket. An empty bucket disables
// archiving.
type Config struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Root   string `toml:"root"`
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver keeps JSON copies of final rankings and distribution results
// outside the database.
type Archiver struct {
	client putter
	bucket string
	root   string
	now    func() time.Time
}

func New(ctx context.Context, cfg Config) (*Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load Spaces config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.digitaloceanspaces.com", cfg.Region))
	})
	return newArchiver(client, cfg.Bucket, cfg.Root), nil
}

func newArchiver(client putter, bucket, root string) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		root:   strings.Trim(root, "/"),
		now:    time.Now,
	}
}

type rankingSnapshot struct {
	StageID    string           `json:"stageId"`
	GuildID    snowflake.ID     `json:"guildId"`
	EndedAt    *time.Time       `json:"endedAt,omitempty"`
	Levels     models.Levels    `json:"levels"`
	Rankings   []models.Ranking `json:"rankings"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

type distributionSnapshot struct {
	StageID    string              `json:"stageId"`
	GuildID    snowflake.ID        `json:"guildId"`
	Level      int                 `json:"level"`
	Rewards    models.StageRewards `json:"rewards"`
	ArchivedAt time.Time           `json:"archivedAt"`
}

// ArchiveRanking uploads the final leaderboard of an ended stage and returns
// the object key.
func (a *Archiver) ArchiveRanking(ctx context.Context, stage *models.Stage, ranking *models.StageRanking) (string, error) {
	now := a.now().UTC()
	snapshot := rankingSnapshot{
		StageID:    stage.ID,
		GuildID:    stage.GuildID,
		EndedAt:    stage.EndedAt,
		Levels:     stage.Levels,
		ArchivedAt: now,
	}
	if ranking != nil {
		snapshot.Rankings = ranking.Rankings
	}
	return a.put(ctx, a.Key(stage.GuildID, stage.ID, "ranking", now), snapshot)
}

// ArchiveDistribution uploads the reward state of a stage after a level was
// distributed.
func (a *Archiver) ArchiveDistribution(ctx context.Context, stage *models.Stage, level int) (string, error) {
	now := a.now().UTC()
	snapshot := distributionSnapshot{
		StageID:    stage.ID,
		GuildID:    stage.GuildID,
		Level:      level,
		Rewards:    stage.Rewards,
		ArchivedAt: now,
	}
	return a.put(ctx, a.Key(stage.GuildID, stage.ID, fmt.Sprintf("distribution-level-%d", level), now), snapshot)
}

// Key builds the object key, e.g.
// root/123/Stage%201/ranking-20220101T120000Z.json.
func (a *Archiver) Key(guildID snowflake.ID, stageID, kind string, at time.Time) string {
	parts := []string{guildID.String(), url.PathEscape(stageID), fmt.Sprintf("%s-%s.json", kind, at.UTC().Format("20060102T150405Z"))}
	if a.root != "" {
		parts = append([]string{a.root}, parts...)
	}
	return strings.Join(parts, "/")
}

func (a *Archiver) put(ctx context.Context, key string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode archive: %w", err)
	}

	start := time.Now()
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	slog.Info("Archived stage data",
		slog.String("type", "stage"),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Duration("took", time.Since(start)),
	)
	return key, nil
}
