package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/database"
	"github.com/creasury/invitebot/invitebot/logger"
	"github.com/creasury/invitebot/invitebot/migration"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	configPath string
	mongoURI   string
	mongoDB    string
	batchSize  int
	collStages string
	collMember string
	collCount  string
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "import members, counters and stages of the previous bot from MongoDB",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := invitebot.LoadConfig(configPath)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(logger.NewHandler(logger.ParseLevel(cfg.Log.Level))))

		if mongoURI == "" {
			mongoURI = os.Getenv("MONGO_URI")
		}
		if mongoURI == "" {
			return fmt.Errorf("mongo uri is required (--mongo-uri or MONGO_URI)")
		}

		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			slog.Error("Failed to connect to database",
				slog.String("type", "db"),
				slog.Any("error", err))
			return err
		}
		defer db.Close()
		if err = db.Ping(ctx); err != nil {
			return err
		}

		if err = db.InitializeSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI))
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		defer client.Disconnect(context.Background())
		if err = client.Ping(connectCtx, nil); err != nil {
			return fmt.Errorf("failed to ping mongo: %w", err)
		}

		migrator := migration.NewMigrator(db.BunDB(), client.Database(mongoDB))
		migrator.SetBatchSize(batchSize)
		migrator.SetCollectionName("stages", collStages)
		migrator.SetCollectionName("members", collMember)
		migrator.SetCollectionName("counters", collCount)

		if err = migrator.MigrateAll(ctx); err != nil {
			slog.Error("Migration failed",
				slog.String("type", "db"),
				slog.Any("error", err))
			return err
		}
		return nil
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "config.toml", "path to the bot config")
	flags.StringVar(&mongoURI, "mongo-uri", "", "connection string of the legacy database")
	flags.StringVar(&mongoDB, "mongo-db", "creasury", "name of the legacy database")
	flags.IntVar(&batchSize, "batch-size", 500, "documents per insert")
	flags.StringVar(&collStages, "stages-collection", "stages", "")
	flags.StringVar(&collMember, "members-collection", "members", "")
	flags.StringVar(&collCount, "counters-collection", "memberCounters", "")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
