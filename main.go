package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creasury/invitebot/invitebot"
	"github.com/creasury/invitebot/invitebot/commands"
	"github.com/creasury/invitebot/invitebot/database"
	"github.com/creasury/invitebot/invitebot/handlers"
	"github.com/creasury/invitebot/invitebot/logger"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	stagesPath := flag.String("stages", "", "path to stage definitions to store on startup")
	flag.Parse()

	cfg, err := invitebot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandlerWithOptions(logger.ParseLevel(cfg.Log.Level), cfg.Log.AddSource)))

	slog.Info("Starting InviteBot",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit))

	dbStartTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("type", "db"),
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()
	if err = db.Ping(ctx); err != nil {
		slog.Error("Database ping failed", slog.String("type", "db"), slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("type", "db"),
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err = db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	b := invitebot.New(*cfg, version, commit)
	if err = b.Init(ctx, db); err != nil {
		logger.LogError("Failed to initialize contest services", err)
		os.Exit(-1)
	}

	if *stagesPath != "" {
		defined, err := invitebot.LoadStages(*stagesPath)
		if err != nil {
			slog.Error("Failed to load stages", slog.String("type", "stage"), slog.Any("error", err))
			os.Exit(-1)
		}
		if err = b.DefineStages(ctx, defined); err != nil {
			slog.Error("Failed to define stages", slog.String("type", "stage"), slog.Any("error", err))
			os.Exit(-1)
		}
	}

	h := handler.New()
	commands.Register(h, b)

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)),
		)
		os.Exit(-1)
	}
	// membership events need the notifier and invite tracker created by SetupBot
	b.Client.AddEventListeners(handlers.MembershipHandler(b))

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Shutdown(5 * time.Second)
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
			)
		}
	}

	if err = b.Start(ctx); err != nil {
		logger.LogError("Failed to start stage scheduler", err)
		os.Exit(-1)
	}

	gatewayCtx, gatewayCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gatewayCancel()
	if err = b.Client.OpenGateway(gatewayCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "gateway"),
		)
		os.Exit(-1)
	}

	logger.LogSystem("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down bot...")
}
