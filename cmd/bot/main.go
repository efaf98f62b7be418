package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	taskwheel "github.com/clanhall/taskwheel"
	"github.com/clanhall/taskwheel/internal/catalog"
	"github.com/clanhall/taskwheel/internal/config"
	"github.com/clanhall/taskwheel/internal/draw"
	"github.com/clanhall/taskwheel/internal/handler"
	"github.com/clanhall/taskwheel/internal/ledger"
	"github.com/clanhall/taskwheel/internal/middleware"
	"github.com/clanhall/taskwheel/internal/repository"
	"github.com/clanhall/taskwheel/internal/rotation"
	"github.com/clanhall/taskwheel/internal/telegram"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(taskwheel.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := repository.NewPostgres(pool)

	// Gateway pointer for use in default handler closure
	var gateway *telegram.Gateway

	// Create bot. Reaction updates must be requested explicitly.
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
		),
		bot.WithAllowedUpdates([]string{"message", "message_reaction"}),
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if gateway == nil {
				return
			}
			gateway.HandleUpdate(ctx, b, update)
		}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Get bot info
	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	gateway = telegram.New(b, me.ID, cfg.TaskChannelID, store)

	// Initialize services
	catalogService := catalog.New(store)
	instanceLifecycle := rotation.NewInstanceLifecycle(store, gateway, cfg)
	voteLifecycle := rotation.NewVoteLifecycle(store, catalogService, gateway, cfg)
	ledgerService := ledger.New(store)
	drawService := draw.New(store, gateway, cfg.PrizeAmount)

	// Load the task catalog
	if cfg.TasksFile != "" {
		n, err := catalogService.LoadFile(ctx, cfg.TasksFile)
		if err != nil {
			slog.Error("failed to load task file", "file", cfg.TasksFile, "error", err)
			os.Exit(1)
		}
		slog.Info("task catalog loaded", "file", cfg.TasksFile, "tasks", n)
	}

	// Initialize handler
	h := handler.New(handler.Deps{
		Bot:       b,
		Cfg:       cfg,
		Catalog:   catalogService,
		Instances: instanceLifecycle,
		Votes:     voteLifecycle,
		Ledger:    ledgerService,
		Draw:      drawService,
		Gateway:   gateway,
	})
	h.Register()

	// Start rotation watchers. Every decision is recomputed from persisted
	// timestamps, so a restart resumes mid-rotation with nothing lost.
	scheduler := rotation.NewScheduler(store, catalogService, instanceLifecycle, voteLifecycle, ledgerService, gateway, cfg)
	for _, w := range scheduler.Watchers() {
		go w.Run(ctx)
	}
	go scheduler.RunReactionWatcher(ctx)

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.Start(ctx)

	// Graceful shutdown
	slog.Info("bot stopped gracefully")
}
