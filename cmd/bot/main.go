package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/xaenox/justask-bot/internal/assistant"
	"github.com/xaenox/justask-bot/internal/bot"
	"github.com/xaenox/justask-bot/internal/conversation"
	"github.com/xaenox/justask-bot/internal/reminder"
	"github.com/xaenox/justask-bot/internal/search"
	"github.com/xaenox/justask-bot/internal/storage"
	"github.com/xaenox/justask-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env file")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	switch cfg.Database.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	case "postgres":
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	default:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Database.Path))
		store, err = storage.NewSQLiteStorage(cfg.Database.Path)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the model client and supporting services
	model := assistant.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature, logger)
	searcher := search.NewService(logger)
	contexts := conversation.NewTracker(cfg.Bot.MaxHistory)
	scheduler := reminder.NewScheduler(store, cfg.Bot.MaxReminders, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, store, model, searcher, scheduler, contexts, bot.Options{
		SearchEnabled: cfg.Search.Enabled,
		SearchResults: cfg.Search.Results,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// The scheduler delivers reminders through the bot, so wire it up before
	// loading pending reminders.
	scheduler.SetNotify(b.DeliverReminder)
	if err := scheduler.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start reminder scheduler", zap.Error(err))
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		scheduler.Stop()
		b.Stop()
	}()

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
