package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"birthday_notification_bot/internal/app"
	"birthday_notification_bot/internal/infra/config"
	idb "birthday_notification_bot/internal/infra/database"
	"birthday_notification_bot/internal/infra/httpserver"
	"birthday_notification_bot/internal/infra/logger"
	"birthday_notification_bot/internal/infra/scheduler"
	"birthday_notification_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Birthday Notification Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg)
	log := logger.Get()
	log.WithField("environment", cfg.Environment).Info("Configuration loaded")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.WithError(err).Fatalf("Invalid TIMEZONE %q", cfg.Timezone)
	}

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	log.Info("Database connection established and migrations applied")

	// Initialize Repositories
	birthdayRepo := idb.NewPostgresBirthdayRepository(db)
	ledgerRepo := idb.NewPostgresLedgerRepository(db)

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(map[string]interface{}{
					"sender_id": c.Sender().ID,
					"chat_id":   c.Chat().ID,
				})
			}
			entry.Error("Telebot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.WithError(err).Fatal("Could not create Telegram bot")
	}

	// Initialize Services
	telegramClient := telegram.NewTelebotAdapter(bot)
	birthdayService := app.NewBirthdayService(
		birthdayRepo,
		ledgerRepo,
		telegramClient,
		loc,
		cfg.HorizonDays,
		cfg.RetentionDays,
		log.WithField("component", "birthday_service"),
	)
	subscriptionService := app.NewSubscriptionService(birthdayRepo)

	// Register Handlers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	telegram.RegisterHandlers(ctx, bot, subscriptionService, birthdayService, log.WithField("component", "handlers"))
	log.Info("Chat command handlers registered")

	// Initialize Scheduler
	birthdayScheduler := scheduler.NewBirthdayScheduler(
		birthdayService,
		log.WithField("component", "scheduler"),
		cfg.CronSpecDaily,
		loc,
	)
	if err := birthdayScheduler.Start(); err != nil {
		log.WithError(err).Fatal("Could not start birthday scheduler")
	}

	// Health-check / trigger HTTP surface
	srv := httpserver.New(cfg.HTTPAddr, birthdayService, log.WithField("component", "httpserver"))
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP trigger surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	log.Info("Application setup complete. Bot and scheduler are starting...")
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	birthdayScheduler.Stop()
	bot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown was not clean")
	}
	log.Info("Application shut down gracefully.")
}
