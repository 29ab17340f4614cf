package main

import (
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/MuhammetEminGerim/autosniper/config"
	"github.com/MuhammetEminGerim/autosniper/internal/api"
	"github.com/MuhammetEminGerim/autosniper/internal/connector"
	"github.com/MuhammetEminGerim/autosniper/internal/database"
	"github.com/MuhammetEminGerim/autosniper/internal/diff"
	"github.com/MuhammetEminGerim/autosniper/internal/normalizer"
	"github.com/MuhammetEminGerim/autosniper/internal/notify"
	"github.com/MuhammetEminGerim/autosniper/internal/quota"
	"github.com/MuhammetEminGerim/autosniper/internal/scheduler"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}

	db, err := database.NewDatabase(cfg.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	sourceClient := &http.Client{Timeout: time.Duration(cfg.Scheduler.SourceTimeoutSeconds) * time.Second}
	arabam := connector.NewArabamClient(cfg.Arabam.BaseURL, cfg.Arabam.PageSize, sourceClient, logger)

	channelTimeout := time.Duration(cfg.Notify.ChannelTimeoutSeconds) * time.Second
	channels := []notify.Channel{
		notify.NewFeedChannel(db),
	}
	if cfg.Notify.PushWebhookURL != "" {
		channels = append(channels, notify.NewPushChannel(cfg.Notify.PushWebhookURL, &http.Client{Timeout: channelTimeout}))
	}
	if cfg.Notify.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Notify.TelegramBotToken)
		if err != nil {
			logger.WithError(err).Error("Telegram bot unavailable, channel disabled")
		} else {
			channels = append(channels, notify.NewTelegramChannel(bot))
		}
	}

	dispatcher := notify.NewDispatcher(
		channels, db,
		channelTimeout, cfg.Notify.ChannelRetries,
		cfg.Notify.PriceDropMinPercent,
		logger,
	)

	guard := quota.NewGuard(db, logger)
	norm := normalizer.New(logger)
	engine := diff.NewEngine(db, cfg.Scheduler.StaleScanThreshold, logger)

	core := scheduler.NewCore(cfg, db, arabam, arabam, norm, engine, guard, dispatcher, logger)
	if err := core.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	router := gin.Default()
	api.SetupRoutes(router, api.NewHandler(db, core, guard, logger))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutting down...")
		core.Stop()
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
		os.Exit(0)
	}()

	logger.Infof("Starting server on port %s", cfg.HTTPPort)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		logger.WithError(err).Fatal("Server failed to start")
	}
}
