package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"community-points/config"
	"community-points/handlers"
	"community-points/logging"
	"community-points/models"
	"community-points/services"
	"community-points/utils"
	"community-points/workers"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to database")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := models.AutoMigrate(db); err != nil {
		logging.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache *services.EngagementCache
	if cfg.Cache.Enabled {
		if cache, err = services.OpenEngagementCache(cfg.Cache); err != nil {
			logging.Fatal().Err(err).Msg("failed to open engagement cache")
		}
		defer cache.Close()
	}
	engagement := services.NewEngagementServiceFromConfig(cfg, cache)

	points := services.NewPointsService(db, services.WeightsFromConfig(cfg.Points))
	quests := services.NewQuestService(db, points)
	if err := quests.SeedDefaults(); err != nil {
		logging.Fatal().Err(err).Msg("failed to seed quests")
	}
	validator := services.NewContentValidator(services.KeywordLists{
		Required: cfg.Keywords.Required,
		Positive: cfg.Keywords.Positive,
		Negative: cfg.Keywords.Negative,
		Scam:     cfg.Keywords.Scam,
	})
	posts := services.NewPostService(db, points, validator, engagement, quests, cfg.ManualOnlyMode)
	leaderboard := services.NewLeaderboardService(db)

	var store services.SnapshotStore
	if cfg.Snapshot.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.Snapshot)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		store = r2
	}
	snapshots := services.NewSnapshotService(leaderboard, store)

	app := handlers.NewApp(cfg, handlers.Services{
		Points:      points,
		Leaderboard: leaderboard,
		Posts:       posts,
		Quests:      quests,
		Admin:       services.NewAdminService(db, points, engagement, cfg.ManualOnlyMode, cfg.AutoMonitoringActive()),
		Snapshots:   snapshots,
		Stream:      services.NewPointsStream(db),
		Engagement:  engagement,
	})

	sched, err := services.StartScheduler(ctx, cfg, posts, snapshots)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to start scheduler")
	}

	if engagement.HasProfileSource() {
		workers.NewProfileSyncWorker(db, engagement, cfg.Scraper.ProfileSyncInterval).Start(ctx)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logging.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	logging.Info().
		Str("port", cfg.Port).
		Bool("manual_only_mode", cfg.ManualOnlyMode).
		Bool("auto_monitoring", cfg.AutoMonitoringActive()).
		Bool("primary_api", cfg.Twitter.Enabled()).
		Bool("scraper", cfg.Scraper.URL != "").
		Bool("snapshots", store != nil).
		Msg("server running")

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		logging.Error().Err(err).Msg("scheduler shutdown")
	}
}
