package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"astro_bot/internal/ai"
	"astro_bot/internal/config"
	"astro_bot/internal/delivery"
	"astro_bot/internal/engine"
	"astro_bot/internal/feature/owner"
	"astro_bot/internal/feature/profile"
	"astro_bot/internal/health"
	"astro_bot/internal/logging"
	"astro_bot/internal/metrics"
	"astro_bot/internal/quota"
	"astro_bot/internal/router"
	"astro_bot/internal/store"
	"astro_bot/internal/tarot"
	"astro_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	ownerBootstrapTimeout   = 5 * time.Second
	redisConnectTimeout     = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	drainTimeout            = 30 * time.Second
	httpShutdownTimeout     = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	runOnce := flag.Bool("deliver-now", false, "run one delivery batch then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	m := metrics.New()
	logger, err := logging.Setup(cfg, m.LogHook())
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
		"ai_model": cfg.AI.Model,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		fatal(logger, "mongo connection error", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		fatal(logger, "mongo index setup error", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	ownerRegistrar := owner.NewRegistrar(mongoManager.Profiles(), cfg.Delivery.DefaultTime, logger)
	ownerCtx, cancelOwner := context.WithTimeout(context.Background(), ownerBootstrapTimeout)
	err = ownerRegistrar.EnsureOwner(ownerCtx, cfg.BotOwnerID)
	cancelOwner()
	if err != nil {
		fatal(logger, "owner bootstrap error", err)
	}

	profiles := profile.NewStore(mongoManager.Profiles(), cfg.Delivery.DefaultTime, logger)
	limiter := quota.NewLimiter(profiles, quota.PoliciesFromConfig(cfg.Quotas), m, logger)
	aiClient := ai.NewClient(cfg.AI, &http.Client{}, m, logger)
	if !aiClient.Configured() {
		logger.WithField("event", "ai_unconfigured").Warn("AI_API_KEY is empty, readings will fall back to the unavailable message")
	}
	rt := router.New(router.SettingsFromConfig(cfg))

	tgClient, err := telegram.NewClient(cfg, rt, logger, telegram.WithPayerProfiles(profiles))
	if err != nil {
		fatal(logger, "telegram client setup error", err)
	}
	sender := tgClient.Sender()

	eng, err := engine.New(engine.Deps{
		Profiles: profiles,
		Router:   rt,
		Limiter:  limiter,
		AI:       aiClient,
		Drawer:   tarot.NewDrawer(nil),
		Stats:    store.NewStatsProvider(mongoManager.Profiles()),
		Sender:   sender,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		fatal(logger, "engine setup error", err)
	}
	dispatcher := engine.NewDispatcher(eng.Handle, logger)

	var (
		batchLock   delivery.Lock = delivery.LocalLock{}
		healthOpts  []health.Option
		redisClient *redis.Client
	)
	if cfg.Delivery.RedisURL != "" {
		redisCtx, cancelRedis := context.WithTimeout(context.Background(), redisConnectTimeout)
		redisClient, err = delivery.OpenRedis(redisCtx, cfg.Delivery.RedisURL)
		cancelRedis()
		if err != nil {
			fatal(logger, "redis connection error", err)
		}
		batchLock = delivery.NewRedisLock(redisClient, "")
		healthOpts = append(healthOpts, health.WithRedis(health.CheckerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})))
		logger.WithField("event", "redis_connect").Info("connected to redis, delivery batch lock enabled")
	}

	runner, err := delivery.NewRunner(delivery.Deps{
		Profiles:    profiles,
		AI:          aiClient,
		Sender:      sender,
		Runs:        mongoManager.DeliveryRuns(),
		Lock:        batchLock,
		Concurrency: cfg.Delivery.Concurrency,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		fatal(logger, "delivery setup error", err)
	}

	if *runOnce {
		report, err := runner.RunDailyBatch(context.Background(), time.Now())
		if err != nil {
			fatal(logger, "delivery batch error", err)
		}
		fmt.Printf("delivery batch %s: candidates=%d delivered=%d duplicates=%d failures=%d\n",
			report.RunID, report.Candidates, report.Delivered, report.Duplicates, len(report.Failures))
		closeStores(logger, mongoManager, redisClient)
		return
	}

	scheduler, err := delivery.NewScheduler(runner, cfg.Delivery.Schedule, logger)
	if err != nil {
		fatal(logger, "delivery scheduler setup error", err)
	}

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, m.Gatherer(), logger, healthOpts...)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).WithField("event", "health_failed").Error("health server failed")
		}
	}()

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	if err := scheduler.Start(schedulerCtx); err != nil {
		fatal(logger, "delivery scheduler start error", err)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx, dispatcher)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.WithError(err).WithField("event", "dispatcher_drain_timeout").Warn("pending events were canceled")
	}
	if err := scheduler.Stop(drainCtx); err != nil {
		logger.WithError(err).WithField("event", "scheduler_stop_timeout").Warn("delivery batch was canceled")
	}
	cancelDrain()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := healthServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHTTP()

	closeStores(logger, mongoManager, redisClient)

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func closeStores(logger *logrus.Entry, mongoManager *store.Manager, redisClient *redis.Client) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Error("redis close error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
		return
	}
	logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
}

func fatal(logger *logrus.Entry, msg string, err error) {
	logger.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
