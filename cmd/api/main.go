package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"druktour/internal/api"
	"druktour/internal/bot"
	"druktour/internal/config"
	"druktour/internal/database"
	"druktour/internal/domain"
	"druktour/internal/events"
	"druktour/internal/google"
	"druktour/internal/logging"
	"druktour/internal/metrics"
	"druktour/internal/models"
	"druktour/internal/pricing"
	"druktour/internal/repository"
	"druktour/internal/service"
	"druktour/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	sessions := initSessionStore(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()

	var syncWorker domain.SyncWorker
	if sheets := initApprovalsSheet(ctx, cfg, &logger); sheets != nil {
		w := worker.NewSheetsWorker(db, sheets, redisClient, worker.RetryPolicy{
			MaxRetries:    5,
			InitialDelay:  2 * time.Second,
			MaxDelay:      time.Minute,
			BackoffFactor: 2,
		}, logging.Component(&logger, "sheets-worker"))
		go w.Start(ctx)
		syncWorker = w
	}

	calc, err := pricing.NewCalculator(cfg.Pricing)
	if err != nil {
		return fmt.Errorf("init pricing: %w", err)
	}

	submitTimeout := time.Duration(cfg.Session.SubmitTimeoutSeconds) * time.Second
	reviews := service.NewReviewService(db, eventBus, syncWorker, logging.Component(&logger, "reviews"))
	svc := api.Services{
		Bookings:    service.NewBookingService(db, logging.Component(&logger, "bookings")),
		Itineraries: service.NewItineraryService(db, sessions, eventBus, syncWorker, submitTimeout, logging.Component(&logger, "itineraries")),
		Reviews:     reviews,
		Pricing:     calc,
		Checks:      readyChecks(db, redisClient, sessions),
	}

	if err := startReviewerBot(ctx, cfg, eventBus, sessions, reviews, &logger); err != nil {
		logger.Warn().Err(err).Msg("reviewer bot disabled")
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, nil, svc.Checks, logging.Component(&logger, "grpc"))
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	go grpcServer.WatchHealth(ctx, 15*time.Second)

	httpServer := api.NewHTTPServer(&cfg.API, svc, nil, logging.Component(&logger, "http"))

	startMetrics(ctx, cfg, &logger)
	startBackups(ctx, cfg, db, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, sessions fall back to memory")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

// initSessionStore keeps sessions in Redis when configured, with the memory
// store taking over while Redis is unreachable.
func initSessionStore(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SessionStore {
	sessionTTL := time.Duration(cfg.Session.TTLSeconds) * time.Second
	if sessionTTL <= 0 {
		sessionTTL = models.DefaultSessionTTL * time.Second
	}
	stateTTL := time.Duration(cfg.Bot.StateTTLSeconds) * time.Second
	if stateTTL <= 0 {
		stateTTL = models.DefaultStateTTL * time.Second
	}

	memory := repository.NewMemoryStateRepository(sessionTTL, stateTTL)
	if client == nil {
		return memory
	}
	primary := repository.NewRedisStateRepository(client, sessionTTL, stateTTL)
	return repository.NewFailoverStateRepository(primary, memory, logging.Component(logger, "sessions"))
}

func initApprovalsSheet(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.ApprovalsSheet {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReviewSpreadsheetID == "" {
		return nil
	}

	sheets, err := google.NewApprovalsSheet(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.ReviewSpreadsheetID, cfg.Google.ApprovalsSheet)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("approvals sheet header")
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("approvals sheet cache warm-up")
	}
	go sheets.RunCacheRefresh(ctx, 10*time.Minute, func(err error) {
		logger.Warn().Err(err).Msg("approvals sheet cache refresh")
	})

	logger.Info().Str("spreadsheet_id", cfg.Google.ReviewSpreadsheetID).Msg("google sheets connected")
	return sheets
}

func readyChecks(db *database.DB, client *redis.Client, sessions domain.SessionStore) []api.ReadyCheck {
	checks := []api.ReadyCheck{{Name: "database", Check: db.PingContext}}
	if client != nil {
		checks = append(checks, api.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return repository.Ping(ctx, client)
		}})
	}
	if failover, ok := sessions.(*repository.FailoverStateRepository); ok {
		checks = append(checks, api.ReadyCheck{Name: "session_store", Check: failover.Ready})
	}
	return checks
}

func startReviewerBot(
	ctx context.Context,
	cfg *config.Config,
	bus *events.EventBus,
	state domain.StateRepository,
	reviews domain.Reviewer,
	logger *zerolog.Logger,
) error {
	if cfg.Telegram.BotToken == "" {
		logger.Info().Msg("telegram token not set, reviewer bot not started")
		return nil
	}
	if len(cfg.Reviewers) == 0 {
		logger.Warn().Msg("no reviewers configured, submissions will not be announced")
	}

	client, err := bot.NewClient(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}

	botLogger := logging.Component(logger, "bot")
	b := bot.NewBot(
		service.NewTelegramService(client),
		cfg,
		service.NewStateService(state, botLogger),
		reviews,
		botLogger,
	)
	b.Subscribe(bus)
	go func() {
		b.Start(ctx)
		b.Stop()
	}()
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startBackups(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Backup.Enabled {
		return
	}
	backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backups.Start(ctx)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
