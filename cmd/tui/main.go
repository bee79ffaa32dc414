// cmd/tui is the terminal itinerary editor. It works against the same
// database and session store as the API server; approval sheet updates are
// queued in sync_queue for the server's worker to pick up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"druktour/internal/config"
	"druktour/internal/database"
	"druktour/internal/domain"
	"druktour/internal/events"
	"druktour/internal/logging"
	"druktour/internal/models"
	"druktour/internal/repository"
	"druktour/internal/service"
	"druktour/internal/tui"
	"druktour/internal/worker"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
	bookingID := flag.String("booking", "", "booking id to open")
	editorID := flag.String("editor", envOr("USER", ""), "editor id recorded on changes")
	roleName := flag.String("role", string(models.RoleTourist), "editor role: tourist, tour_manager, admin, guide or driver")
	flag.Parse()

	if *bookingID == "" || *editorID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*configPath, *bookingID, *editorID, *roleName); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(configPath, bookingID, editorID, roleName string) error {
	role, err := models.ParseRole(roleName)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// the alternate screen owns stdout
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr" {
		cfg.Logging.Output = "discard"
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *redis.Client
	if cfg.Redis.Address != "" {
		client = repository.NewRedisClient(cfg.Redis)
		defer repository.Close(client)
	}

	// never started: tasks are persisted and handed to the server's worker
	var syncWorker domain.SyncWorker
	if cfg.Google.ReviewSpreadsheetID != "" {
		syncWorker = worker.NewSheetsWorker(db, nil, client, worker.RetryPolicy{}, logging.Component(logger, "sheets-queue"))
	}

	itineraries := service.NewItineraryService(
		db,
		sessionStore(cfg, client, logger),
		events.NewEventBus(),
		syncWorker,
		time.Duration(cfg.Session.SubmitTimeoutSeconds)*time.Second,
		logging.Component(logger, "itineraries"),
	)
	bookings := service.NewBookingService(db, logging.Component(logger, "bookings"))

	model := tui.New(ctx, itineraries, bookings, bookingID, models.Actor{ID: editorID, Role: role})
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	if s := model.Summary(); s != "" {
		fmt.Println(s)
	}
	return nil
}

func sessionStore(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SessionStore {
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL * time.Second
	}
	memory := repository.NewMemoryStateRepository(ttl, models.DefaultStateTTL*time.Second)
	if client == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(client, ttl, models.DefaultStateTTL*time.Second),
		memory,
		logging.Component(logger, "sessions"),
	)
}
