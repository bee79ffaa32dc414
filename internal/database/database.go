package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrItineraryShape         = errors.New("itinerary days do not match the stored itinerary")
	ErrAlreadyDecided         = errors.New("approval request already decided")
	ErrInvalidItinerary       = errors.New("invalid itinerary")
	ErrAlreadyExists          = errors.New("already exists")
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; :memory: databases are per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// Path is the sqlite file the DB was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS tour_bookings (
            id TEXT PRIMARY KEY,
            tour_name TEXT NOT NULL,
            lead_traveler TEXT NOT NULL DEFAULT '',
            start_date DATETIME,
            approval_status TEXT NOT NULL DEFAULT 'none',
            itinerary_version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS itinerary_days (
            booking_id TEXT NOT NULL REFERENCES tour_bookings(id) ON DELETE CASCADE,
            day_id TEXT NOT NULL,
            day_number INTEGER NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            activities TEXT NOT NULL DEFAULT '[]',
            accommodation TEXT NOT NULL DEFAULT '',
            meals TEXT NOT NULL DEFAULT '[]',
            notes TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (booking_id, day_id),
            UNIQUE (booking_id, day_number)
        )`,
		`CREATE TABLE IF NOT EXISTS itinerary_changes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id TEXT NOT NULL REFERENCES tour_bookings(id) ON DELETE CASCADE,
            version INTEGER NOT NULL,
            summary TEXT NOT NULL,
            editor_id TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES tour_bookings(id) ON DELETE CASCADE,
            summary TEXT NOT NULL,
            days TEXT NOT NULL,
            base_version INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            submitted_by TEXT NOT NULL DEFAULT '',
            reviewed_by TEXT,
            review_comment TEXT,
            submitted_at DATETIME NOT NULL,
            decided_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            request_id TEXT NOT NULL DEFAULT '',
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_tour_bookings_status ON tour_bookings(approval_status)`,
		`CREATE INDEX IF NOT EXISTS idx_itinerary_changes_booking ON itinerary_changes(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_booking ON approval_requests(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_status ON approval_requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// isUniqueViolation reports a primary key or unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
