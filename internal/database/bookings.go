package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"druktour/internal/models"
)

const bookingColumns = `id, tour_name, lead_traveler, start_date, approval_status, itinerary_version, created_at, updated_at`

// CreateBooking stores a booking together with its initial itinerary.
func (db *DB) CreateBooking(ctx context.Context, booking *models.TourBooking, days []models.ItineraryDay) error {
	if err := ValidateDays(days); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if booking.ApprovalStatus == "" {
		booking.ApprovalStatus = models.ApprovalNone
	}
	query := `INSERT INTO tour_bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		booking.ID,
		booking.TourName,
		booking.LeadTraveler,
		booking.StartDate,
		booking.ApprovalStatus,
		1,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %s: %w", booking.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if err := insertDays(ctx, tx, booking.ID, days); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	booking.ItineraryVersion = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.TourBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM tour_bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListBookingsByStatus returns bookings in the given approval status, newest first.
func (db *DB) ListBookingsByStatus(ctx context.Context, status models.ApprovalStatus, limit int) ([]models.TourBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM tour_bookings WHERE approval_status = ? ORDER BY updated_at DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.TourBooking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.TourBooking, error) {
	var b models.TourBooking
	var startDate sql.NullTime
	err := row.Scan(&b.ID, &b.TourName, &b.LeadTraveler, &startDate, &b.ApprovalStatus,
		&b.ItineraryVersion, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startDate.Valid {
		b.StartDate = startDate.Time
	}
	return &b, nil
}

// ValidateDays checks the identity invariants of an itinerary: non-empty
// unique day ids and day numbers forming 1..n in order.
func ValidateDays(days []models.ItineraryDay) error {
	if len(days) == 0 {
		return fmt.Errorf("%w: no days", ErrInvalidItinerary)
	}
	seen := make(map[string]bool, len(days))
	for i, d := range days {
		if d.ID == "" {
			return fmt.Errorf("%w: day %d has no id", ErrInvalidItinerary, i+1)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate day id %s", ErrInvalidItinerary, d.ID)
		}
		seen[d.ID] = true
		if d.DayNumber != i+1 {
			return fmt.Errorf("%w: day %s has number %d, want %d", ErrInvalidItinerary, d.ID, d.DayNumber, i+1)
		}
	}
	return nil
}

func insertDays(ctx context.Context, tx *sql.Tx, bookingID string, days []models.ItineraryDay) error {
	query := `INSERT INTO itinerary_days (
                booking_id, day_id, day_number, title, description, activities, accommodation, meals, notes
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, d := range days {
		activities, meals, err := encodeLists(d)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, bookingID, d.ID, d.DayNumber, d.Title, d.Description,
			activities, d.Accommodation, meals, d.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert itinerary day %s: %w", d.ID, err)
		}
	}
	return nil
}

func encodeLists(d models.ItineraryDay) (string, string, error) {
	activities := d.Activities
	if activities == nil {
		activities = []string{}
	}
	meals := d.Meals
	if meals == nil {
		meals = []string{}
	}
	a, err := json.Marshal(activities)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode activities: %w", err)
	}
	m, err := json.Marshal(meals)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode meals: %w", err)
	}
	return string(a), string(m), nil
}
