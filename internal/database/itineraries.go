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

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// GetItinerary loads the stored itinerary of a booking, ordered by day number.
func (db *DB) GetItinerary(ctx context.Context, bookingID string) (*models.Itinerary, error) {
	return getItinerary(ctx, db, bookingID)
}

func getItinerary(ctx context.Context, q queryer, bookingID string) (*models.Itinerary, error) {
	it := &models.Itinerary{BookingID: bookingID}
	err := q.QueryRowContext(ctx,
		`SELECT itinerary_version, approval_status FROM tour_bookings WHERE id = ?`, bookingID,
	).Scan(&it.Version, &it.ApprovalStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get itinerary: %w", err)
	}

	days, err := loadDays(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	it.Days = days
	return it, nil
}

func loadDays(ctx context.Context, q queryer, bookingID string) ([]models.ItineraryDay, error) {
	query := `SELECT day_id, day_number, title, description, activities, accommodation, meals, notes
              FROM itinerary_days WHERE booking_id = ? ORDER BY day_number ASC`
	rows, err := q.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get itinerary days: %w", err)
	}
	defer rows.Close()

	var days []models.ItineraryDay
	for rows.Next() {
		var d models.ItineraryDay
		var activities, meals string
		if err := rows.Scan(&d.ID, &d.DayNumber, &d.Title, &d.Description, &activities,
			&d.Accommodation, &meals, &d.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan itinerary day: %w", err)
		}
		if err := json.Unmarshal([]byte(activities), &d.Activities); err != nil {
			return nil, fmt.Errorf("failed to decode activities of day %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(meals), &d.Meals); err != nil {
			return nil, fmt.Errorf("failed to decode meals of day %s: %w", d.ID, err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// SaveItinerary replaces the stored days with an edited copy and bumps the
// itinerary version. The approval status is left as it is. baseVersion must
// match the stored version.
func (db *DB) SaveItinerary(ctx context.Context, bookingID string, baseVersion int64, days []models.ItineraryDay, summary, editorID string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	version, err := applyDays(ctx, tx, bookingID, baseVersion, days)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO itinerary_changes (booking_id, version, summary, editor_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		bookingID, version, summary, editorID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to record itinerary change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit itinerary: %w", err)
	}
	return version, nil
}

// applyDays overwrites the mutable fields of every stored day inside tx and
// returns the new version.
func applyDays(ctx context.Context, tx *sql.Tx, bookingID string, baseVersion int64, days []models.ItineraryDay) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tour_bookings SET itinerary_version = itinerary_version + 1, updated_at = ? WHERE id = ? AND itinerary_version = ?`,
		time.Now(), bookingID, baseVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to bump itinerary version: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tour_bookings WHERE id = ?`, bookingID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
		}
		return 0, ErrConcurrentModification
	}

	stored, err := loadDays(ctx, tx, bookingID)
	if err != nil {
		return 0, err
	}
	if err := sameShape(stored, days); err != nil {
		return 0, err
	}

	query := `UPDATE itinerary_days SET title = ?, description = ?, activities = ?, accommodation = ?, meals = ?, notes = ?
              WHERE booking_id = ? AND day_id = ?`
	for _, d := range days {
		activities, meals, err := encodeLists(d)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, query, d.Title, d.Description, activities, d.Accommodation,
			meals, d.Notes, bookingID, d.ID); err != nil {
			return 0, fmt.Errorf("failed to update itinerary day %s: %w", d.ID, err)
		}
	}

	return baseVersion + 1, nil
}

// sameShape rejects edits that add, drop or renumber days.
func sameShape(stored, edited []models.ItineraryDay) error {
	if len(stored) != len(edited) {
		return fmt.Errorf("%w: %d days stored, %d given", ErrItineraryShape, len(stored), len(edited))
	}
	for i := range stored {
		if stored[i].ID != edited[i].ID || stored[i].DayNumber != edited[i].DayNumber {
			return fmt.Errorf("%w: position %d", ErrItineraryShape, i)
		}
	}
	return nil
}

// ListItineraryChanges returns the saved revisions of a booking's itinerary, oldest first.
func (db *DB) ListItineraryChanges(ctx context.Context, bookingID string) ([]models.ItineraryChange, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, booking_id, version, summary, editor_id, created_at FROM itinerary_changes WHERE booking_id = ? ORDER BY id ASC`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list itinerary changes: %w", err)
	}
	defer rows.Close()

	var changes []models.ItineraryChange
	for rows.Next() {
		var c models.ItineraryChange
		if err := rows.Scan(&c.ID, &c.BookingID, &c.Version, &c.Summary, &c.EditorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan itinerary change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
