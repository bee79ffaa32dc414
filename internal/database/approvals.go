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

const approvalColumns = `id, booking_id, summary, days, base_version, status, submitted_by, reviewed_by, review_comment, submitted_at, decided_at`

// CreateApprovalRequest stores a submission and moves the booking to pending.
func (db *DB) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	if err := ValidateDays(req.Days); err != nil {
		return err
	}
	days, err := json.Marshal(req.Days)
	if err != nil {
		return fmt.Errorf("failed to encode approval days: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE tour_bookings SET approval_status = ?, updated_at = ? WHERE id = ?`,
		models.ApprovalPending, now, req.BookingID)
	if err != nil {
		return fmt.Errorf("failed to mark booking pending: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("booking %s: %w", req.BookingID, ErrNotFound)
	}

	query := `INSERT INTO approval_requests (` + approvalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, NULL)`
	_, err = tx.ExecContext(ctx, query, req.ID, req.BookingID, req.Summary, string(days), req.BaseVersion,
		models.ApprovalPending, req.SubmittedBy, now)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit approval request: %w", err)
	}
	req.Status = models.ApprovalPending
	req.SubmittedAt = now
	return nil
}

func (db *DB) GetApprovalRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return getApprovalRequest(ctx, db, id)
}

func getApprovalRequest(ctx context.Context, q queryer, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = ?`
	req, err := scanApproval(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

// ListApprovalRequests returns every request of a booking, newest first.
func (db *DB) ListApprovalRequests(ctx context.Context, bookingID string) ([]models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE booking_id = ? ORDER BY submitted_at DESC`
	return db.listApprovals(ctx, query, bookingID)
}

// ListPendingApprovals returns the review queue, oldest first.
func (db *DB) ListPendingApprovals(ctx context.Context, limit int) ([]models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE status = ? ORDER BY submitted_at ASC LIMIT ?`
	return db.listApprovals(ctx, query, models.ApprovalPending, limit)
}

func (db *DB) listApprovals(ctx context.Context, query string, args ...interface{}) ([]models.ApprovalRequest, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var out []models.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var days string
	var reviewedBy, comment sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&req.ID, &req.BookingID, &req.Summary, &days, &req.BaseVersion, &req.Status,
		&req.SubmittedBy, &reviewedBy, &comment, &req.SubmittedAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(days), &req.Days); err != nil {
		return nil, fmt.Errorf("failed to decode approval days: %w", err)
	}
	if reviewedBy.Valid {
		req.ReviewedBy = &reviewedBy.String
	}
	if comment.Valid {
		req.ReviewComment = &comment.String
	}
	if decidedAt.Valid {
		req.DecidedAt = &decidedAt.Time
	}
	return &req, nil
}

// DecideApproval resolves a pending request. Approving applies the submitted
// days to the booking, which fails with ErrConcurrentModification when the
// itinerary was saved again after the submission.
func (db *DB) DecideApproval(ctx context.Context, id string, decision models.Decision, reviewer, comment string) (*models.ApprovalRequest, error) {
	status, err := decision.Status()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := getApprovalRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ApprovalPending {
		return nil, fmt.Errorf("request %s is %s: %w", id, req.Status, ErrAlreadyDecided)
	}

	if status == models.ApprovalApproved {
		if _, err := applyDays(ctx, tx, req.BookingID, req.BaseVersion, req.Days); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE approval_requests SET status = ?, reviewed_by = ?, review_comment = ?, decided_at = ? WHERE id = ?`,
		status, reviewer, comment, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval request: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE tour_bookings SET approval_status = ?, updated_at = ? WHERE id = ?`,
		status, now, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit decision: %w", err)
	}

	req.Status = status
	req.ReviewedBy = &reviewer
	req.ReviewComment = &comment
	req.DecidedAt = &now
	return req, nil
}
