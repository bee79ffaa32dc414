package models

import (
	"fmt"
	"time"
)

type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func ParseApprovalStatus(raw string) (ApprovalStatus, error) {
	switch s := ApprovalStatus(raw); s {
	case ApprovalNone, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return s, nil
	case "":
		return ApprovalNone, nil
	default:
		return "", fmt.Errorf("unknown approval status %q", raw)
	}
}

// Decision is a reviewer's verdict on an approval request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status returns the approval status a decision resolves to.
func (d Decision) Status() (ApprovalStatus, error) {
	switch d {
	case DecisionApprove:
		return ApprovalApproved, nil
	case DecisionReject:
		return ApprovalRejected, nil
	default:
		return "", fmt.Errorf("unknown decision %q", d)
	}
}

// ApprovalRequest is a submitted itinerary waiting for (or resolved by) staff review.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	BookingID     string         `json:"booking_id"`
	Summary       string         `json:"summary"`
	Days          []ItineraryDay `json:"days"`
	BaseVersion   int64          `json:"base_version"`
	Status        ApprovalStatus `json:"status"`
	SubmittedBy   string         `json:"submitted_by"`
	ReviewedBy    *string        `json:"reviewed_by,omitempty"`
	ReviewComment *string        `json:"review_comment,omitempty"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
}
