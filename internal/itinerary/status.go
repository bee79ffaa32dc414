package itinerary

import "druktour/internal/models"

type Tone string

const (
	ToneWarning Tone = "warning"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
)

// StatusBadge is how an approval status is shown next to the itinerary.
type StatusBadge struct {
	Status  models.ApprovalStatus `json:"status"`
	Label   string                `json:"label,omitempty"`
	Tone    Tone                  `json:"tone,omitempty"`
	Visible bool                  `json:"visible"`
}

var badges = map[models.ApprovalStatus]StatusBadge{
	models.ApprovalPending:  {Status: models.ApprovalPending, Label: "Pending Approval", Tone: ToneWarning, Visible: true},
	models.ApprovalApproved: {Status: models.ApprovalApproved, Label: "Approved", Tone: ToneSuccess, Visible: true},
	models.ApprovalRejected: {Status: models.ApprovalRejected, Label: "Changes Rejected", Tone: ToneDanger, Visible: true},
}

// Badge maps a status to its badge. "none" and unknown values render nothing.
func Badge(status models.ApprovalStatus) StatusBadge {
	if b, ok := badges[status]; ok {
		return b
	}
	return StatusBadge{Status: status}
}
