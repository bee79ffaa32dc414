package itinerary

import (
	"testing"

	"druktour/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBadge(t *testing.T) {
	tests := []struct {
		status  models.ApprovalStatus
		label   string
		tone    Tone
		visible bool
	}{
		{models.ApprovalNone, "", "", false},
		{models.ApprovalPending, "Pending Approval", ToneWarning, true},
		{models.ApprovalApproved, "Approved", ToneSuccess, true},
		{models.ApprovalRejected, "Changes Rejected", ToneDanger, true},
		{models.ApprovalStatus("archived"), "", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			b := Badge(tt.status)
			assert.Equal(t, tt.status, b.Status)
			assert.Equal(t, tt.label, b.Label)
			assert.Equal(t, tt.tone, b.Tone)
			assert.Equal(t, tt.visible, b.Visible)
		})
	}
}
