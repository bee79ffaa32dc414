package bot

import (
	"errors"

	"druktour/internal/database"
	"druktour/internal/service"
)

func errorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, database.ErrAlreadyDecided):
		return "⚠️ This request has already been decided."
	case errors.Is(err, database.ErrNotFound):
		return "⚠️ Approval request not found."
	case errors.Is(err, database.ErrConcurrentModification):
		return "⚠️ The itinerary changed since this request was submitted. It cannot be applied."
	case errors.Is(err, service.ErrReviewNotPermitted):
		return "⚠️ You are not allowed to review itineraries."
	}

	return "❌ Something went wrong while recording the decision. Please try again later."
}
