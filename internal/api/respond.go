package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"druktour/internal/database"
	"druktour/internal/itinerary"
	"druktour/internal/models"
	"druktour/internal/pricing"
	"druktour/internal/service"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

const (
	headerEditorID   = "X-Editor-ID"
	headerEditorRole = "X-Editor-Role"
)

var (
	errBadRequest   = errors.New("bad request")
	errMissingActor = errors.New("X-Editor-ID and X-Editor-Role headers are required")
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// statusForError is the one place domain errors become HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errMissingActor):
		return http.StatusUnauthorized
	case errors.Is(err, itinerary.ErrEditNotPermitted),
		errors.Is(err, service.ErrReviewNotPermitted),
		errors.Is(err, errPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, itinerary.ErrUnknownDay):
		return http.StatusNotFound
	case errors.Is(err, itinerary.ErrNotEditing),
		errors.Is(err, itinerary.ErrNoChanges),
		errors.Is(err, itinerary.ErrInvalidTransition),
		errors.Is(err, itinerary.ErrSubmissionInFlight),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, database.ErrAlreadyDecided),
		errors.Is(err, database.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, itinerary.ErrActivityIndex),
		errors.Is(err, itinerary.ErrReadOnlyField),
		errors.Is(err, models.ErrUnknownField),
		errors.Is(err, database.ErrInvalidItinerary),
		errors.Is(err, database.ErrItineraryShape),
		errors.Is(err, pricing.ErrInvalidAmount),
		errors.Is(err, pricing.ErrUnknownMethod):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are not echoed.
func respondError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = errInternal.Error()
	}
	writeError(w, code, msg)
}

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set and leaves dst untouched.
func (s *HTTPServer) decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return s.validateStruct(dst)
		}
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return s.validateStruct(dst)
}

func (s *HTTPServer) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

// actorFromRequest reads who is calling from the editor headers.
func actorFromRequest(r *http.Request) (models.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(headerEditorID))
	rawRole := strings.TrimSpace(r.Header.Get(headerEditorRole))
	if id == "" || rawRole == "" {
		return models.Actor{}, errMissingActor
	}
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return models.Actor{ID: id, Role: role}, nil
}
