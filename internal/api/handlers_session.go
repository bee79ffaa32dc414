package api

import (
	"errors"
	"net/http"

	"druktour/internal/itinerary"
	"druktour/internal/service"

	"github.com/julienschmidt/httprouter"
)

type updateFieldRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value" validate:"max=4000"`
}

type activityRequest struct {
	Value string `json:"value" validate:"max=500"`
}

type summaryRequest struct {
	Summary string `json:"summary" validate:"max=4000"`
}

// sessionKey identifies the caller's session on the booking in the path.
func sessionKey(r *http.Request, ps httprouter.Params) (itinerary.SessionKey, error) {
	actor, err := actorFromRequest(r)
	if err != nil {
		return itinerary.SessionKey{}, err
	}
	return itinerary.SessionKey{BookingID: ps.ByName("bookingID"), EditorID: actor.ID}, nil
}

// withSession runs op on the caller's session and writes the resulting view.
func (s *HTTPServer) withSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params,
	op func(key itinerary.SessionKey) (*service.SessionView, error)) {
	key, err := sessionKey(r, ps)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := op(key)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := s.svc.Itineraries.StartSession(r.Context(), ps.ByName("bookingID"), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.GetSession(r.Context(), key)
	})
}

func (s *HTTPServer) handleCancelSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.CancelSession(r.Context(), key)
	})
}

func (s *HTTPServer) handleUpdateDayField(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body updateFieldRequest
	if err := s.decodeBody(r, &body, false); err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.UpdateDayField(r.Context(), key, ps.ByName("dayID"), body.Field, body.Value)
	})
}

// handleAddActivity appends an activity. A non-empty value in the body is
// written into the new slot right away.
func (s *HTTPServer) handleAddActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body activityRequest
	if err := s.decodeBody(r, &body, true); err != nil {
		respondError(w, err)
		return
	}
	key, err := sessionKey(r, ps)
	if err != nil {
		respondError(w, err)
		return
	}

	dayID := ps.ByName("dayID")
	view, index, err := s.svc.Itineraries.AddActivity(r.Context(), key, dayID)
	if err != nil {
		respondError(w, err)
		return
	}
	if body.Value != "" {
		if view, err = s.svc.Itineraries.UpdateActivity(r.Context(), key, dayID, index, body.Value); err != nil {
			respondError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"index": index, "session": view})
}

func (s *HTTPServer) handleUpdateActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	index, err := parseIndex(ps.ByName("index"))
	if err != nil {
		respondError(w, err)
		return
	}
	var body activityRequest
	if err := s.decodeBody(r, &body, false); err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.UpdateActivity(r.Context(), key, ps.ByName("dayID"), index, body.Value)
	})
}

func (s *HTTPServer) handleRemoveActivity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	index, err := parseIndex(ps.ByName("index"))
	if err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.RemoveActivity(r.Context(), key, ps.ByName("dayID"), index)
	})
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.Save(r.Context(), key)
	})
}

func (s *HTTPServer) handleOpenApproval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.OpenApproval(r.Context(), key)
	})
}

func (s *HTTPServer) handleSetSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body summaryRequest
	if err := s.decodeBody(r, &body, false); err != nil {
		respondError(w, err)
		return
	}
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.SetSummary(r.Context(), key, body.Summary)
	})
}

func (s *HTTPServer) handleCloseApproval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.withSession(w, r, ps, func(key itinerary.SessionKey) (*service.SessionView, error) {
		return s.svc.Itineraries.CloseApproval(r.Context(), key)
	})
}

// handleSubmit waits for the submission to settle. A failed submission
// answers 502 together with the session, whose dialog is still open.
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key, err := sessionKey(r, ps)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := s.svc.Itineraries.Submit(r.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionFailed) && view != nil {
			writeJSON(w, statusForError(err), map[string]any{"error": err.Error(), "session": view})
			return
		}
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
