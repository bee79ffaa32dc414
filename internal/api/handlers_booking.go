package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"druktour/internal/export"
	"druktour/internal/models"
	"druktour/internal/pricing"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

type dayRequest struct {
	ID            string   `json:"id" validate:"required,max=64"`
	DayNumber     int      `json:"day_number" validate:"gte=1"`
	Title         string   `json:"title" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=4000"`
	Activities    []string `json:"activities" validate:"dive,max=500"`
	Accommodation string   `json:"accommodation" validate:"max=200"`
	Meals         []string `json:"meals" validate:"dive,max=100"`
	Notes         string   `json:"notes" validate:"max=4000"`
}

type importBookingRequest struct {
	TourName     string       `json:"tour_name" validate:"required,max=200"`
	LeadTraveler string       `json:"lead_traveler" validate:"required,max=200"`
	StartDate    string       `json:"start_date" validate:"required,datetime=2006-01-02"`
	Days         []dayRequest `json:"days" validate:"required,min=1,dive"`
}

// handleImportBooking stores a booking pushed by the reservation system.
func (s *HTTPServer) handleImportBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body importBookingRequest
	if err := s.decodeBody(r, &body, false); err != nil {
		respondError(w, err)
		return
	}
	start, _ := time.Parse("2006-01-02", body.StartDate)

	booking := &models.TourBooking{
		ID:           ps.ByName("bookingID"),
		TourName:     strings.TrimSpace(body.TourName),
		LeadTraveler: strings.TrimSpace(body.LeadTraveler),
		StartDate:    start,
	}
	days := make([]models.ItineraryDay, 0, len(body.Days))
	for _, d := range body.Days {
		days = append(days, models.ItineraryDay{
			ID:            d.ID,
			DayNumber:     d.DayNumber,
			Title:         d.Title,
			Description:   d.Description,
			Activities:    d.Activities,
			Accommodation: d.Accommodation,
			Meals:         d.Meals,
			Notes:         d.Notes,
		})
	}

	if err := s.svc.Bookings.ImportBooking(r.Context(), booking, days); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := s.svc.Bookings.GetItinerary(r.Context(), ps.ByName("bookingID"), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleExportItinerary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	view, err := s.svc.Bookings.GetItinerary(r.Context(), ps.ByName("bookingID"), actor)
	if err != nil {
		respondError(w, err)
		return
	}
	if !view.CanExport {
		writeError(w, http.StatusForbidden, errPermissionDenied.Error())
		return
	}

	it := export.Itinerary{Booking: view.Booking, Version: view.Version, Badge: view.Badge, Days: view.Days}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(it)))
	if err := export.Write(w, it); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("booking_id", view.Booking.ID).Msg("itinerary export failed")
	}
}

func (s *HTTPServer) handleListChanges(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	changes, err := s.svc.Bookings.ListChanges(r.Context(), ps.ByName("bookingID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (s *HTTPServer) handleListBookingApprovals(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reqs, err := s.svc.Reviews.ListForBooking(r.Context(), ps.ByName("bookingID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": reqs})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.svc.Pricing == nil {
		writeError(w, http.StatusNotFound, "pricing is not configured")
		return
	}
	q := r.URL.Query()
	method := strings.TrimSpace(q.Get("method"))
	if method == "" || strings.TrimSpace(q.Get("amount")) == "" {
		writeError(w, http.StatusBadRequest, "amount and method are required")
		return
	}
	amount, err := pricing.ParseAmount(q.Get("amount"))
	if err != nil {
		respondError(w, err)
		return
	}
	quote, err := s.svc.Pricing.Quote(amount, method)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// parseIndex reads an activity index path parameter. Range checks are left
// to the session.
func parseIndex(raw string) (int, error) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: activity index must be an integer", errBadRequest)
	}
	return idx, nil
}
