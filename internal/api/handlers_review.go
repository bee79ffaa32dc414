package api

import (
	"net/http"
	"strconv"
	"strings"

	"druktour/internal/models"

	"github.com/julienschmidt/httprouter"
)

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Comment  string `json:"comment" validate:"max=1000"`
}

func (s *HTTPServer) handleListApprovals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	if st := strings.TrimSpace(q.Get("status")); st != "" && st != string(models.ApprovalPending) {
		writeError(w, http.StatusBadRequest, "only status=pending is supported")
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	reqs, err := s.svc.Reviews.ListPending(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": reqs})
}

func (s *HTTPServer) handleGetApproval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, err := s.svc.Reviews.GetRequest(r.Context(), ps.ByName("requestID"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleDecide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reviewer, err := actorFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var body decisionRequest
	if err := s.decodeBody(r, &body, false); err != nil {
		respondError(w, err)
		return
	}

	req, err := s.svc.Reviews.Decide(r.Context(), ps.ByName("requestID"), models.Decision(body.Decision), reviewer, strings.TrimSpace(body.Comment))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
