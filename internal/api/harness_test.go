package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"druktour/internal/config"
	"druktour/internal/database"
	"druktour/internal/events"
	"druktour/internal/pricing"
	"druktour/internal/repository"
	"druktour/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type actorHeaders struct {
	id   string
	role string
}

var (
	asTourist = actorHeaders{id: "alice", role: "tourist"}
	asManager = actorHeaders{id: "karma", role: "tour_manager"}
	asGuide   = actorHeaders{id: "pema", role: "guide"}
)

type testAPI struct {
	t      *testing.T
	db     *database.DB
	server *HTTPServer
	ts     *httptest.Server
	header http.Header
}

func defaultAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth:    config.APIAuthConfig{HeaderAPIKey: "x-api-key", HeaderExtra: "x-api-extra"},
	}
}

func newTestAPI(t *testing.T, cfg config.APIConfig, checks ...ReadyCheck) *testAPI {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := repository.NewMemoryStateRepository(time.Hour, time.Hour)
	bus := events.NewEventBus()
	calc, err := pricing.NewCalculator(config.PricingConfig{
		Currency:   "USD",
		MethodFees: map[string]float64{"card": 3.5, "cash": 0},
	})
	require.NoError(t, err)

	svc := Services{
		Bookings:    service.NewBookingService(db, &logger),
		Itineraries: service.NewItineraryService(db, sessions, bus, nil, 5*time.Second, &logger),
		Reviews:     service.NewReviewService(db, bus, nil, &logger),
		Pricing:     calc,
		Checks:      checks,
	}
	server := NewHTTPServer(&cfg, svc, nil, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testAPI{t: t, db: db, server: server, ts: ts, header: http.Header{}}
}

func (a *testAPI) do(method, path string, as *actorHeaders, body any) *http.Response {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(a.t, err)
			raw = string(b)
		}
		rdr = bytes.NewBufferString(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, rdr)
	require.NoError(a.t, err)
	for k, v := range a.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set(headerEditorID, as.id)
		req.Header.Set(headerEditorRole, as.role)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[map[string]any](t, resp)["error"].(string)
}

func sampleImport() map[string]any {
	return map[string]any{
		"tour_name":     "Western Bhutan Explorer",
		"lead_traveler": "Sonam Choden",
		"start_date":    "2026-11-03",
		"days": []map[string]any{
			{"id": "d1", "day_number": 1, "title": "Arrival in Paro", "activities": []string{"Airport pickup"}, "meals": []string{"Dinner"}},
			{"id": "d2", "day_number": 2, "title": "Temple Visit", "activities": []string{"Tiger's Nest hike"}, "meals": []string{"Breakfast"}},
			{"id": "d3", "day_number": 3, "title": "Thimphu", "activities": []string{}, "meals": []string{"Breakfast"}},
		},
	}
}

func (a *testAPI) importBooking(id string) {
	a.t.Helper()
	resp := a.do(http.MethodPut, "/api/v1/bookings/"+id, nil, sampleImport())
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
}
