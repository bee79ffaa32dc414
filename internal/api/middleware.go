package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"druktour/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// requestInfo is filled in by the router once a route matched, so the
// outer middleware can label logs and metrics with the route pattern.
type requestInfo struct {
	route string
}

type requestInfoKey struct{}

func routeInfo(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := base.With().Str("request_id", requestID).Logger()
		info := &requestInfo{route: "unmatched"}
		ctx := context.WithValue(reqLogger.WithContext(r.Context()), requestInfoKey{}, info)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				reqLogger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("http handler panic")
				if !recorder.wrote {
					writeError(recorder, http.StatusInternalServerError, errInternal.Error())
				}
			}

			metrics.IncHTTP(info.route, strconv.Itoa(recorder.status))
			event := reqLogger.Info()
			if recorder.status >= http.StatusInternalServerError {
				event = reqLogger.Error()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", info.route).
				Int("status", recorder.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(recorder, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wrote {
		return
	}
	r.status = status
	r.wrote = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}
