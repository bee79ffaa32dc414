package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"druktour/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadItinerary   = "read:itinerary"
	permEditItinerary   = "edit:itinerary"
	permReviewItinerary = "review:itinerary"
	permWriteBookings   = "write:bookings"
	permReadPricing     = "read:pricing"
)

var (
	errMissingKeys      = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// apiKeys resolves API clients from their key pair and checks permissions.
// It carries no transport specifics; HTTP and gRPC adapt it.
type apiKeys struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
}

func newAPIKeys(cfg *config.APIConfig) *apiKeys {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &apiKeys{cfg: cfg, clients: m}
}

func (a *apiKeys) keyHeader() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *apiKeys) extraHeader() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra))
	if h == "" {
		return apiExtraHeaderDefault
	}
	return h
}

func (a *apiKeys) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKeys
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// permitted treats an empty permission list as allow-all.
func permitted(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

type clientCtxKey struct{}

func withClient(ctx context.Context, client config.APIClientKey) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, client)
}

func clientFromContext(ctx context.Context) (config.APIClientKey, bool) {
	c, ok := ctx.Value(clientCtxKey{}).(config.APIClientKey)
	return c, ok
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
// Permissions are checked per route once the router has matched.
type HTTPAuth struct {
	cfg     *config.APIConfig
	keys    *apiKeys
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig, limiter *rateLimiter) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newAPIKeys(cfg), limiter: limiter}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || isProbePath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.keys.keyHeader())),
				strings.TrimSpace(r.Header.Get(a.keys.extraHeader())),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			r = r.WithContext(withClient(r.Context(), client))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authorize reports whether the authenticated client holds the route's
// permission. Without auth every request is allowed.
func (a *HTTPAuth) authorize(r *http.Request, required string) bool {
	if !a.cfg.Enabled || !a.cfg.Auth.Enabled {
		return true
	}
	client, ok := clientFromContext(r.Context())
	if !ok {
		return false
	}
	return permitted(client, required)
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.keyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func isProbePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}
