// Package httpapi exposes the incentive engine over REST plus a WebSocket
// event stream.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "incentivekit/adapters/websocket"
	"incentivekit/analytics"
	"incentivekit/core"
	"incentivekit/engine"
	"incentivekit/leaderboard"
	"incentivekit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// Deps carries the engine components the API serves.
type Deps struct {
	Processor *engine.Processor
	Collector *engine.Collector
	Admin     *engine.Admin
	Users     engine.UserStore
	Catalog   engine.CatalogStore
	Board     leaderboard.Board
	Metrics   *analytics.Aggregator
	Hub       *realtime.Hub
}

// NewMux builds an http.Handler exposing the incentive REST API.
// Routes:
//   - POST {prefix}/reviews/{id}/process?user_id=&order_id=
//   - POST {prefix}/orders/{id}/complete?user_id=
//   - GET  {prefix}/users/{id}
//   - GET  {prefix}/users/{id}/stats
//   - GET  {prefix}/leaderboard?n=10
//   - GET  {prefix}/metrics/summary
//   - CRUD {prefix}/catalog/levels, {prefix}/catalog/badges, {prefix}/catalog/triggers
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(deps Deps, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, deps.Users)
	})

	if deps.Hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(deps.Hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/reviews/"), func(w http.ResponseWriter, r *http.Request) {
		handleReviews(w, r, deps, opts.PathPrefix)
	})
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/orders/"), func(w http.ResponseWriter, r *http.Request) {
		handleOrders(w, r, deps, opts.PathPrefix)
	})
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), func(w http.ResponseWriter, r *http.Request) {
		handleUsers(w, r, deps, opts.PathPrefix)
	})
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/catalog/"), func(w http.ResponseWriter, r *http.Request) {
		handleCatalog(w, r, deps, opts.PathPrefix)
	})

	if deps.Board != nil {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
				return
			}
			n := 10
			if raw := r.URL.Query().Get("n"); raw != "" {
				v, err := strconv.Atoi(raw)
				if err != nil || v <= 0 || v > 1000 {
					writeError(w, http.StatusBadRequest, "invalid_n", "n must be 1..1000", nil)
					return
				}
				n = v
			}
			writeJSON(w, deps.Board.TopN(n))
		})
	}

	if deps.Metrics != nil {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/metrics/summary"), func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
				return
			}
			writeJSON(w, deps.Metrics.Snapshot())
		})
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// POST /reviews/{id}/process
func handleReviews(w http.ResponseWriter, r *http.Request, deps Deps, prefix string) {
	parts := routeParts(r.URL.Path, prefix)
	if r.Method != http.MethodPost || len(parts) != 3 || parts[2] != "process" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	reviewID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || reviewID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_review", "review id must be a positive integer", nil)
		return
	}
	user, ok := queryUserID(w, r)
	if !ok {
		return
	}
	orderID, _ := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)

	out := deps.Processor.ProcessConfirmedReview(r.Context(), user, reviewID, orderID)
	status := http.StatusOK
	if !out.Success {
		status = http.StatusConflict
		if out.Error != engine.ErrDuplicateReview.Error() {
			status = http.StatusUnprocessableEntity
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

// POST /orders/{id}/complete
func handleOrders(w http.ResponseWriter, r *http.Request, deps Deps, prefix string) {
	parts := routeParts(r.URL.Path, prefix)
	if r.Method != http.MethodPost || len(parts) != 3 || parts[2] != "complete" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	orderID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || orderID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_order", "order id must be a positive integer", nil)
		return
	}
	user, ok := queryUserID(w, r)
	if !ok {
		return
	}
	out := deps.Processor.ProcessOrderCompletion(r.Context(), user, orderID)
	w.Header().Set("Content-Type", "application/json")
	if !out.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_ = json.NewEncoder(w).Encode(out)
}

// GET /users/{id} and GET /users/{id}/stats
func handleUsers(w http.ResponseWriter, r *http.Request, deps Deps, prefix string) {
	parts := routeParts(r.URL.Path, prefix)
	if r.Method != http.MethodGet || len(parts) < 2 {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_user", "user id must be a positive integer", nil)
		return
	}
	user := core.UserID(id)

	switch {
	case len(parts) == 2:
		profile, err := deps.Users.GetUserProfile(r.Context(), user)
		if err == core.ErrUserNotFound {
			writeError(w, http.StatusNotFound, "user_not_found", "no such user", nil)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		resp := map[string]any{"profile": profile}
		if deps.Board != nil {
			if rank, ok := deps.Board.Rank(user); ok {
				resp["rank"] = rank
			}
		}
		writeJSON(w, resp)
	case len(parts) == 3 && parts[2] == "stats":
		stats, degs := deps.Collector.Collect(r.Context(), user)
		writeJSON(w, map[string]any{"stats": stats, "degradations": degs})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

// Catalog admin routes:
//
//	GET/POST   /catalog/levels        PUT/DELETE /catalog/levels/{id}
//	GET/POST   /catalog/badges        PUT/DELETE /catalog/badges/{id}
//	POST       /catalog/badges/{id}/triggers
//	DELETE     /catalog/triggers/{id}
func handleCatalog(w http.ResponseWriter, r *http.Request, deps Deps, prefix string) {
	if deps.Admin == nil {
		writeError(w, http.StatusNotFound, "not_found", "catalog admin disabled", nil)
		return
	}
	parts := routeParts(r.URL.Path, prefix)
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	switch parts[1] {
	case "levels":
		catalogLevels(w, r, deps, parts)
	case "badges":
		catalogBadges(w, r, deps, parts)
	case "triggers":
		if r.Method == http.MethodDelete && len(parts) == 3 {
			id, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_id", "trigger id must be an integer", nil)
				return
			}
			if err := deps.Admin.DeleteTrigger(r.Context(), id); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
				return
			}
			writeJSON(w, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

func catalogLevels(w http.ResponseWriter, r *http.Request, deps Deps, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		levels, err := deps.Catalog.GetAllLevels(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, levels)
	case r.Method == http.MethodPost && len(parts) == 2:
		var level core.Level
		if !decodeBody(w, r, &level) {
			return
		}
		id, err := deps.Admin.CreateLevel(r.Context(), level)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	case r.Method == http.MethodPut && len(parts) == 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "level id must be an integer", nil)
			return
		}
		var level core.Level
		if !decodeBody(w, r, &level) {
			return
		}
		level.ID = id
		if err := deps.Admin.UpdateLevel(r.Context(), level); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	case r.Method == http.MethodDelete && len(parts) == 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "level id must be an integer", nil)
			return
		}
		if err := deps.Admin.DeleteLevel(r.Context(), id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

func catalogBadges(w http.ResponseWriter, r *http.Request, deps Deps, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		badges, err := deps.Catalog.GetAllBadges(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, badges)
	case r.Method == http.MethodPost && len(parts) == 2:
		var badge core.BadgeSpec
		if !decodeBody(w, r, &badge) {
			return
		}
		id, err := deps.Admin.CreateBadge(r.Context(), badge)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "triggers":
		badgeID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "badge id must be an integer", nil)
			return
		}
		var body struct {
			Key   string  `json:"trigger_key"`
			Value float64 `json:"trigger_value"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		id, err := deps.Admin.AddTrigger(r.Context(), badgeID, body.Key, body.Value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	case r.Method == http.MethodPut && len(parts) == 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "badge id must be an integer", nil)
			return
		}
		var badge core.BadgeSpec
		if !decodeBody(w, r, &badge) {
			return
		}
		badge.ID = id
		if err := deps.Admin.UpdateBadge(r.Context(), badge); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	case r.Method == http.MethodDelete && len(parts) == 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "badge id must be an integer", nil)
			return
		}
		if err := deps.Admin.DeleteBadge(r.Context(), id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

// Helpers

// healthCheck verifies storage with a lightweight probe read.
func healthCheck(w http.ResponseWriter, r *http.Request, users engine.UserStore) {
	_, err := users.GetUserProfile(r.Context(), core.UserID(1))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err != nil && err != core.ErrUserNotFound {
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func queryUserID(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_user", "user_id must be a positive integer", nil)
		return 0, false
	}
	return core.UserID(id), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body", nil)
		return false
	}
	return true
}

func routeParts(path, prefix string) []string {
	path = strings.TrimPrefix(path, prefix)
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return split(path, '/')
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
