package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mem "incentivekit/adapters/memory"
	"incentivekit/core"
	"incentivekit/engine"
	"incentivekit/leaderboard"
)

const testPointsConfig = `{
	"u2m_review": {"base": {"points": 50, "xp": 20},
		"high_score_bonus": {"min_avg": 8.0, "points": 25, "xp": 10},
		"text_bonus": {"min_len": 10, "points": 15, "xp": 5}},
	"order_complete": {"points": 5, "xp": 2},
	"first_order_bonus": {"points": 30, "xp": 15}
}`

func intp(n int) *int { return &n }

func newTestDeps(t *testing.T) (Deps, *mem.Store) {
	t.Helper()
	store := mem.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := engine.NewEventBus(engine.DispatchSync)

	calc := engine.NewCalculator(store, store, logger)
	collector := engine.NewCollector(store, store, store, store, logger)
	progression := engine.NewProgression(store, store, bus, logger)
	badges := engine.NewBadgeEvaluator(store, store, collector, bus, logger)
	processor := engine.NewProcessor(calc, store, progression, badges, collector, logger,
		engine.WithLedger(store), engine.WithBus(bus))

	return Deps{
		Processor: processor,
		Collector: collector,
		Admin:     engine.NewAdmin(store, store, logger),
		Users:     store,
		Catalog:   store,
		Board:     leaderboard.NewSkipList(),
	}, store
}

func seedReviewScenario(t *testing.T, store *mem.Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.SetConfig(ctx, engine.ConfigKeyPoints, []byte(testPointsConfig)); err != nil {
		t.Fatal(err)
	}
	store.PutUser(core.UserProfile{UserID: 1, Username: "alice", LevelName: "novice"})
	store.PutReview(core.Review{
		ID: 11, OrderID: 5, CustomerUserID: 1,
		RatingAppearance: intp(9), RatingFigure: intp(9), RatingService: intp(10),
		RatingAttitude: intp(10), RatingEnvironment: intp(9),
		TextByUser:       "服务非常到位，环境也很不错",
		ConfirmedByAdmin: true,
	})
	store.PutOrder(core.Order{ID: 5, UserID: 1, Status: core.StatusCompleted})
}

func TestProcessReviewRoute(t *testing.T) {
	deps, store := newTestDeps(t)
	seedReviewScenario(t, store)
	handler := NewMux(deps, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/reviews/11/process?user_id=1&order_id=5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out core.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.PointsEarned != 90 || out.XPEarned != 35 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestProcessReviewDuplicate(t *testing.T) {
	deps, store := newTestDeps(t)
	seedReviewScenario(t, store)
	handler := NewMux(deps, Options{})

	req := httptest.NewRequest(http.MethodPost, "/reviews/11/process?user_id=1&order_id=5", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/reviews/11/process?user_id=1&order_id=5", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec2.Code)
	}
}

func TestProcessReviewValidation(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{PathPrefix: "/api"})

	for _, path := range []string{
		"/api/reviews/abc/process?user_id=1",
		"/api/reviews/11/process?user_id=bad",
		"/api/reviews/11/process",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestOrderCompleteRoute(t *testing.T) {
	deps, store := newTestDeps(t)
	seedReviewScenario(t, store)
	handler := NewMux(deps, Options{})

	req := httptest.NewRequest(http.MethodPost, "/orders/5/complete?user_id=1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out core.Outcome
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out.PointsEarned != 35 || out.XPEarned != 17 {
		t.Fatalf("expected first-order bonus 35/17, got %+v", out)
	}
}

func TestGetUser(t *testing.T) {
	deps, store := newTestDeps(t)
	store.PutUser(core.UserProfile{UserID: 7, Username: "bob", Points: 120, LevelName: "novice"})
	deps.Board.Update(7, 120)
	handler := NewMux(deps, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/7", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Profile core.UserProfile `json:"profile"`
		Rank    int              `json:"rank"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Profile.Username != "bob" || resp.Rank != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetUserNotFound(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{})

	req := httptest.NewRequest(http.MethodGet, "/users/99", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetUserStats(t *testing.T) {
	deps, store := newTestDeps(t)
	store.PutUser(core.UserProfile{UserID: 3, Username: "carol", Points: 40, XP: 15, LevelName: "novice"})
	handler := NewMux(deps, Options{})

	req := httptest.NewRequest(http.MethodGet, "/users/3/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Stats core.Stats `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stats[core.StatTotalPoints] != 40 {
		t.Fatalf("expected total_points 40, got %v", resp.Stats[core.StatTotalPoints])
	}
}

func TestCatalogLevelCRUD(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{PathPrefix: "/api"})

	body := strings.NewReader(`{"level_name":"老司机","xp_required":100,"points_on_level_up":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/levels", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/catalog/levels", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	var levels []core.Level
	if err := json.Unmarshal(rec2.Body.Bytes(), &levels); err != nil {
		t.Fatal(err)
	}
	if len(levels) != 1 || levels[0].Name != "老司机" {
		t.Fatalf("unexpected levels: %+v", levels)
	}

	dup := strings.NewReader(`{"level_name":"老司机","xp_required":200,"points_on_level_up":5}`)
	req3 := httptest.NewRequest(http.MethodPost, "/api/catalog/levels", dup)
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusBadRequest {
		t.Fatalf("duplicate name: expected 400, got %d", rec3.Code)
	}
}

func TestCatalogBadgeTriggers(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catalog/badges",
		strings.NewReader(`{"badge_name":"三连胜","description":"三单达成"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("create badge: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/catalog/badges/1/triggers",
		strings.NewReader(`{"trigger_key":"order_count_min","trigger_value":3}`)))
	if rec2.Code != http.StatusOK {
		t.Fatalf("add trigger: expected 200, got %d: %s", rec2.Code, rec2.Body.String())
	}

	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, httptest.NewRequest(http.MethodPost, "/catalog/badges/1/triggers",
		strings.NewReader(`{"trigger_key":"order_count_min","trigger_value":-1}`)))
	if rec3.Code != http.StatusBadRequest {
		t.Fatalf("negative trigger value: expected 400, got %d", rec3.Code)
	}
}

func TestLeaderboardRoute(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Board.Update(1, 300)
	deps.Board.Update(2, 500)
	handler := NewMux(deps, Options{})

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?n=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []leaderboard.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].User != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestHealthz(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestRateLimit(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewMux(deps, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}
