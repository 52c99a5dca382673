package sdk

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	mem "incentivekit/adapters/memory"
	"incentivekit/api/httpapi"
	"incentivekit/core"
	"incentivekit/engine"
	"incentivekit/leaderboard"
	"incentivekit/realtime"
)

const testPointsConfig = `{
	"u2m_review": {"base": {"points": 50, "xp": 20},
		"high_score_bonus": {"min_avg": 8.0, "points": 25, "xp": 10},
		"text_bonus": {"min_len": 10, "points": 15, "xp": 5}},
	"order_complete": {"points": 5, "xp": 2},
	"first_order_bonus": {"points": 30, "xp": 15}
}`

func intp(n int) *int { return &n }

func newTestServer(t *testing.T) (*httptest.Server, *mem.Store) {
	t.Helper()
	store := mem.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := engine.NewEventBus(engine.DispatchSync)
	hub := realtime.NewHub()
	t.Cleanup(hub.Attach(bus))

	collector := engine.NewCollector(store, store, store, store, logger)
	processor := engine.NewProcessor(
		engine.NewCalculator(store, store, logger),
		store,
		engine.NewProgression(store, store, bus, logger),
		engine.NewBadgeEvaluator(store, store, collector, bus, logger),
		collector,
		logger,
		engine.WithLedger(store), engine.WithBus(bus),
	)

	board := leaderboard.NewSkipList()
	t.Cleanup(leaderboard.Attach(board, bus))

	handler := httpapi.NewMux(httpapi.Deps{
		Processor: processor,
		Collector: collector,
		Admin:     engine.NewAdmin(store, store, logger),
		Users:     store,
		Catalog:   store,
		Board:     board,
		Hub:       hub,
	}, httpapi.Options{PathPrefix: "/api"})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func seedReview(t *testing.T, store *mem.Store) {
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

func TestClient_ProcessReviewAndGetUser(t *testing.T) {
	srv, store := newTestServer(t)
	seedReview(t, store)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	out, err := client.ProcessReview(ctx, 1, 11, 5)
	if err != nil {
		t.Fatalf("process review: %v", err)
	}
	if !out.Success || out.PointsEarned != 90 || out.XPEarned != 35 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	dup, err := client.ProcessReview(ctx, 1, 11, 5)
	if err != nil {
		t.Fatalf("duplicate process review: %v", err)
	}
	if dup.Success || dup.Error == "" {
		t.Fatalf("expected rejected duplicate, got %+v", dup)
	}

	state, err := client.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if state.Profile.Points != 90 || state.Rank != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}

	stats, err := client.GetUserStats(ctx, 1)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Stats[core.StatTotalPoints] != 90 {
		t.Fatalf("unexpected stats: %+v", stats.Stats)
	}

	top, err := client.Leaderboard(ctx, 5)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 1 || top[0].UserID != 1 {
		t.Fatalf("unexpected leaderboard: %+v", top)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_InvalidUser(t *testing.T) {
	srv, _ := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ProcessReview(context.Background(), 0, 11, 5); err != ErrInvalidUserID {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := client.GetUser(context.Background(), 404); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv, store := newTestServer(t)
	seedReview(t, store)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, 1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := client.ProcessReview(ctx, 1, 11, 5); err != nil {
		t.Fatalf("process review: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventRewardGranted || evt.UserID != 1 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
