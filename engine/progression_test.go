package engine_test

import (
	"context"
	"log/slog"
	"testing"

	"incentivekit/adapters/memory"
	"incentivekit/core"
	"incentivekit/engine"
)

func seedLadder(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, lv := range []core.Level{
		{Name: "新手", XPRequired: 0},
		{Name: "老司机", XPRequired: 100, PointsOnLevelUp: 10},
		{Name: "大师", XPRequired: 500, PointsOnLevelUp: 30},
	} {
		if _, err := store.InsertLevel(ctx, lv); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckAndUpgradeMultiLevelCatchUp(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	store.PutUser(core.UserProfile{UserID: 1, XP: 520, Points: 0, LevelName: "新手"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Upgraded || res.OldLevel != "新手" || res.NewLevel != "大师" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.BonusPoints != 40 {
		t.Fatalf("catch-up bonus = %d, want 40", res.BonusPoints)
	}

	p, _ := store.GetUserProfile(context.Background(), 1)
	if p.LevelName != "大师" || p.Points != 40 {
		t.Fatalf("persisted state wrong: level=%s points=%d", p.LevelName, p.Points)
	}
	if p.XP != 520 {
		t.Fatalf("bonus grant must not touch XP, got %d", p.XP)
	}
}

func TestCheckAndUpgradeNoChange(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	store.PutUser(core.UserProfile{UserID: 1, XP: 50, LevelName: "新手"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Upgraded {
		t.Fatalf("should not upgrade: %+v", res)
	}
	if res.OldLevel != "新手" {
		t.Fatalf("old level must still be populated, got %q", res.OldLevel)
	}
}

func TestCheckAndUpgradeExactThreshold(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	store.PutUser(core.UserProfile{UserID: 1, XP: 100, LevelName: "新手"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 1)
	if err != nil || !res.Upgraded || res.NewLevel != "老司机" {
		t.Fatalf("inclusive threshold should upgrade: %+v err=%v", res, err)
	}
	if res.BonusPoints != 10 {
		t.Fatalf("single-level bonus = %d, want 10", res.BonusPoints)
	}
}

func TestCheckAndUpgradeStaleLevelName(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	// Unknown level name is treated as "before the first rung", so even the
	// baseline rung's bonus would be countable on catch-up.
	store.PutUser(core.UserProfile{UserID: 1, XP: 120, LevelName: "deleted-level"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 1)
	if err != nil || !res.Upgraded || res.NewLevel != "老司机" {
		t.Fatalf("stale name should still resolve: %+v err=%v", res, err)
	}
}

func TestCheckAndUpgradeTopLevelStays(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	store.PutUser(core.UserProfile{UserID: 1, XP: 99999, LevelName: "大师"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 1)
	if err != nil || res.Upgraded {
		t.Fatalf("top level with surplus XP must stay put: %+v err=%v", res, err)
	}
}

func TestCheckAndUpgradeMissingUserFailsSoft(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	prog := engine.NewProgression(store, store, nil, slog.Default())
	res, err := prog.CheckAndUpgrade(context.Background(), 404)
	if err != nil || res.Upgraded {
		t.Fatalf("missing user must fail soft: %+v err=%v", res, err)
	}
}

func TestCheckAndUpgradeInvalidLadderFailsLoud(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	// Two levels sharing a threshold: the ladder must be rejected at use.
	_, _ = store.InsertLevel(ctx, core.Level{Name: "a", XPRequired: 0})
	_, _ = store.InsertLevel(ctx, core.Level{Name: "b", XPRequired: 100})
	_, _ = store.InsertLevel(ctx, core.Level{Name: "c", XPRequired: 100})
	store.PutUser(core.UserProfile{UserID: 1, XP: 100, LevelName: "a"})

	prog := engine.NewProgression(store, store, nil, slog.Default())
	if _, err := prog.CheckAndUpgrade(ctx, 1); err == nil {
		t.Fatal("duplicate thresholds must error loudly")
	}
}

func TestCheckAndUpgradePublishesEvent(t *testing.T) {
	store := memory.New()
	seedLadder(t, store)
	store.PutUser(core.UserProfile{UserID: 7, XP: 150, LevelName: "新手"})

	bus := engine.NewEventBus(engine.DispatchSync)
	var got []core.Event
	bus.Subscribe(core.EventLevelUp, func(_ context.Context, e core.Event) { got = append(got, e) })

	prog := engine.NewProgression(store, store, bus, slog.Default())
	if _, err := prog.CheckAndUpgrade(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Level != "老司机" || got[0].UserID != 7 {
		t.Fatalf("unexpected events: %+v", got)
	}
}
