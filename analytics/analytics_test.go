package analytics

import (
	"context"
	"testing"

	"incentivekit/core"
	"incentivekit/engine"
)

func TestAggregatorCounters(t *testing.T) {
	a := NewAggregator()
	ctx := context.Background()

	a.OnEvent(ctx, core.NewRewardGranted(1, 10, core.Reward{Points: 90, XP: 35}))
	a.OnEvent(ctx, core.NewRewardGranted(2, 11, core.Reward{Points: 50, XP: 20}))
	a.OnEvent(ctx, core.NewLevelUp(1, "老司机", 10))
	a.OnEvent(ctx, core.NewBadgeEarned(1, "首单"))
	a.OnEvent(ctx, core.NewBadgeEarned(2, "首单"))

	s := a.Snapshot()
	if s.RewardsGranted != 2 || s.PointsIssued != 150 || s.XPIssued != 55 {
		t.Fatalf("reward totals: %+v", s)
	}
	if s.LevelUps != 1 || s.BadgesEarned != 2 {
		t.Fatalf("level/badge totals: %+v", s)
	}
	if s.BadgeCounts["首单"] != 2 {
		t.Fatalf("badge counts: %+v", s.BadgeCounts)
	}
	if s.ActiveUsers != 2 {
		t.Fatalf("active users: %d", s.ActiveUsers)
	}
}

func TestAggregatorSnapshotIsACopy(t *testing.T) {
	a := NewAggregator()
	a.OnEvent(context.Background(), core.NewBadgeEarned(1, "首单"))
	s := a.Snapshot()
	s.BadgeCounts["伪造"] = 99
	if a.Snapshot().BadgeCounts["伪造"] != 0 {
		t.Fatal("snapshot must not alias internal state")
	}
}

func TestAggregatorAttach(t *testing.T) {
	a := NewAggregator()
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	detach := a.Attach(bus)

	bus.Publish(context.Background(), core.NewRewardGranted(1, 10, core.Reward{Points: 50, XP: 20}))
	detach()
	bus.Publish(context.Background(), core.NewRewardGranted(1, 11, core.Reward{Points: 50, XP: 20}))

	if s := a.Snapshot(); s.RewardsGranted != 1 {
		t.Fatalf("detach should stop counting: %+v", s)
	}
}
