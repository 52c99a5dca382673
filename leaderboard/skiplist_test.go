package leaderboard

import (
	"context"
	"testing"

	"incentivekit/core"
	"incentivekit/engine"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(1, 10)
	s.Update(2, 20)
	s.Update(3, 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != 2 || top[1].User != 3 || top[2].User != 1 {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(1, 25)
	top = s.TopN(1)
	if top[0].User != 1 {
		t.Fatalf("top should be user 1, got %#v", top)
	}
}

func TestSkipListAddAndRank(t *testing.T) {
	s := NewSkipList()
	s.Add(1, 50)
	s.Add(2, 30)
	s.Add(1, 40)

	e, ok := s.Get(1)
	if !ok || e.Points != 90 {
		t.Fatalf("deltas must accumulate: %#v %v", e, ok)
	}
	if rank, ok := s.Rank(1); !ok || rank != 1 {
		t.Fatalf("rank of user 1: %d %v", rank, ok)
	}
	if rank, ok := s.Rank(2); !ok || rank != 2 {
		t.Fatalf("rank of user 2: %d %v", rank, ok)
	}
	if _, ok := s.Rank(99); ok {
		t.Fatal("unknown user must have no rank")
	}

	s.Remove(1)
	if rank, ok := s.Rank(2); !ok || rank != 1 {
		t.Fatalf("rank after removal: %d %v", rank, ok)
	}
}

func TestSkipListTieBreaksByUser(t *testing.T) {
	s := NewSkipList()
	s.Update(9, 100)
	s.Update(3, 100)
	top := s.TopN(2)
	if top[0].User != 3 || top[1].User != 9 {
		t.Fatalf("ties must order by user id: %#v", top)
	}
}

func TestAttachFeedsBoard(t *testing.T) {
	s := NewSkipList()
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()
	detach := Attach(s, bus)

	ctx := context.Background()
	bus.Publish(ctx, core.NewRewardGranted(7, 10, core.Reward{Points: 90, XP: 35}))
	bus.Publish(ctx, core.NewLevelUp(7, "老司机", 10))
	bus.Publish(ctx, core.NewBadgeEarned(7, "首单")) // no points, no effect

	e, ok := s.Get(7)
	if !ok || e.Points != 100 {
		t.Fatalf("board should hold 100 points: %#v %v", e, ok)
	}

	detach()
	bus.Publish(ctx, core.NewRewardGranted(7, 11, core.Reward{Points: 5}))
	if e, _ := s.Get(7); e.Points != 100 {
		t.Fatalf("detached board must not move: %#v", e)
	}
}
