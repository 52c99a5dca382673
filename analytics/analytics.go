// Package analytics aggregates incentive KPIs from the event stream.
package analytics

import (
	"context"
	"sync"
	"time"

	"incentivekit/core"
	"incentivekit/engine"
)

// Snapshot is a point-in-time view of the aggregated counters.
type Snapshot struct {
	RewardsGranted int64            `json:"rewards_granted"`
	PointsIssued   int64            `json:"points_issued"`
	XPIssued       int64            `json:"xp_issued"`
	LevelUps       int64            `json:"level_ups"`
	BadgesEarned   int64            `json:"badges_earned"`
	BadgeCounts    map[string]int64 `json:"badge_counts"`
	ActiveUsers    int              `json:"active_users"`
	Since          time.Time        `json:"since"`
}

// Aggregator keeps running incentive totals. Counters reset only on restart;
// persist snapshots externally if longer retention is needed.
type Aggregator struct {
	mu          sync.Mutex
	rewards     int64
	points      int64
	xp          int64
	levelUps    int64
	badges      int64
	badgeCounts map[string]int64
	users       map[core.UserID]struct{}
	since       time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		badgeCounts: map[string]int64{},
		users:       map[core.UserID]struct{}{},
		since:       time.Now().UTC(),
	}
}

// OnEvent folds one incentive event into the counters.
func (a *Aggregator) OnEvent(_ context.Context, e core.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[e.UserID] = struct{}{}
	switch e.Type {
	case core.EventRewardGranted:
		a.rewards++
		a.points += e.Points
		a.xp += e.XP
	case core.EventLevelUp:
		a.levelUps++
		a.points += e.Points
	case core.EventBadgeEarned:
		a.badges++
		a.badgeCounts[e.Badge]++
	}
}

// Snapshot copies the current totals.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[string]int64, len(a.badgeCounts))
	for k, v := range a.badgeCounts {
		counts[k] = v
	}
	return Snapshot{
		RewardsGranted: a.rewards,
		PointsIssued:   a.points,
		XPIssued:       a.xp,
		LevelUps:       a.levelUps,
		BadgesEarned:   a.badges,
		BadgeCounts:    counts,
		ActiveUsers:    len(a.users),
		Since:          a.since,
	}
}

// Attach subscribes the aggregator to every incentive event type on the bus
// and returns a detach func.
func (a *Aggregator) Attach(bus *engine.EventBus) func() {
	unsubs := []func(){
		bus.Subscribe(core.EventRewardGranted, a.OnEvent),
		bus.Subscribe(core.EventLevelUp, a.OnEvent),
		bus.Subscribe(core.EventBadgeEarned, a.OnEvent),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
