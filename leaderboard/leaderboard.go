// Package leaderboard maintains an in-memory points ranking fed by reward
// events.
package leaderboard

import (
	"context"

	"incentivekit/core"
	"incentivekit/engine"
)

// Entry is one ranked user.
type Entry struct {
	User   core.UserID `json:"user_id"`
	Points int64       `json:"points"`
}

// Board abstracts leaderboard operations.
type Board interface {
	Update(user core.UserID, points int64)
	Add(user core.UserID, delta int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	Rank(user core.UserID) (int, bool)
}

// Attach feeds the board from points-bearing events on the bus: granted
// rewards and level-up bonuses. Returns a detach func.
func Attach(board Board, bus *engine.EventBus) func() {
	apply := func(_ context.Context, ev core.Event) {
		if ev.Points > 0 {
			board.Add(ev.UserID, ev.Points)
		}
	}
	unsubs := []func(){
		bus.Subscribe(core.EventRewardGranted, apply),
		bus.Subscribe(core.EventLevelUp, apply),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
