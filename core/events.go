package core

import "time"

// EventType enumerates incentive domain events.
type EventType string

const (
	EventRewardGranted EventType = "reward_granted"
	EventLevelUp       EventType = "level_up"
	EventBadgeEarned   EventType = "badge_earned"
)

// Event represents an immutable domain event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	ReviewID int64          `json:"review_id,omitempty"`
	Points   int64          `json:"points,omitempty"`
	XP       int64          `json:"xp,omitempty"`
	Level    string         `json:"level,omitempty"`
	Badge    string         `json:"badge,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewRewardGranted(user UserID, reviewID int64, r Reward) Event {
	return Event{Type: EventRewardGranted, Time: time.Now().UTC(), UserID: user, ReviewID: reviewID, Points: r.Points, XP: r.XP}
}

func NewLevelUp(user UserID, level string, bonus int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level, Points: bonus}
}

func NewBadgeEarned(user UserID, badge string) Event {
	return Event{Type: EventBadgeEarned, Time: time.Now().UTC(), UserID: user, Badge: badge}
}
