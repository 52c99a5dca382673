package core

import (
	"fmt"
	"strings"
)

// CompareOp is the comparison applied to a statistic by a trigger.
type CompareOp int

const (
	// GreaterOrEqual passes when the statistic is at least the threshold.
	GreaterOrEqual CompareOp = iota
	// LessOrEqual passes when the statistic is at most the threshold.
	LessOrEqual
)

func (op CompareOp) String() string {
	if op == LessOrEqual {
		return "<="
	}
	return ">="
}

// Trigger is one decoded threshold condition on a badge. The stored form
// encodes the operator as a key suffix (_min / _max); ParseTriggerKey decodes
// it exactly once when the catalog is loaded.
type Trigger struct {
	Stat      string    `json:"stat"`
	Op        CompareOp `json:"op"`
	Threshold float64   `json:"threshold"`
}

// ParseTriggerKey decodes a stored trigger key into a statistic name and
// operator: a `_min` suffix compares >=, `_max` compares <=, and a bare key
// compares >= against the statistic of the same name.
func ParseTriggerKey(key string) (stat string, op CompareOp, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", GreaterOrEqual, fmt.Errorf("empty trigger key")
	}
	switch {
	case strings.HasSuffix(key, "_min"):
		stat = strings.TrimSuffix(key, "_min")
	case strings.HasSuffix(key, "_max"):
		stat = strings.TrimSuffix(key, "_max")
		op = LessOrEqual
	default:
		stat = key
	}
	if stat == "" {
		return "", GreaterOrEqual, fmt.Errorf("trigger key %q has no statistic name", key)
	}
	return stat, op, nil
}

// NewTrigger builds a decoded trigger from the stored (key, value) pair.
func NewTrigger(key string, threshold float64) (Trigger, error) {
	stat, op, err := ParseTriggerKey(key)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Stat: stat, Op: op, Threshold: threshold}, nil
}

// Matches evaluates the trigger against a statistics snapshot. Absent
// statistics read as 0.
func (t Trigger) Matches(stats Stats) bool {
	v := stats.Get(t.Stat)
	if t.Op == LessOrEqual {
		return v <= t.Threshold
	}
	return v >= t.Threshold
}

// BadgeSpec is one configured badge with its decoded trigger conditions.
type BadgeSpec struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"badge_name" db:"badge_name"`
	Icon        string    `json:"badge_icon" db:"badge_icon"`
	Description string    `json:"description" db:"description"`
	Triggers    []Trigger `json:"triggers"`
}

// DefaultBadgeIcon is used when a badge has no configured icon.
const DefaultBadgeIcon = "🏆"

// Qualifies evaluates every trigger with AND semantics, short-circuiting on
// the first failure. A badge with no triggers can never be earned
// automatically.
func (b *BadgeSpec) Qualifies(stats Stats) bool {
	if len(b.Triggers) == 0 {
		return false
	}
	for _, t := range b.Triggers {
		if !t.Matches(stats) {
			return false
		}
	}
	return true
}
