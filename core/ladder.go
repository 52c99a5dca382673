package core

import (
	"errors"
	"fmt"
	"sort"
)

// Level is one rung of the progression ladder: reaching XPRequired grants
// the level name and, once, the level-up bonus points.
type Level struct {
	ID              int64  `json:"id" db:"id"`
	Name            string `json:"level_name" db:"level_name"`
	XPRequired      int64  `json:"xp_required" db:"xp_required"`
	PointsOnLevelUp int64  `json:"points_on_level_up" db:"points_on_level_up"`
}

// Ladder is a validated, ascending-by-XP sequence of levels. Construct it
// with NewLadder at the point of use; never trust caller ordering.
type Ladder struct {
	levels []Level
}

// ErrEmptyLadder is returned when no levels are configured.
var ErrEmptyLadder = errors.New("empty level ladder")

// NewLadder sorts the configured levels ascending by required XP and
// validates them: thresholds must be unique, names must be unique and
// non-empty, and the lowest rung must start at XP 0 so every XP value
// resolves to exactly one level.
func NewLadder(levels []Level) (*Ladder, error) {
	if len(levels) == 0 {
		return nil, ErrEmptyLadder
	}
	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].XPRequired < sorted[j].XPRequired })

	names := make(map[string]struct{}, len(sorted))
	for i, lv := range sorted {
		if err := ValidateLevelName(lv.Name); err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		if lv.XPRequired < 0 {
			return nil, fmt.Errorf("level %q: negative xp threshold %d", lv.Name, lv.XPRequired)
		}
		if i > 0 && lv.XPRequired == sorted[i-1].XPRequired {
			return nil, fmt.Errorf("duplicate xp threshold %d (%q, %q)", lv.XPRequired, sorted[i-1].Name, lv.Name)
		}
		if _, dup := names[lv.Name]; dup {
			return nil, fmt.Errorf("duplicate level name %q", lv.Name)
		}
		names[lv.Name] = struct{}{}
	}
	if sorted[0].XPRequired != 0 {
		return nil, fmt.Errorf("lowest level %q must require 0 xp, has %d", sorted[0].Name, sorted[0].XPRequired)
	}
	return &Ladder{levels: sorted}, nil
}

// Levels returns the rungs in ascending XP order.
func (l *Ladder) Levels() []Level {
	out := make([]Level, len(l.levels))
	copy(out, l.levels)
	return out
}

// Len returns the number of rungs.
func (l *Ladder) Len() int { return len(l.levels) }

// Resolve returns the index of the highest level whose required XP does not
// exceed xp. With a validated ladder this is total: every xp >= 0 maps to
// exactly one rung, and xp above the top threshold stays at the top.
func (l *Ladder) Resolve(xp int64) int {
	idx := 0
	for i, lv := range l.levels {
		if xp >= lv.XPRequired {
			idx = i
			continue
		}
		break
	}
	return idx
}

// IndexOf locates a level by name. Stale or unknown names return -1, which
// callers treat as "before the first rung".
func (l *Ladder) IndexOf(name string) int {
	for i, lv := range l.levels {
		if lv.Name == name {
			return i
		}
	}
	return -1
}

// At returns the rung at index i.
func (l *Ladder) At(i int) Level { return l.levels[i] }

// BonusBetween sums the level-up bonus points for every rung crossed when
// moving from fromIdx (exclusive) to toIdx (inclusive). This is the catch-up
// accumulation for multi-level jumps; per-rung bonuses below zero are
// ignored and the total never goes negative.
func (l *Ladder) BonusBetween(fromIdx, toIdx int) int64 {
	var total int64
	for i := fromIdx + 1; i <= toIdx && i < len(l.levels); i++ {
		if i < 0 {
			continue
		}
		if b := l.levels[i].PointsOnLevelUp; b > 0 {
			total += b
		}
	}
	return total
}
