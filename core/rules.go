package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RewardRules is the strongly-typed form of the dynamic points_config
// document. Sub-rules are optional: a nil sub-rule contributes nothing.
// Parse once at load time; Evaluate is pure.
type RewardRules struct {
	Base           *BaseReward     `json:"base,omitempty"`
	HighScoreBonus *HighScoreBonus `json:"high_score_bonus,omitempty"`
	TextBonus      *TextBonus      `json:"text_bonus,omitempty"`
}

// BaseReward is the unconditional grant for a confirmed review.
type BaseReward struct {
	Points int64 `json:"points"`
	XP     int64 `json:"xp"`
}

// HighScoreBonus is granted when the review's average rating reaches MinAvg.
// An absent MinAvg leaves the threshold unreachable, so the bonus never fires.
type HighScoreBonus struct {
	MinAvg *float64 `json:"min_avg,omitempty"`
	Points int64    `json:"points"`
	XP     int64    `json:"xp"`
}

// TextBonus is granted when the trimmed free-text length reaches MinLen.
type TextBonus struct {
	MinLen int   `json:"min_len"`
	Points int64 `json:"points"`
	XP     int64 `json:"xp"`
}

// ParseRewardRules decodes a raw points_config document and coerces every
// configured value to be non-negative. An empty document yields zero rules,
// which evaluate to a zero reward.
func ParseRewardRules(raw []byte) (RewardRules, error) {
	var rules RewardRules
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return rules, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&rules); err != nil {
		return RewardRules{}, fmt.Errorf("parse reward rules: %w", err)
	}
	rules.clampNonNegative()
	return rules, nil
}

func (r *RewardRules) clampNonNegative() {
	if r.Base != nil {
		r.Base.Points = max64(r.Base.Points, 0)
		r.Base.XP = max64(r.Base.XP, 0)
	}
	if r.HighScoreBonus != nil {
		r.HighScoreBonus.Points = max64(r.HighScoreBonus.Points, 0)
		r.HighScoreBonus.XP = max64(r.HighScoreBonus.XP, 0)
	}
	if r.TextBonus != nil {
		r.TextBonus.Points = max64(r.TextBonus.Points, 0)
		if r.TextBonus.MinLen < 0 {
			r.TextBonus.MinLen = 0
		}
		r.TextBonus.XP = max64(r.TextBonus.XP, 0)
	}
}

// Evaluate computes the reward for one review. It never returns negative
// values and never fails: a review with no rated dimensions simply skips the
// high-score bonus, since an absent threshold is unreachable rather than zero.
func (r RewardRules) Evaluate(review *Review) Reward {
	var total Reward
	if r.Base != nil {
		total = total.Add(Reward{Points: r.Base.Points, XP: r.Base.XP})
	}
	if r.HighScoreBonus != nil && r.HighScoreBonus.MinAvg != nil {
		if avg, ok := review.AverageRating(); ok && avg >= *r.HighScoreBonus.MinAvg {
			total = total.Add(Reward{Points: r.HighScoreBonus.Points, XP: r.HighScoreBonus.XP})
		}
	}
	if r.TextBonus != nil {
		// Length in runes so multi-byte text is measured the way users see it.
		if len([]rune(strings.TrimSpace(review.TextByUser))) >= r.TextBonus.MinLen {
			total = total.Add(Reward{Points: r.TextBonus.Points, XP: r.TextBonus.XP})
		}
	}
	return total
}

// PointsConfig is the full dynamic points_config document. The U2M review
// sub-document feeds the reward calculator; the order sub-rules feed
// order-completion rewards.
type PointsConfig struct {
	U2MReview     RewardRules `json:"u2m_review"`
	OrderComplete *BaseReward `json:"order_complete,omitempty"`
	FirstOrder    *BaseReward `json:"first_order_bonus,omitempty"`
}

// ParsePointsConfig decodes the stored points_config document, coercing all
// values non-negative. Empty input yields an all-zero config.
func ParsePointsConfig(raw []byte) (PointsConfig, error) {
	var cfg PointsConfig
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return PointsConfig{}, fmt.Errorf("parse points config: %w", err)
	}
	cfg.U2MReview.clampNonNegative()
	for _, b := range []*BaseReward{cfg.OrderComplete, cfg.FirstOrder} {
		if b != nil {
			b.Points = max64(b.Points, 0)
			b.XP = max64(b.XP, 0)
		}
	}
	return cfg, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
