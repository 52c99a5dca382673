package engine

import (
	"context"
	"log/slog"
	"strings"

	"incentivekit/core"
)

// ConfigKeyPoints is the dynamic-config key holding the points_config document.
const ConfigKeyPoints = "points_config"

// Calculator computes the (points, xp) reward for one confirmed review from
// the dynamic points_config rules. It performs no writes.
type Calculator struct {
	reviews ReviewStore
	config  ConfigStore
	logger  *slog.Logger
}

func NewCalculator(reviews ReviewStore, config ConfigStore, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{reviews: reviews, config: config, logger: logger}
}

// Calculate returns the reward for the review. A missing review is a hard
// failure (core.ErrReviewNotFound); an unavailable, absent, or malformed rule
// document degrades to zero rules and is reported, not fatal, so a valid zero
// reward stays distinguishable from failure.
func (c *Calculator) Calculate(ctx context.Context, reviewID int64) (core.Reward, *core.Degradation, error) {
	review, err := c.reviews.GetReviewDetail(ctx, reviewID)
	if err != nil {
		return core.Reward{}, nil, err
	}

	rules, deg := c.loadRules(ctx)
	reward := rules.Evaluate(review)
	c.logger.Debug("review reward calculated",
		"review_id", reviewID, "points", reward.Points, "xp", reward.XP)
	return reward, deg, nil
}

// Rules exposes the currently configured points rules, degrading to zero
// rules when the document is unavailable, absent, or malformed.
func (c *Calculator) Rules(ctx context.Context) (core.PointsConfig, *core.Degradation) {
	raw, err := c.config.GetConfig(ctx, ConfigKeyPoints)
	if err != nil {
		c.logger.Warn("points config unavailable, using zero rules", "error", err)
		return core.PointsConfig{}, &core.Degradation{Stage: core.StageReward, Reason: "points config unavailable: " + err.Error()}
	}
	if strings.TrimSpace(string(raw)) == "" {
		c.logger.Warn("points config missing, using zero rules")
		return core.PointsConfig{}, &core.Degradation{Stage: core.StageReward, Reason: "points config missing"}
	}
	cfg, err := core.ParsePointsConfig(raw)
	if err != nil {
		c.logger.Warn("points config malformed, using zero rules", "error", err)
		return core.PointsConfig{}, &core.Degradation{Stage: core.StageReward, Reason: "points config malformed: " + err.Error()}
	}
	return cfg, nil
}

func (c *Calculator) loadRules(ctx context.Context) (core.RewardRules, *core.Degradation) {
	cfg, deg := c.Rules(ctx)
	return cfg.U2MReview, deg
}
