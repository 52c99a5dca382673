package engine

import (
	"context"
	"errors"
	"log/slog"

	"incentivekit/core"
)

// orderScanLimit caps the per-user order scan used for statistics.
const orderScanLimit = 1000

// Collector assembles the per-user statistics snapshot consumed by badge
// trigger evaluation. Every well-known key is always present; any sub-query
// failure degrades that statistic to its default instead of aborting.
type Collector struct {
	users   UserStore
	orders  OrderStore
	reviews ReviewStore
	scores  ScoreStore
	logger  *slog.Logger
}

func NewCollector(users UserStore, orders OrderStore, reviews ReviewStore, scores ScoreStore, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{users: users, orders: orders, reviews: reviews, scores: scores, logger: logger}
}

// Collect builds the snapshot. The returned degradations name the sub-queries
// that fell back to defaults.
func (c *Collector) Collect(ctx context.Context, user core.UserID) (core.Stats, []core.Degradation) {
	stats := core.Stats{
		core.StatTotalPoints:         0,
		core.StatTotalXP:             0,
		core.StatOrderCount:          0,
		core.StatU2MConfirmedReviews: 0,
		core.StatM2UReviews:          0,
		core.StatM2UAvgAttackQuality: 0,
		core.StatM2UAvgLength:        0,
		core.StatM2UAvgHardness:      0,
		core.StatM2UAvgDuration:      0,
		core.StatM2UAvgTemperament:   0,
	}
	var degs []core.Degradation
	degrade := func(reason string, err error) {
		c.logger.Warn("statistic degraded to default", "user_id", user, "stat", reason, "error", err)
		degs = append(degs, core.Degradation{Stage: core.StageStats, Reason: reason})
	}

	if profile, err := c.users.GetUserProfile(ctx, user); err != nil {
		if !errors.Is(err, core.ErrUserNotFound) {
			degrade("user profile", err)
		}
	} else {
		stats[core.StatTotalPoints] = float64(profile.Points)
		stats[core.StatTotalXP] = float64(profile.XP)
		// Denormalized counter as a floor; the order scan below refreshes it.
		stats[core.StatOrderCount] = float64(profile.OrderCount)
	}

	if orders, err := c.orders.GetOrdersByUser(ctx, user, "", orderScanLimit); err != nil {
		degrade("order count", err)
	} else {
		var completed int
		for i := range orders {
			if orders[i].Completed() {
				completed++
			}
		}
		stats[core.StatOrderCount] = float64(completed)
	}

	if n, err := c.reviews.CountConfirmedByUser(ctx, user); err != nil {
		degrade("confirmed review count", err)
	} else {
		stats[core.StatU2MConfirmedReviews] = float64(n)
	}

	if scores, err := c.scores.GetUserScores(ctx, user); err != nil {
		degrade("m2u aggregate", err)
	} else if scores != nil {
		stats[core.StatM2UReviews] = float64(scores.TotalReviews)
		stats[core.StatM2UAvgAttackQuality] = scores.AvgAttackQuality
		stats[core.StatM2UAvgLength] = scores.AvgLength
		stats[core.StatM2UAvgHardness] = scores.AvgHardness
		stats[core.StatM2UAvgDuration] = scores.AvgDuration
		stats[core.StatM2UAvgTemperament] = scores.AvgUserTemperament
	}

	return stats, degs
}

// CountCompletedOrders scans the user's orders and counts the
// completed-equivalent ones.
func (c *Collector) CountCompletedOrders(ctx context.Context, user core.UserID) (int64, error) {
	orders, err := c.orders.GetOrdersByUser(ctx, user, "", orderScanLimit)
	if err != nil {
		return 0, err
	}
	var completed int64
	for i := range orders {
		if orders[i].Completed() {
			completed++
		}
	}
	return completed, nil
}
