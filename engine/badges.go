package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"incentivekit/core"
)

// BadgeResult reports one badge evaluation pass.
type BadgeResult struct {
	NewBadges    []core.EarnedBadge `json:"new_badges"`
	Degradations []core.Degradation `json:"degradations,omitempty"`
}

// BadgeEvaluator grants not-yet-owned badges whose trigger conditions all
// pass against a single statistics snapshot.
type BadgeEvaluator struct {
	users     UserStore
	catalog   CatalogStore
	collector *Collector
	bus       *EventBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewBadgeEvaluator(users UserStore, catalog CatalogStore, collector *Collector, bus *EventBus, logger *slog.Logger) *BadgeEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeEvaluator{users: users, catalog: catalog, collector: collector, bus: bus, logger: logger, now: time.Now}
}

// CheckAndGrant evaluates the full catalog for the user. A missing user or an
// unavailable catalog yields an empty result; per-badge write failures are
// contained to that badge so one bad config cannot block the rest.
func (e *BadgeEvaluator) CheckAndGrant(ctx context.Context, user core.UserID) (BadgeResult, error) {
	var res BadgeResult

	profile, err := e.users.GetUserProfile(ctx, user)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return res, nil
		}
		return res, fmt.Errorf("load user %d: %w", user, err)
	}

	catalog, err := e.catalog.GetAllBadges(ctx)
	if err != nil {
		e.logger.Warn("badge catalog unavailable", "error", err)
		res.Degradations = append(res.Degradations, core.Degradation{Stage: core.StageBadges, Reason: "catalog unavailable: " + err.Error()})
		return res, nil
	}
	if len(catalog) == 0 {
		return res, nil
	}

	// One snapshot shared by every badge for consistency.
	stats, degs := e.collector.Collect(ctx, user)
	res.Degradations = append(res.Degradations, degs...)

	for i := range catalog {
		badge := &catalog[i]
		if profile.HasBadge(badge.Name) || !badge.Qualifies(stats) {
			continue
		}
		added, err := e.users.AddUserBadge(ctx, user, badge.Name)
		if err != nil {
			e.logger.Error("badge grant failed", "user_id", user, "badge", badge.Name, "error", err)
			continue
		}
		if !added {
			// Name collision with a badge granted since the profile read.
			continue
		}
		icon := badge.Icon
		if icon == "" {
			icon = core.DefaultBadgeIcon
		}
		res.NewBadges = append(res.NewBadges, core.EarnedBadge{
			Name:        badge.Name,
			Icon:        icon,
			Description: badge.Description,
			EarnedAt:    e.now().UTC(),
		})
		e.logger.Info("badge earned", "user_id", user, "badge", badge.Name)
		if e.bus != nil {
			e.bus.Publish(ctx, core.NewBadgeEarned(user, badge.Name))
		}
	}
	return res, nil
}
