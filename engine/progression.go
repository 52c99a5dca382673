package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"incentivekit/core"
)

// LevelResult reports one progression evaluation. OldLevel is populated even
// when no upgrade happened.
type LevelResult struct {
	Upgraded    bool   `json:"upgraded"`
	OldLevel    string `json:"old_level"`
	NewLevel    string `json:"new_level,omitempty"`
	BonusPoints int64  `json:"bonus_points"`
}

// Progression evaluates a user's position on the level ladder and applies
// level changes with catch-up bonus accumulation.
type Progression struct {
	users   UserStore
	catalog CatalogStore
	bus     *EventBus
	logger  *slog.Logger
}

func NewProgression(users UserStore, catalog CatalogStore, bus *EventBus, logger *slog.Logger) *Progression {
	if logger == nil {
		logger = slog.Default()
	}
	return &Progression{users: users, catalog: catalog, bus: bus, logger: logger}
}

// CheckAndUpgrade moves the user to the highest level reachable by their XP.
// A missing user fails soft (not upgraded). An empty ladder skips the check;
// an invalid ladder (duplicate thresholds, no zero baseline) is an error so
// misconfiguration surfaces instead of silently picking a rung.
func (p *Progression) CheckAndUpgrade(ctx context.Context, user core.UserID) (LevelResult, error) {
	var res LevelResult

	profile, err := p.users.GetUserProfile(ctx, user)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			p.logger.Warn("level check skipped, user missing", "user_id", user)
			return res, nil
		}
		return res, fmt.Errorf("load user %d: %w", user, err)
	}

	current := profile.LevelName
	if current == "" {
		current = core.DefaultLevelName
	}
	res.OldLevel = current

	levels, err := p.catalog.GetAllLevels(ctx)
	if err != nil {
		return res, fmt.Errorf("load level ladder: %w", err)
	}
	if len(levels) == 0 {
		p.logger.Warn("no levels configured, skipping upgrade check")
		return res, nil
	}
	ladder, err := core.NewLadder(levels)
	if err != nil {
		return res, fmt.Errorf("invalid level ladder: %w", err)
	}

	currentIdx := ladder.IndexOf(current)
	targetIdx := ladder.Resolve(profile.XP)
	target := ladder.At(targetIdx)
	if target.Name == current {
		return res, nil
	}

	// Catch-up accumulation over every rung crossed in this jump. The bonus
	// grants points only; XP is untouched so the grant cannot re-trigger
	// progression.
	bonus := ladder.BonusBetween(currentIdx, targetIdx)
	if bonus > 0 {
		if err := p.users.GrantRewards(ctx, user, 0, bonus); err != nil {
			return res, fmt.Errorf("grant level bonus: %w", err)
		}
		res.BonusPoints = bonus
	}

	if err := p.users.SetUserLevel(ctx, user, target.Name); err != nil {
		return res, fmt.Errorf("persist level %q: %w", target.Name, err)
	}

	res.Upgraded = true
	res.NewLevel = target.Name
	p.logger.Info("user level changed",
		"user_id", user, "old_level", current, "new_level", target.Name,
		"xp", profile.XP, "bonus_points", bonus)
	if p.bus != nil {
		p.bus.Publish(ctx, core.NewLevelUp(user, target.Name, bonus))
	}
	return res, nil
}
