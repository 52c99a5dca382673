package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"incentivekit/core"
)

// Admin applies the catalog administration rules on top of a plain
// CatalogAdmin store: unique level names and XP thresholds, unique badge
// names, non-negative values, and cascade delete of triggers with their
// badge.
type Admin struct {
	catalog CatalogStore
	store   CatalogAdmin
	logger  *slog.Logger
}

func NewAdmin(catalog CatalogStore, store CatalogAdmin, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{catalog: catalog, store: store, logger: logger}
}

// CreateLevel validates and inserts a new level.
func (a *Admin) CreateLevel(ctx context.Context, level core.Level) (int64, error) {
	level.Name = strings.TrimSpace(level.Name)
	if err := core.ValidateLevelName(level.Name); err != nil {
		return 0, err
	}
	if level.XPRequired < 0 {
		return 0, fmt.Errorf("xp threshold cannot be negative")
	}
	if level.PointsOnLevelUp < 0 {
		return 0, fmt.Errorf("level-up bonus cannot be negative")
	}
	existing, err := a.catalog.GetAllLevels(ctx)
	if err != nil {
		return 0, fmt.Errorf("load levels: %w", err)
	}
	for _, lv := range existing {
		if lv.Name == level.Name {
			return 0, fmt.Errorf("level name %q already exists", level.Name)
		}
		if lv.XPRequired == level.XPRequired {
			return 0, fmt.Errorf("xp threshold %d already used by %q", level.XPRequired, lv.Name)
		}
	}
	id, err := a.store.InsertLevel(ctx, level)
	if err != nil {
		return 0, err
	}
	a.logger.Info("level created", "level", level.Name, "xp_required", level.XPRequired, "id", id)
	return id, nil
}

// UpdateLevel validates and updates an existing level by id.
func (a *Admin) UpdateLevel(ctx context.Context, level core.Level) error {
	level.Name = strings.TrimSpace(level.Name)
	if err := core.ValidateLevelName(level.Name); err != nil {
		return err
	}
	if level.XPRequired < 0 || level.PointsOnLevelUp < 0 {
		return fmt.Errorf("level values cannot be negative")
	}
	existing, err := a.catalog.GetAllLevels(ctx)
	if err != nil {
		return fmt.Errorf("load levels: %w", err)
	}
	found := false
	for _, lv := range existing {
		if lv.ID == level.ID {
			found = true
			continue
		}
		if lv.Name == level.Name {
			return fmt.Errorf("level name %q already used", level.Name)
		}
		if lv.XPRequired == level.XPRequired {
			return fmt.Errorf("xp threshold %d already used by %q", level.XPRequired, lv.Name)
		}
	}
	if !found {
		return fmt.Errorf("level id %d not found", level.ID)
	}
	if err := a.store.UpdateLevel(ctx, level); err != nil {
		return err
	}
	a.logger.Info("level updated", "id", level.ID, "level", level.Name)
	return nil
}

// DeleteLevel removes a level from the ladder.
func (a *Admin) DeleteLevel(ctx context.Context, id int64) error {
	if err := a.store.DeleteLevel(ctx, id); err != nil {
		return err
	}
	a.logger.Info("level deleted", "id", id)
	return nil
}

// CreateBadge validates and inserts a new badge. Triggers are added
// separately.
func (a *Admin) CreateBadge(ctx context.Context, badge core.BadgeSpec) (int64, error) {
	badge.Name = strings.TrimSpace(badge.Name)
	if err := core.ValidateBadgeName(badge.Name); err != nil {
		return 0, err
	}
	existing, err := a.catalog.GetAllBadges(ctx)
	if err != nil {
		return 0, fmt.Errorf("load badges: %w", err)
	}
	for i := range existing {
		if existing[i].Name == badge.Name {
			return 0, fmt.Errorf("badge name %q already exists", badge.Name)
		}
	}
	id, err := a.store.InsertBadge(ctx, badge)
	if err != nil {
		return 0, err
	}
	a.logger.Info("badge created", "badge", badge.Name, "id", id)
	return id, nil
}

// UpdateBadge updates badge metadata by id.
func (a *Admin) UpdateBadge(ctx context.Context, badge core.BadgeSpec) error {
	badge.Name = strings.TrimSpace(badge.Name)
	if err := core.ValidateBadgeName(badge.Name); err != nil {
		return err
	}
	existing, err := a.catalog.GetAllBadges(ctx)
	if err != nil {
		return fmt.Errorf("load badges: %w", err)
	}
	found := false
	for i := range existing {
		if existing[i].ID == badge.ID {
			found = true
			continue
		}
		if existing[i].Name == badge.Name {
			return fmt.Errorf("badge name %q already used", badge.Name)
		}
	}
	if !found {
		return fmt.Errorf("badge id %d not found", badge.ID)
	}
	return a.store.UpdateBadge(ctx, badge)
}

// DeleteBadge removes a badge and cascades to its triggers.
func (a *Admin) DeleteBadge(ctx context.Context, id int64) error {
	if err := a.store.DeleteBadge(ctx, id); err != nil {
		return err
	}
	a.logger.Info("badge deleted", "id", id)
	return nil
}

// AddTrigger validates the stored key against the suffix convention before
// inserting, so malformed trigger configs are rejected at write time instead
// of degrading evaluation later.
func (a *Admin) AddTrigger(ctx context.Context, badgeID int64, key string, value float64) (int64, error) {
	if _, _, err := core.ParseTriggerKey(key); err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("trigger value cannot be negative")
	}
	badges, err := a.catalog.GetAllBadges(ctx)
	if err != nil {
		return 0, fmt.Errorf("load badges: %w", err)
	}
	found := false
	for i := range badges {
		if badges[i].ID == badgeID {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("badge id %d not found", badgeID)
	}
	id, err := a.store.InsertTrigger(ctx, badgeID, strings.TrimSpace(key), value)
	if err != nil {
		return 0, err
	}
	a.logger.Info("trigger added", "badge_id", badgeID, "key", key, "value", value)
	return id, nil
}

// DeleteTrigger removes one trigger by id.
func (a *Admin) DeleteTrigger(ctx context.Context, id int64) error {
	return a.store.DeleteTrigger(ctx, id)
}
