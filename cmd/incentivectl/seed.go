package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"incentivekit/core"
	"incentivekit/engine"
)

const seedPointsConfig = `{
  "u2m_review": {
    "base": {"points": 50, "xp": 20},
    "high_score_bonus": {"threshold": 8.0, "points": 25, "xp": 10},
    "text_bonus": {"min_length": 10, "points": 15, "xp": 5}
  },
  "order_complete": {"points": 5, "xp": 2},
  "first_order_bonus": {"points": 30, "xp": 15}
}`

// seedCmd installs a starter catalog: a three-step level ladder, a few
// badges with their triggers, and the points_config document.
type seedCmd struct {
	force bool
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "install a starter incentive catalog" }
func (*seedCmd) Usage() string {
	return `seed [-force]:
  Install demo levels, badges and points configuration. Refuses to run
  against a non-empty catalog unless -force is given.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "seed even when the catalog already has levels")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, storage, cleanup, logger, err := openStorage()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	catalog, catalogAdmin, configStore, err := catalogStores(cfg, storage)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	existing, err := catalog.GetAllLevels(ctx)
	if err != nil {
		logger.Error("read level ladder", "error", err)
		return subcommands.ExitFailure
	}
	if len(existing) > 0 && !c.force {
		fmt.Fprintln(os.Stderr, "catalog already has levels; use -force to seed anyway")
		return subcommands.ExitFailure
	}

	admin := engine.NewAdmin(catalog, catalogAdmin, logger)

	levels := []core.Level{
		{Name: "新手", XPRequired: 0, PointsOnLevelUp: 0},
		{Name: "老司机", XPRequired: 100, PointsOnLevelUp: 10},
		{Name: "大师", XPRequired: 500, PointsOnLevelUp: 30},
	}
	for _, level := range levels {
		if _, err := admin.CreateLevel(ctx, level); err != nil {
			logger.Error("create level", "name", level.Name, "error", err)
			return subcommands.ExitFailure
		}
	}

	badges := []struct {
		spec     core.BadgeSpec
		triggers map[string]float64
	}{
		{
			spec:     core.BadgeSpec{Name: "三连胜", Icon: "🥉", Description: "完成三单"},
			triggers: map[string]float64{"order_count_min": 3},
		},
		{
			spec:     core.BadgeSpec{Name: "长度大王", Icon: "📏", Description: "商家评价篇幅出众"},
			triggers: map[string]float64{"m2u_avg_length_min": 18, "m2u_reviews_min": 3},
		},
		{
			spec:     core.BadgeSpec{Name: "好脾气", Icon: "😇", Description: "脾气评分维持低位"},
			triggers: map[string]float64{"m2u_avg_user_temperament_max": 3, "m2u_reviews_min": 3},
		},
	}
	for _, b := range badges {
		id, err := admin.CreateBadge(ctx, b.spec)
		if err != nil {
			logger.Error("create badge", "name", b.spec.Name, "error", err)
			return subcommands.ExitFailure
		}
		for key, value := range b.triggers {
			if _, err := admin.AddTrigger(ctx, id, key, value); err != nil {
				logger.Error("add trigger", "badge", b.spec.Name, "key", key, "error", err)
				return subcommands.ExitFailure
			}
		}
	}

	if err := configStore.SetConfig(ctx, engine.ConfigKeyPoints, []byte(seedPointsConfig)); err != nil {
		logger.Error("write points config", "error", err)
		return subcommands.ExitFailure
	}

	logger.Info("seed complete", "levels", len(levels), "badges", len(badges))
	return subcommands.ExitSuccess
}
