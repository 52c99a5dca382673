package engine

import (
	"context"
	"errors"
	"log/slog"

	"incentivekit/core"
)

// Errors surfaced by the processor.
var (
	// ErrGrantFailed wraps a reward write the store reported as failed.
	ErrGrantFailed = errors.New("reward grant failed")
	// ErrDuplicateReview marks a review already processed by the ledger.
	ErrDuplicateReview = errors.New("review already processed")
)

// Processor sequences the incentive pipeline for a single confirmed-review
// event: reward calculation, reward grant, level progression, badge
// evaluation, order-statistics refresh. Stages run strictly in order; the
// first two are fatal on failure, the rest degrade.
type Processor struct {
	calc        *Calculator
	users       UserStore
	progression *Progression
	badges      *BadgeEvaluator
	collector   *Collector
	ledger      ReviewLedger
	bus         *EventBus
	logger      *slog.Logger
}

// ProcessorOption configures optional processor collaborators.
type ProcessorOption func(*Processor)

// WithLedger enables at-most-once processing per review id.
func WithLedger(l ReviewLedger) ProcessorOption { return func(p *Processor) { p.ledger = l } }

// WithBus publishes domain events to the bus.
func WithBus(b *EventBus) ProcessorOption { return func(p *Processor) { p.bus = b } }

func NewProcessor(calc *Calculator, users UserStore, progression *Progression, badges *BadgeEvaluator, collector *Collector, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if calc == nil || users == nil || progression == nil || badges == nil || collector == nil {
		panic("NewProcessor requires non-nil calculator, users, progression, badges, collector")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{calc: calc, users: users, progression: progression, badges: badges, collector: collector, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

func failure(out core.Outcome, err error) core.Outcome {
	out.Success = false
	out.Error = err.Error()
	return out
}

// ProcessConfirmedReview runs the full pipeline for one merchant-confirmed
// review. Reward calculation and the grant are fatal on failure; level,
// badge, and statistics failures are absorbed as degradations because the
// already-committed grant must not be rolled back by a downstream stage.
func (p *Processor) ProcessConfirmedReview(ctx context.Context, user core.UserID, reviewID, orderID int64) core.Outcome {
	out := core.Outcome{NewBadges: []core.EarnedBadge{}}
	log := p.logger.With("user_id", user, "review_id", reviewID, "order_id", orderID)
	log.Info("processing confirmed review rewards")

	// Duplicate confirmations are rejected before any reward math. A ledger
	// outage does not block processing; it removes the at-most-once guard for
	// this run, which we surface as a degradation.
	marked := false
	if p.ledger != nil {
		first, err := p.ledger.MarkProcessed(ctx, reviewID)
		switch {
		case err != nil:
			log.Warn("review ledger unavailable, proceeding unguarded", "error", err)
			out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageReward, Reason: "ledger unavailable: " + err.Error()})
		case !first:
			log.Warn("duplicate review confirmation rejected")
			return failure(out, ErrDuplicateReview)
		default:
			marked = true
		}
	}

	reward, deg, err := p.calc.Calculate(ctx, reviewID)
	if err != nil {
		p.unmark(ctx, marked, reviewID)
		log.Error("reward calculation failed", "error", err)
		return failure(out, err)
	}
	if deg != nil {
		out.Degradations = append(out.Degradations, *deg)
	}

	if err := p.users.GrantRewards(ctx, user, reward.XP, reward.Points); err != nil {
		p.unmark(ctx, marked, reviewID)
		log.Error("reward grant failed", "error", err)
		return failure(out, errors.Join(ErrGrantFailed, err))
	}
	out.RewardsGranted = true
	out.PointsEarned = reward.Points
	out.XPEarned = reward.XP
	if p.bus != nil {
		p.bus.Publish(ctx, core.NewRewardGranted(user, reviewID, reward))
	}

	// Level progression reads the just-committed XP.
	levelRes, err := p.progression.CheckAndUpgrade(ctx, user)
	if err != nil {
		log.Warn("level check degraded", "error", err)
		out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageLevel, Reason: err.Error()})
	} else {
		out.LevelUpgraded = levelRes.Upgraded
		out.OldLevel = levelRes.OldLevel
		out.NewLevel = levelRes.NewLevel
	}

	badgeRes, err := p.badges.CheckAndGrant(ctx, user)
	if err != nil {
		log.Warn("badge check degraded", "error", err)
		out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageBadges, Reason: err.Error()})
	} else {
		out.NewBadges = append(out.NewBadges, badgeRes.NewBadges...)
		out.Degradations = append(out.Degradations, badgeRes.Degradations...)
	}

	p.refreshOrderStats(ctx, user, &out)

	out.Success = true
	log.Info("review rewards processed",
		"points", out.PointsEarned, "xp", out.XPEarned,
		"level_upgraded", out.LevelUpgraded, "new_badges", len(out.NewBadges))
	return out
}

// ProcessOrderCompletion grants the order-completion reward (with a
// first-completed-order bonus) and re-evaluates badges. No level check is
// tied to order completion unless XP was configured for it.
func (p *Processor) ProcessOrderCompletion(ctx context.Context, user core.UserID, orderID int64) core.Outcome {
	out := core.Outcome{NewBadges: []core.EarnedBadge{}}
	log := p.logger.With("user_id", user, "order_id", orderID)

	cfg, deg := p.calc.Rules(ctx)
	if deg != nil {
		out.Degradations = append(out.Degradations, *deg)
	}
	var reward core.Reward
	if cfg.OrderComplete != nil {
		reward = reward.Add(core.Reward{Points: cfg.OrderComplete.Points, XP: cfg.OrderComplete.XP})
	}
	if cfg.FirstOrder != nil {
		completed, err := p.collector.CountCompletedOrders(ctx, user)
		if err != nil {
			log.Warn("first-order check degraded", "error", err)
			out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageStats, Reason: "order count unavailable: " + err.Error()})
		} else if completed == 1 {
			reward = reward.Add(core.Reward{Points: cfg.FirstOrder.Points, XP: cfg.FirstOrder.XP})
			log.Info("first completed order bonus applied")
		}
	}

	if reward.Points > 0 || reward.XP > 0 {
		if err := p.users.GrantRewards(ctx, user, reward.XP, reward.Points); err != nil {
			log.Error("order reward grant failed", "error", err)
			return failure(out, errors.Join(ErrGrantFailed, err))
		}
		out.RewardsGranted = true
		out.PointsEarned = reward.Points
		out.XPEarned = reward.XP
		if p.bus != nil {
			p.bus.Publish(ctx, core.NewRewardGranted(user, 0, reward))
		}
	}

	if reward.XP > 0 {
		if levelRes, err := p.progression.CheckAndUpgrade(ctx, user); err != nil {
			out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageLevel, Reason: err.Error()})
		} else {
			out.LevelUpgraded = levelRes.Upgraded
			out.OldLevel = levelRes.OldLevel
			out.NewLevel = levelRes.NewLevel
		}
	}

	badgeRes, err := p.badges.CheckAndGrant(ctx, user)
	if err != nil {
		out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageBadges, Reason: err.Error()})
	} else {
		out.NewBadges = append(out.NewBadges, badgeRes.NewBadges...)
		out.Degradations = append(out.Degradations, badgeRes.Degradations...)
	}

	p.refreshOrderStats(ctx, user, &out)

	out.Success = true
	return out
}

func (p *Processor) refreshOrderStats(ctx context.Context, user core.UserID, out *core.Outcome) {
	count, err := p.collector.CountCompletedOrders(ctx, user)
	if err != nil {
		p.logger.Warn("order stats refresh degraded", "user_id", user, "error", err)
		out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageStats, Reason: "order count refresh: " + err.Error()})
		return
	}
	if err := p.users.SetOrderCount(ctx, user, count); err != nil {
		p.logger.Warn("order stats write degraded", "user_id", user, "error", err)
		out.Degradations = append(out.Degradations, core.Degradation{Stage: core.StageStats, Reason: "order count write: " + err.Error()})
	}
}

func (p *Processor) unmark(ctx context.Context, marked bool, reviewID int64) {
	if !marked || p.ledger == nil {
		return
	}
	if err := p.ledger.Unmark(ctx, reviewID); err != nil {
		p.logger.Warn("ledger unmark failed", "review_id", reviewID, "error", err)
	}
}
