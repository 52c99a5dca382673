package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a user in the incentive domain.
type UserID int64

// DefaultLevelName is the baseline level assigned to users whose ladder
// position has never been evaluated.
const DefaultLevelName = "novice"

// Order status labels that count toward the completed-order statistic.
const (
	StatusCompleted      = "completed"
	StatusReviewed       = "reviewed"
	StatusMutualReviewed = "mutual_reviewed"
	StatusSingleReviewed = "single_reviewed"
)

// CompletedStatuses is the fixed set of completed-equivalent order states.
var CompletedStatuses = map[string]struct{}{
	StatusCompleted:      {},
	StatusReviewed:       {},
	StatusMutualReviewed: {},
	StatusSingleReviewed: {},
}

// UserProfile is a snapshot of a user's incentive state as stored.
// XP and points only grow through the engine; badges are append-only.
type UserProfile struct {
	UserID     UserID    `json:"user_id" db:"user_id"`
	Username   string    `json:"username" db:"username"`
	XP         int64     `json:"xp" db:"xp"`
	Points     int64     `json:"points" db:"points"`
	LevelName  string    `json:"level_name" db:"level_name"`
	Badges     []string  `json:"badges"`
	OrderCount int64     `json:"order_count" db:"order_count"`
	Updated    time.Time `json:"updated" db:"updated_at"`
}

// HasBadge reports whether the profile already owns the named badge.
func (p *UserProfile) HasBadge(name string) bool {
	for _, b := range p.Badges {
		if b == name {
			return true
		}
	}
	return false
}

// Review is the U2M review snapshot consumed as calculation input.
// Rating dimensions are 1-10; nil means the dimension was not rated.
type Review struct {
	ID                int64  `json:"id" db:"id"`
	OrderID           int64  `json:"order_id" db:"order_id"`
	MerchantID        int64  `json:"merchant_id" db:"merchant_id"`
	CustomerUserID    UserID `json:"customer_user_id" db:"customer_user_id"`
	RatingAppearance  *int   `json:"rating_appearance" db:"rating_appearance"`
	RatingFigure      *int   `json:"rating_figure" db:"rating_figure"`
	RatingService     *int   `json:"rating_service" db:"rating_service"`
	RatingAttitude    *int   `json:"rating_attitude" db:"rating_attitude"`
	RatingEnvironment *int   `json:"rating_environment" db:"rating_environment"`
	TextByUser        string `json:"text_review_by_user" db:"text_review_by_user"`
	ConfirmedByAdmin  bool   `json:"is_confirmed_by_admin" db:"is_confirmed_by_admin"`
}

// Ratings returns the five rating dimensions in declaration order.
func (r *Review) Ratings() []*int {
	return []*int{r.RatingAppearance, r.RatingFigure, r.RatingService, r.RatingAttitude, r.RatingEnvironment}
}

// AverageRating computes the mean over only the dimensions that were rated
// with a value in 1-10. The second return is false when no dimension is
// present, which must never trip a threshold bonus.
func (r *Review) AverageRating() (float64, bool) {
	var sum, n int
	for _, v := range r.Ratings() {
		if v == nil || *v <= 0 || *v > 10 {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

// Order is the minimal order snapshot used for statistics.
type Order struct {
	ID     int64  `json:"id" db:"id"`
	UserID UserID `json:"user_id" db:"user_id"`
	Status string `json:"status" db:"status"`
}

// Completed reports whether the order is in a completed-equivalent state.
func (o *Order) Completed() bool {
	_, ok := CompletedStatuses[o.Status]
	return ok
}

// UserScores is the M2U aggregate (merchant rates customer) kept per user.
type UserScores struct {
	UserID             UserID  `json:"user_id" db:"user_id"`
	AvgAttackQuality   float64 `json:"avg_attack_quality" db:"avg_attack_quality"`
	AvgLength          float64 `json:"avg_length" db:"avg_length"`
	AvgHardness        float64 `json:"avg_hardness" db:"avg_hardness"`
	AvgDuration        float64 `json:"avg_duration" db:"avg_duration"`
	AvgUserTemperament float64 `json:"avg_user_temperament" db:"avg_user_temperament"`
	TotalReviews       int64   `json:"total_reviews_count" db:"total_reviews_count"`
}

// Stats is the flat snapshot of named per-user statistics that trigger
// evaluation runs against. Collectors populate every well-known key so
// lookups never need a presence check.
type Stats map[string]float64

// Well-known statistic keys produced by the collector.
const (
	StatTotalPoints         = "total_points"
	StatTotalXP             = "total_xp"
	StatOrderCount          = "order_count"
	StatU2MConfirmedReviews = "u2m_confirmed_reviews"
	StatM2UReviews          = "m2u_reviews"
	StatM2UAvgAttackQuality = "m2u_avg_attack_quality"
	StatM2UAvgLength        = "m2u_avg_length"
	StatM2UAvgHardness      = "m2u_avg_hardness"
	StatM2UAvgDuration      = "m2u_avg_duration"
	StatM2UAvgTemperament   = "m2u_avg_user_temperament"
)

// Get returns the named statistic, defaulting to 0 when absent.
func (s Stats) Get(key string) float64 { return s[key] }

// Reward is a (points, experience) pair produced by rule evaluation.
type Reward struct {
	Points int64 `json:"points"`
	XP     int64 `json:"xp"`
}

// Add returns the component-wise sum.
func (r Reward) Add(o Reward) Reward { return Reward{Points: r.Points + o.Points, XP: r.XP + o.XP} }

// EarnedBadge is one badge granted during a processing run.
type EarnedBadge struct {
	Name        string    `json:"badge_name"`
	Icon        string    `json:"badge_icon"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

// Stage identifies one step of the processing pipeline.
type Stage string

const (
	StageReward Stage = "reward"
	StageLevel  Stage = "level"
	StageBadges Stage = "badges"
	StageStats  Stage = "stats"
)

// Degradation records a best-effort stage that fell back to defaults instead
// of failing the run.
type Degradation struct {
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
}

// Outcome is the per-invocation result report returned to the caller. It is
// never persisted.
type Outcome struct {
	Success        bool          `json:"success"`
	RewardsGranted bool          `json:"rewards_granted"`
	PointsEarned   int64         `json:"points_earned"`
	XPEarned       int64         `json:"xp_earned"`
	LevelUpgraded  bool          `json:"level_upgraded"`
	OldLevel       string        `json:"old_level,omitempty"`
	NewLevel       string        `json:"new_level,omitempty"`
	NewBadges      []EarnedBadge `json:"new_badges"`
	Degradations   []Degradation `json:"degradations,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Degraded reports whether the named stage fell back to defaults.
func (o *Outcome) Degraded(stage Stage) bool {
	for _, d := range o.Degradations {
		if d.Stage == stage {
			return true
		}
	}
	return false
}

// Sentinel errors for the NotFound taxonomy.
var (
	ErrReviewNotFound = errors.New("review not found")
	ErrUserNotFound   = errors.New("user not found")
)

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// ValidateBadgeName ensures a non-empty badge name after trimming.
func ValidateBadgeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty badge name")
	}
	return nil
}

// ValidateLevelName ensures a non-empty level name after trimming.
func ValidateLevelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("empty level name")
	}
	return nil
}
