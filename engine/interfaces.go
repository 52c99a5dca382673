package engine

import (
	"context"

	"incentivekit/core"
)

// ReviewStore provides read access to U2M reviews.
type ReviewStore interface {
	// GetReviewDetail returns the review or core.ErrReviewNotFound.
	GetReviewDetail(ctx context.Context, reviewID int64) (*core.Review, error)
	// CountConfirmedByUser counts reviews confirmed through the admin path.
	CountConfirmedByUser(ctx context.Context, user core.UserID) (int64, error)
	// ListConfirmed pages confirmed reviews by ascending id, for backfill.
	ListConfirmed(ctx context.Context, afterID int64, limit int) ([]core.Review, error)
}

// UserStore provides read/write access to user incentive state.
type UserStore interface {
	// GetUserProfile returns the profile or core.ErrUserNotFound.
	GetUserProfile(ctx context.Context, user core.UserID) (*core.UserProfile, error)
	// GrantRewards atomically adds XP and points deltas.
	GrantRewards(ctx context.Context, user core.UserID, xpDelta, pointsDelta int64) error
	// SetUserLevel persists a new level name.
	SetUserLevel(ctx context.Context, user core.UserID, levelName string) error
	// AddUserBadge appends a badge if absent; added=false means already owned.
	AddUserBadge(ctx context.Context, user core.UserID, badge string) (added bool, err error)
	// SetOrderCount refreshes the denormalized completed-order counter.
	SetOrderCount(ctx context.Context, user core.UserID, count int64) error
}

// CatalogStore provides read access to the level ladder and badge catalog.
type CatalogStore interface {
	GetAllLevels(ctx context.Context) ([]core.Level, error)
	GetAllBadges(ctx context.Context) ([]core.BadgeSpec, error)
}

// CatalogAdmin provides the administrative CRUD surface over the catalog.
// Implementations are plain writes; Admin layers the validation rules.
type CatalogAdmin interface {
	InsertLevel(ctx context.Context, level core.Level) (int64, error)
	UpdateLevel(ctx context.Context, level core.Level) error
	DeleteLevel(ctx context.Context, id int64) error
	InsertBadge(ctx context.Context, badge core.BadgeSpec) (int64, error)
	UpdateBadge(ctx context.Context, badge core.BadgeSpec) error
	// DeleteBadge cascades to the badge's triggers.
	DeleteBadge(ctx context.Context, id int64) error
	InsertTrigger(ctx context.Context, badgeID int64, key string, value float64) (int64, error)
	DeleteTrigger(ctx context.Context, id int64) error
}

// OrderStore provides read access to orders for statistics.
type OrderStore interface {
	// GetOrdersByUser lists orders, optionally filtered by status ("" for all).
	GetOrdersByUser(ctx context.Context, user core.UserID, status string, limit int) ([]core.Order, error)
}

// ScoreStore provides the per-user M2U aggregate, nil when absent.
type ScoreStore interface {
	GetUserScores(ctx context.Context, user core.UserID) (*core.UserScores, error)
}

// ConfigStore supplies raw dynamic configuration documents by key.
// A missing key returns (nil, nil).
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) ([]byte, error)
	SetConfig(ctx context.Context, key string, value []byte) error
}

// Storage is the full persistence surface a single adapter provides.
// The memory and sqlx adapters implement all of it; composed deployments
// may swap individual slices (Redis ledger, cached catalog).
type Storage interface {
	UserStore
	ReviewStore
	OrderStore
	ScoreStore
	CatalogStore
	CatalogAdmin
	ConfigStore
	ReviewLedger
}

// ReviewLedger enforces at-most-once reward application per review.
type ReviewLedger interface {
	// MarkProcessed records the review id; first=false means it was already
	// marked by an earlier invocation.
	MarkProcessed(ctx context.Context, reviewID int64) (first bool, err error)
	// Unmark releases the mark so a failed grant can be retried.
	Unmark(ctx context.Context, reviewID int64) error
}
