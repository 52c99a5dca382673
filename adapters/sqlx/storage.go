// Package sqlx provides a SQL-backed storage adapter supporting
// PostgreSQL and MySQL via jmoiron/sqlx.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"incentivekit/core"
	"incentivekit/engine"
)

// Driver selects the SQL dialect for the few statements that differ.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"INCENTIVEKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"INCENTIVEKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"INCENTIVEKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"INCENTIVEKIT_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"INCENTIVEKIT_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store implements every engine storage interface against the relational
// schema: users, user_badges, reviews, orders, user_scores, user_levels,
// badges, badge_triggers, system_config, processed_reviews.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a database connection and verifies it with a ping.
func New(config Config) (*Store, error) {
	db, err := sqlx.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Driver, err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", config.Driver, err)
	}
	return &Store{db: db, driver: config.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) rebind(q string) string { return s.db.Rebind(q) }

// ---- engine.UserStore ----

func (s *Store) GetUserProfile(ctx context.Context, user core.UserID) (*core.UserProfile, error) {
	var p core.UserProfile
	err := s.db.GetContext(ctx, &p, s.rebind(
		`SELECT user_id, username, xp, points, level_name, order_count, updated_at
		 FROM users WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %d: %w", user, err)
	}
	if err := s.db.SelectContext(ctx, &p.Badges, s.rebind(
		`SELECT badge_name FROM user_badges WHERE user_id = ? ORDER BY earned_at`), user); err != nil {
		return nil, fmt.Errorf("select badges for user %d: %w", user, err)
	}
	return &p, nil
}

func (s *Store) GrantRewards(ctx context.Context, user core.UserID, xpDelta, pointsDelta int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET xp = xp + ?, points = points + ?, updated_at = ? WHERE user_id = ?`),
		xpDelta, pointsDelta, time.Now().UTC(), user)
	if err != nil {
		return fmt.Errorf("grant rewards to user %d: %w", user, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetUserLevel(ctx context.Context, user core.UserID, levelName string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET level_name = ?, updated_at = ? WHERE user_id = ?`),
		levelName, time.Now().UTC(), user)
	if err != nil {
		return fmt.Errorf("set level for user %d: %w", user, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// AddUserBadge inserts the badge only when absent. The reported bool follows
// the affected-row count, so concurrent grants resolve to exactly one winner.
func (s *Store) AddUserBadge(ctx context.Context, user core.UserID, badge string) (bool, error) {
	var q string
	switch s.driver {
	case DriverMySQL:
		q = `INSERT IGNORE INTO user_badges (user_id, badge_name, earned_at) VALUES (?, ?, ?)`
	default:
		q = `INSERT INTO user_badges (user_id, badge_name, earned_at) VALUES (?, ?, ?)
		     ON CONFLICT (user_id, badge_name) DO NOTHING`
	}
	res, err := s.db.ExecContext(ctx, s.rebind(q), user, badge, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("add badge %q to user %d: %w", badge, user, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SetOrderCount(ctx context.Context, user core.UserID, count int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET order_count = ?, updated_at = ? WHERE user_id = ?`),
		count, time.Now().UTC(), user)
	if err != nil {
		return fmt.Errorf("set order count for user %d: %w", user, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// ---- engine.ReviewStore ----

func (s *Store) GetReviewDetail(ctx context.Context, reviewID int64) (*core.Review, error) {
	var r core.Review
	err := s.db.GetContext(ctx, &r, s.rebind(
		`SELECT id, order_id, merchant_id, customer_user_id,
		        rating_appearance, rating_figure, rating_service,
		        rating_attitude, rating_environment,
		        text_review_by_user, is_confirmed_by_admin
		 FROM reviews WHERE id = ?`), reviewID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select review %d: %w", reviewID, err)
	}
	return &r, nil
}

func (s *Store) CountConfirmedByUser(ctx context.Context, user core.UserID) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.rebind(
		`SELECT COUNT(*) FROM reviews WHERE customer_user_id = ? AND is_confirmed_by_admin`), user)
	if err != nil {
		return 0, fmt.Errorf("count confirmed reviews for user %d: %w", user, err)
	}
	return n, nil
}

func (s *Store) ListConfirmed(ctx context.Context, afterID int64, limit int) ([]core.Review, error) {
	reviews := []core.Review{}
	err := s.db.SelectContext(ctx, &reviews, s.rebind(
		`SELECT id, order_id, merchant_id, customer_user_id,
		        rating_appearance, rating_figure, rating_service,
		        rating_attitude, rating_environment,
		        text_review_by_user, is_confirmed_by_admin
		 FROM reviews WHERE is_confirmed_by_admin AND id > ?
		 ORDER BY id LIMIT ?`), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list confirmed reviews after %d: %w", afterID, err)
	}
	return reviews, nil
}

// ---- engine.OrderStore ----

func (s *Store) GetOrdersByUser(ctx context.Context, user core.UserID, status string, limit int) ([]core.Order, error) {
	orders := []core.Order{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &orders, s.rebind(
			`SELECT id, user_id, status FROM orders WHERE user_id = ? ORDER BY id LIMIT ?`),
			user, limit)
	} else {
		err = s.db.SelectContext(ctx, &orders, s.rebind(
			`SELECT id, user_id, status FROM orders WHERE user_id = ? AND status = ? ORDER BY id LIMIT ?`),
			user, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("select orders for user %d: %w", user, err)
	}
	return orders, nil
}

// ---- engine.ScoreStore ----

func (s *Store) GetUserScores(ctx context.Context, user core.UserID) (*core.UserScores, error) {
	var sc core.UserScores
	err := s.db.GetContext(ctx, &sc, s.rebind(
		`SELECT user_id, avg_attack_quality, avg_length, avg_hardness,
		        avg_duration, avg_user_temperament, total_reviews_count
		 FROM user_scores WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select scores for user %d: %w", user, err)
	}
	return &sc, nil
}

// ---- engine.CatalogStore ----

func (s *Store) GetAllLevels(ctx context.Context) ([]core.Level, error) {
	levels := []core.Level{}
	err := s.db.SelectContext(ctx, &levels,
		`SELECT id, level_name, xp_required, points_on_level_up FROM user_levels ORDER BY xp_required`)
	if err != nil {
		return nil, fmt.Errorf("select levels: %w", err)
	}
	return levels, nil
}

func (s *Store) GetAllBadges(ctx context.Context) ([]core.BadgeSpec, error) {
	badges := []core.BadgeSpec{}
	err := s.db.SelectContext(ctx, &badges,
		`SELECT id, badge_name, badge_icon, description FROM badges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select badges: %w", err)
	}
	if len(badges) == 0 {
		return badges, nil
	}

	type triggerRow struct {
		BadgeID int64   `db:"badge_id"`
		Key     string  `db:"trigger_key"`
		Value   float64 `db:"trigger_value"`
	}
	rows := []triggerRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT badge_id, trigger_key, trigger_value FROM badge_triggers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select badge triggers: %w", err)
	}

	byBadge := make(map[int64][]core.Trigger, len(badges))
	unearnable := map[int64]bool{}
	for _, row := range rows {
		trigger, err := core.NewTrigger(row.Key, row.Value)
		if err != nil {
			// A stored trigger that no longer parses makes its badge
			// unearnable; drop only that badge, not the whole catalog.
			unearnable[row.BadgeID] = true
			continue
		}
		byBadge[row.BadgeID] = append(byBadge[row.BadgeID], trigger)
	}
	out := badges[:0]
	for _, badge := range badges {
		if unearnable[badge.ID] {
			continue
		}
		badge.Triggers = byBadge[badge.ID]
		out = append(out, badge)
	}
	return out, nil
}

// ---- engine.CatalogAdmin ----

func (s *Store) InsertLevel(ctx context.Context, level core.Level) (int64, error) {
	return s.insertReturningID(ctx,
		`INSERT INTO user_levels (level_name, xp_required, points_on_level_up) VALUES (?, ?, ?)`,
		level.Name, level.XPRequired, level.PointsOnLevelUp)
}

func (s *Store) UpdateLevel(ctx context.Context, level core.Level) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE user_levels SET level_name = ?, xp_required = ?, points_on_level_up = ? WHERE id = ?`),
		level.Name, level.XPRequired, level.PointsOnLevelUp, level.ID)
	if err != nil {
		return fmt.Errorf("update level %d: %w", level.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("level %d not found", level.ID)
	}
	return nil
}

func (s *Store) DeleteLevel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM user_levels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete level %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("level %d not found", id)
	}
	return nil
}

func (s *Store) InsertBadge(ctx context.Context, badge core.BadgeSpec) (int64, error) {
	return s.insertReturningID(ctx,
		`INSERT INTO badges (badge_name, badge_icon, description) VALUES (?, ?, ?)`,
		badge.Name, badge.Icon, badge.Description)
}

func (s *Store) UpdateBadge(ctx context.Context, badge core.BadgeSpec) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE badges SET badge_name = ?, badge_icon = ?, description = ? WHERE id = ?`),
		badge.Name, badge.Icon, badge.Description, badge.ID)
	if err != nil {
		return fmt.Errorf("update badge %d: %w", badge.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("badge %d not found", badge.ID)
	}
	return nil
}

// DeleteBadge removes the badge and its triggers in one transaction.
func (s *Store) DeleteBadge(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete badge %d: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM badge_triggers WHERE badge_id = ?`), id); err != nil {
		return fmt.Errorf("delete triggers of badge %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM badges WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete badge %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("badge %d not found", id)
	}
	return tx.Commit()
}

func (s *Store) InsertTrigger(ctx context.Context, badgeID int64, key string, value float64) (int64, error) {
	if _, err := core.NewTrigger(key, value); err != nil {
		return 0, err
	}
	return s.insertReturningID(ctx,
		`INSERT INTO badge_triggers (badge_id, trigger_key, trigger_value) VALUES (?, ?, ?)`,
		badgeID, key, value)
}

func (s *Store) DeleteTrigger(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM badge_triggers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete trigger %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trigger %d not found", id)
	}
	return nil
}

// insertReturningID papers over the dialect split: Postgres needs RETURNING,
// MySQL reports LastInsertId.
func (s *Store) insertReturningID(ctx context.Context, q string, args ...any) (int64, error) {
	if s.driver == DriverPostgres {
		var id int64
		if err := s.db.GetContext(ctx, &id, s.rebind(q+` RETURNING id`), args...); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return res.LastInsertId()
}

// ---- engine.ConfigStore ----

func (s *Store) GetConfig(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, s.rebind(
		`SELECT config_value FROM system_config WHERE config_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select config %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key string, value []byte) error {
	var q string
	switch s.driver {
	case DriverMySQL:
		q = `INSERT INTO system_config (config_key, config_value) VALUES (?, ?)
		     ON DUPLICATE KEY UPDATE config_value = VALUES(config_value)`
	default:
		q = `INSERT INTO system_config (config_key, config_value) VALUES (?, ?)
		     ON CONFLICT (config_key) DO UPDATE SET config_value = EXCLUDED.config_value`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(q), key, value); err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// ---- engine.ReviewLedger ----

func (s *Store) MarkProcessed(ctx context.Context, reviewID int64) (bool, error) {
	var q string
	switch s.driver {
	case DriverMySQL:
		q = `INSERT IGNORE INTO processed_reviews (review_id, processed_at) VALUES (?, ?)`
	default:
		q = `INSERT INTO processed_reviews (review_id, processed_at) VALUES (?, ?)
		     ON CONFLICT (review_id) DO NOTHING`
	}
	res, err := s.db.ExecContext(ctx, s.rebind(q), reviewID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark review %d processed: %w", reviewID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Unmark(ctx context.Context, reviewID int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM processed_reviews WHERE review_id = ?`), reviewID); err != nil {
		return fmt.Errorf("unmark review %d: %w", reviewID, err)
	}
	return nil
}

var (
	_ engine.UserStore    = (*Store)(nil)
	_ engine.ReviewStore  = (*Store)(nil)
	_ engine.OrderStore   = (*Store)(nil)
	_ engine.ScoreStore   = (*Store)(nil)
	_ engine.CatalogStore = (*Store)(nil)
	_ engine.CatalogAdmin = (*Store)(nil)
	_ engine.ConfigStore  = (*Store)(nil)
	_ engine.ReviewLedger = (*Store)(nil)
)
