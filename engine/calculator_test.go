package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incentivekit/adapters/memory"
	"incentivekit/core"
	"incentivekit/engine"
)

func intp(n int) *int { return &n }

// demoPointsConfig mirrors the shape stored under the points_config key.
const demoPointsConfig = `{
	"u2m_review": {
		"base": {"points": 50, "xp": 20},
		"high_score_bonus": {"min_avg": 8.0, "points": 25, "xp": 10},
		"text_bonus": {"min_len": 10, "points": 15, "xp": 5}
	},
	"order_complete": {"points": 5, "xp": 2},
	"first_order_bonus": {"points": 30, "xp": 15}
}`

func seedPointsConfig(t *testing.T, store *memory.Store) {
	t.Helper()
	require.NoError(t, store.SetConfig(context.Background(), engine.ConfigKeyPoints, []byte(demoPointsConfig)))
}

func TestCalculateFullBonusStack(t *testing.T) {
	store := memory.New()
	seedPointsConfig(t, store)
	store.PutReview(core.Review{
		ID:                1,
		CustomerUserID:    1,
		RatingAppearance:  intp(9),
		RatingFigure:      intp(9),
		RatingService:     intp(10),
		RatingAttitude:    intp(10),
		RatingEnvironment: intp(9),
		TextByUser:        "服务非常到位，环境也很干净。",
		ConfirmedByAdmin:  true,
	})

	calc := engine.NewCalculator(store, store, slog.Default())
	reward, deg, err := calc.Calculate(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, deg)
	assert.Equal(t, int64(90), reward.Points)
	assert.Equal(t, int64(35), reward.XP)
}

func TestCalculateBaseOnly(t *testing.T) {
	store := memory.New()
	seedPointsConfig(t, store)
	store.PutReview(core.Review{
		ID:               2,
		CustomerUserID:   1,
		RatingAppearance: intp(3),
		RatingFigure:     intp(4),
		RatingService:    intp(5),
		RatingAttitude:   intp(4),
		RatingEnvironment: intp(3),
		ConfirmedByAdmin: true,
	})

	calc := engine.NewCalculator(store, store, slog.Default())
	reward, deg, err := calc.Calculate(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, deg)
	assert.Equal(t, core.Reward{Points: 50, XP: 20}, reward)
}

func TestCalculateMissingReviewIsFatal(t *testing.T) {
	store := memory.New()
	seedPointsConfig(t, store)

	calc := engine.NewCalculator(store, store, slog.Default())
	_, _, err := calc.Calculate(context.Background(), 999)
	require.ErrorIs(t, err, core.ErrReviewNotFound)
}

func TestCalculateMissingConfigDegradesToZero(t *testing.T) {
	store := memory.New()
	store.PutReview(core.Review{ID: 3, CustomerUserID: 1, ConfirmedByAdmin: true})

	calc := engine.NewCalculator(store, store, slog.Default())
	reward, deg, err := calc.Calculate(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, deg)
	assert.Equal(t, core.StageReward, deg.Stage)
	assert.Equal(t, core.Reward{}, reward)
}

func TestCalculateMalformedConfigDegradesToZero(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.SetConfig(context.Background(), engine.ConfigKeyPoints, []byte("{not json")))
	store.PutReview(core.Review{ID: 4, CustomerUserID: 1, ConfirmedByAdmin: true})

	calc := engine.NewCalculator(store, store, slog.Default())
	reward, deg, err := calc.Calculate(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, deg)
	assert.Zero(t, reward.Points)
	assert.Zero(t, reward.XP)
}

type failingConfig struct{ engine.ConfigStore }

func (failingConfig) GetConfig(context.Context, string) ([]byte, error) {
	return nil, errors.New("config store down")
}

func TestRulesStoreFailureDegrades(t *testing.T) {
	store := memory.New()
	calc := engine.NewCalculator(store, failingConfig{}, slog.Default())
	cfg, deg := calc.Rules(context.Background())
	require.NotNil(t, deg)
	assert.Contains(t, deg.Reason, "unavailable")
	assert.Nil(t, cfg.U2MReview.Base)
	assert.Nil(t, cfg.OrderComplete)
}
