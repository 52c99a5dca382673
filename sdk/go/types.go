package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"incentivekit/core"
)

// UserState is the /users/{id} response: the stored profile plus the
// user's leaderboard rank when a board is configured server-side.
type UserState struct {
	Profile core.UserProfile `json:"profile"`
	Rank    int              `json:"rank,omitempty"`
}

// UserStats is the /users/{id}/stats response.
type UserStats struct {
	Stats        core.Stats         `json:"stats"`
	Degradations []core.Degradation `json:"degradations"`
}

// LeaderboardEntry is one row of the /leaderboard response.
type LeaderboardEntry struct {
	UserID core.UserID `json:"user_id"`
	Points int64       `json:"points"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// decodeOutcome accepts the statuses the process endpoints use for rejected
// runs, which still carry an Outcome body.
func decodeOutcome(resp *http.Response, out *core.Outcome) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusConflict, http.StatusUnprocessableEntity:
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return decodeJSON(resp, out)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("request failed: status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrInvalidUserID is returned when a user id is zero or negative.
var ErrInvalidUserID = errors.New("user id must be positive")
