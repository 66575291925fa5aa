package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/pkg/db/pagination"
)

var (
	ErrConfigNotFound = errors.New("steps_config_not_found")
	ErrInvalidSteps   = errors.New("invalid_step_delta")
	ErrStaleCounters  = errors.New("stale_step_counters")
)

type ReportRequest struct {
	UserID   snowflake.ID `json:"user_id"`
	Device   string       `json:"device"`
	Platform string       `json:"platform"`
	Steps    int64        `json:"steps"`
	Source   string       `json:"source"`
}

type ReportResponse struct {
	AcceptedSteps              int64 `json:"accepted_steps"`
	CurrentStepsSinceThreshold int64 `json:"current_steps_since_threshold"`
	ThresholdsCrossed          int64 `json:"thresholds_crossed"`
	NewCoinsAwarded            int64 `json:"new_coins_awarded"`
	TotalCoins                 int64 `json:"total_coins"`
	TotalStepsToday            int64 `json:"total_steps_today"`
	StepsToNextThreshold       int64 `json:"steps_to_next_threshold"`
}

type UpdateConfigRequest struct {
	ThresholdSteps    int64       `json:"threshold_steps"`
	CoinsPerThreshold int64       `json:"coins_per_threshold"`
	MaxCoinsPerDay    int64       `json:"max_coins_per_day"`
	CoinValueInRupees float64     `json:"coin_value_in_rupees"`
	CoinValueInUSD    float64     `json:"coin_value_in_usd"`
	ResetPolicy       ResetPolicy `json:"reset_policy"`
}

type HistoryRequest struct {
	UserID snowflake.ID
	From   *time.Time
	To     *time.Time
	Page   pagination.Pagination
}

type HistoryResponse struct {
	pagination.PageInfo
	Days []StepsHistory `json:"days"`
}

type Service interface {
	// ActiveConfig returns the active configuration, provisioning the
	// default one when none exists.
	ActiveConfig(ctx context.Context) (*StepsConfig, error)
	// UpdateConfig activates a new configuration version and deactivates
	// every other row.
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*StepsConfig, error)
	// Report ingests a non-negative step delta, awards threshold coins and
	// updates the per-day history.
	Report(ctx context.Context, req ReportRequest) (*ReportResponse, error)
	History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
}
