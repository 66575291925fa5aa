package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/pkg/db/pagination"
)

var (
	ErrNotFound          = errors.New("redemption_not_found")
	ErrStateConflict     = errors.New("redemption_state_conflict")
	ErrRedeemBlocked     = errors.New("redemption_blocked")
	ErrDailyLimitReached = errors.New("redemption_daily_limit_reached")
	ErrInvalidRequest    = errors.New("invalid_redemption_request")
)

type CreateRequest struct {
	UserID          snowflake.ID `json:"-"`
	CoinsRequested  int64        `json:"coins_requested"`
	AmountRequested float64      `json:"amount_requested"`
	Currency        string       `json:"currency"`
	RequestType     string       `json:"request_type"`
	PaymentMethod   string       `json:"payment_method"`
	PaymentDetails  string       `json:"payment_details"`
}

type ApproveRequest struct {
	ID             snowflake.ID
	AdminID        snowflake.ID
	CoinsApproved  *int64
	AmountApproved *float64
	Notes          string
}

type ReviewRequest struct {
	ID      snowflake.ID
	AdminID snowflake.ID
	Notes   string
}

type CancelRequest struct {
	ID      snowflake.ID
	ActorID snowflake.ID
	// Admin cancellations skip the ownership check.
	Admin bool
}

type ListRequest struct {
	UserID      *snowflake.ID
	Status      RedemptionStatus
	RequestType string
	Page        pagination.Pagination
}

type Statistics struct {
	TotalRequests        int64   `json:"total_requests"`
	TotalCoinsRequested  int64   `json:"total_coins_requested"`
	TotalAmountRequested float64 `json:"total_amount_requested"`
	TotalCoinsApproved   int64   `json:"total_coins_approved"`
	TotalAmountApproved  float64 `json:"total_amount_approved"`
}

type ListResponse struct {
	pagination.PageInfo
	Redemptions []CoinRedemption `json:"redemptions"`
	Statistics  Statistics       `json:"statistics"`
}

type Quote struct {
	Coins        int64   `json:"coins"`
	AmountRupees float64 `json:"amount_in_rupees"`
	AmountUSD    float64 `json:"amount_in_usd"`
	CoinValueINR float64 `json:"coin_value_in_rupees"`
	CoinValueUSD float64 `json:"coin_value_in_usd"`
}

type Service interface {
	// Create validates balance and daily limits, reserves the requested
	// coins and records the pending request.
	Create(ctx context.Context, req CreateRequest) (*CoinRedemption, error)
	// Approve settles the reservation; only fires while the request is
	// still pending.
	Approve(ctx context.Context, req ApproveRequest) (*CoinRedemption, error)
	Reject(ctx context.Context, req ReviewRequest) (*CoinRedemption, error)
	Cancel(ctx context.Context, req CancelRequest) (*CoinRedemption, error)
	Get(ctx context.Context, id snowflake.ID) (*CoinRedemption, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	HistoryOf(ctx context.Context, redemptionID snowflake.ID) ([]CoinRedemptionHistory, error)
	// Calculate converts a coin amount into cash value using the active
	// steps configuration.
	Calculate(ctx context.Context, coins int64) (*Quote, error)
}
