package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrPlanNotFound = errors.New("plan_not_found")
	ErrInvalidPlan  = errors.New("invalid_plan")
)

type CreateRequest struct {
	Name                     string         `json:"name"`
	Description              string         `json:"description"`
	Price                    float64        `json:"price"`
	Currency                 string         `json:"currency"`
	DurationDays             int            `json:"duration_days"`
	CoinValueRatio           float64        `json:"coin_value_ratio"`
	MaxCoinRedemptionPercent float64        `json:"max_coin_redemption_percent"`
	CoinsRequired            int64          `json:"coins_required"`
	Features                 datatypes.JSON `json:"features"`
}

// UpdateRequest carries price-independent metadata and the activation flag.
// Pricing fields of a referenced plan stay immutable.
type UpdateRequest struct {
	ID          snowflake.ID `json:"-"`
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	IsActive    *bool        `json:"is_active"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*SubscriptionPlan, error)
	Update(ctx context.Context, req UpdateRequest) (*SubscriptionPlan, error)
	Get(ctx context.Context, id snowflake.ID) (*SubscriptionPlan, error)
	// ListActive returns plans available for purchase, cheapest first.
	ListActive(ctx context.Context) ([]SubscriptionPlan, error)
	ListAll(ctx context.Context) ([]SubscriptionPlan, error)
}
