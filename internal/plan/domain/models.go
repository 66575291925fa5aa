// Package domain contains the subscription plan catalog models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionPlan is one purchasable plan. Pricing fields are snapshotted
// into payment intents at order time, so edits here never retroactively
// change an in-flight purchase.
type SubscriptionPlan struct {
	ID                       snowflake.ID   `json:"id" gorm:"primaryKey"`
	Name                     string         `json:"name" gorm:"type:text;not null"`
	Description              string         `json:"description" gorm:"type:text;not null;default:''"`
	Price                    float64        `json:"price" gorm:"not null"`
	Currency                 string         `json:"currency" gorm:"type:text;not null"`
	DurationDays             int            `json:"duration_days" gorm:"not null"`
	CoinValueRatio           float64        `json:"coin_value_ratio" gorm:"not null;default:0"`
	MaxCoinRedemptionPercent float64        `json:"max_coin_redemption_percent" gorm:"not null;default:0"`
	CoinsRequired            int64          `json:"coins_required" gorm:"not null;default:0"`
	Features                 datatypes.JSON `json:"features" gorm:"type:jsonb"`
	IsActive                 bool           `json:"is_active" gorm:"not null;default:false;index"`
	CreatedAt                time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }
