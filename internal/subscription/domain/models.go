// Package domain contains the user subscription models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// UserSubscription is one purchased plan period. At most one active row per
// user, enforced by the partial unique index ux_user_subscriptions_active.
type UserSubscription struct {
	ID              snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID          snowflake.ID       `json:"user_id" gorm:"not null;index"`
	PlanID          snowflake.ID       `json:"plan_id" gorm:"not null"`
	PaymentIntentID *snowflake.ID      `json:"payment_intent_id"`
	Status          SubscriptionStatus `json:"status" gorm:"type:text;not null;index"`
	PaymentStatus   string             `json:"payment_status" gorm:"type:text;not null"`
	StartDate       time.Time          `json:"start_date" gorm:"not null"`
	EndDate         time.Time          `json:"end_date" gorm:"not null"`
	CoinsUsed       int64              `json:"coins_used" gorm:"not null;default:0"`
	CoinDiscount    float64            `json:"coin_discount" gorm:"not null;default:0"`
	FinalPrice      float64            `json:"final_price" gorm:"not null"`
	CancelledAt     *time.Time         `json:"cancelled_at"`
	CreatedAt       time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserSubscription) TableName() string { return "user_subscriptions" }
