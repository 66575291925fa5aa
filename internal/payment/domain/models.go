// Package domain contains the payment intent model and reconciliation
// contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IntentStatus is the payment intent lifecycle state. Transitions are
// monotonic: pending → authorized, pending|authorized → completed or failed.
// completed and failed are terminal.
type IntentStatus string

const (
	IntentStatusPending    IntentStatus = "pending"
	IntentStatusAuthorized IntentStatus = "authorized"
	IntentStatusCompleted  IntentStatus = "completed"
	IntentStatusFailed     IntentStatus = "failed"
)

// PaymentIntent is one attempted gateway order. Pricing figures are
// snapshotted at order time; reconciliation settles these values, never a
// re-derived quote.
type PaymentIntent struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID `json:"user_id" gorm:"not null;index"`
	PlanID           snowflake.ID `json:"plan_id" gorm:"not null"`
	GatewayOrderID   string       `json:"gateway_order_id" gorm:"type:text;not null;default:'';index"`
	GatewayPaymentID string       `json:"gateway_payment_id" gorm:"type:text;not null;default:''"`
	Amount           float64      `json:"amount" gorm:"not null"`
	Currency         string       `json:"currency" gorm:"type:text;not null"`
	Status           IntentStatus `json:"status" gorm:"type:text;not null;index"`
	CoinsUsed        int64        `json:"coins_used" gorm:"not null;default:0"`
	CoinDiscount     float64      `json:"coin_discount" gorm:"not null;default:0"`
	PaymentMethod    string       `json:"payment_method" gorm:"type:text;not null"`
	FailureReason    string       `json:"failure_reason" gorm:"type:text;not null;default:''"`
	CompletedAt      *time.Time   `json:"completed_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentIntent) TableName() string { return "payment_intents" }
