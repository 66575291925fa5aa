// Package domain contains the coin redemption request models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RedemptionStatus is the lifecycle state of a redemption request. Only
// pending requests are mutable; the other states are terminal.
type RedemptionStatus string

const (
	RedemptionStatusPending   RedemptionStatus = "pending"
	RedemptionStatusApproved  RedemptionStatus = "approved"
	RedemptionStatusRejected  RedemptionStatus = "rejected"
	RedemptionStatusCancelled RedemptionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionStatusApproved || s == RedemptionStatusRejected || s == RedemptionStatusCancelled
}

// CoinRedemption is one user request to convert coins into cash.
type CoinRedemption struct {
	ID              snowflake.ID     `json:"id" gorm:"primaryKey"`
	UserID          snowflake.ID     `json:"user_id" gorm:"not null;index"`
	CoinsRequested  int64            `json:"coins_requested" gorm:"not null"`
	AmountRequested float64          `json:"amount_requested" gorm:"not null"`
	CoinsApproved   int64            `json:"coins_approved" gorm:"not null;default:0"`
	AmountApproved  float64          `json:"amount_approved" gorm:"not null;default:0"`
	Currency        string           `json:"currency" gorm:"type:text;not null"`
	Status          RedemptionStatus `json:"status" gorm:"type:text;not null;index"`
	RequestType     string           `json:"request_type" gorm:"type:text;not null"`
	PaymentMethod   string           `json:"payment_method" gorm:"type:text;not null;default:''"`
	PaymentDetails  string           `json:"payment_details" gorm:"type:text;not null;default:''"`
	AdminNotes      string           `json:"admin_notes" gorm:"type:text;not null;default:''"`
	ProcessedBy     *snowflake.ID    `json:"processed_by"`
	ProcessedAt     *time.Time       `json:"processed_at"`
	CreatedAt       time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CoinRedemption) TableName() string { return "coin_redemptions" }

// CoinRedemptionHistory is the append-only audit trail, one row per state
// transition. Rows are never updated or deleted.
type CoinRedemptionHistory struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID       snowflake.ID `json:"user_id" gorm:"not null;index"`
	RedemptionID snowflake.ID `json:"redemption_id" gorm:"not null;index"`
	Action       string       `json:"action" gorm:"type:text;not null"`
	CoinsAmount  int64        `json:"coins_amount" gorm:"not null"`
	AmountValue  float64      `json:"amount_value" gorm:"not null"`
	Currency     string       `json:"currency" gorm:"type:text;not null"`
	Notes        string       `json:"notes" gorm:"type:text;not null;default:''"`
	PerformedBy  snowflake.ID `json:"performed_by" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CoinRedemptionHistory) TableName() string { return "coin_redemption_history" }
