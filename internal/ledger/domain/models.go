// Package domain contains the coin ledger model and its contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserCoinAccount is the authoritative per-user coin balance. One row per
// user, shared by step ingestion, redemptions and subscription purchases.
//
// Invariant: available_coins >= 0 and
// total_coins_earned == available_coins + redeemed_coins + pending_redeem,
// except across a daily reset which zeroes the step counters together.
type UserCoinAccount struct {
	UserID           snowflake.ID `json:"user_id" gorm:"primaryKey"`
	TotalCoinsEarned int64        `json:"total_coins_earned" gorm:"not null;default:0"`
	AvailableCoins   int64        `json:"available_coins" gorm:"not null;default:0"`
	RedeemedCoins    int64        `json:"redeemed_coins" gorm:"not null;default:0"`
	PendingRedeem    int64        `json:"pending_redeem" gorm:"not null;default:0"`

	CurrentStepsSinceThreshold int64     `json:"current_steps_since_threshold" gorm:"not null;default:0"`
	TotalSteps                 int64     `json:"total_steps" gorm:"not null;default:0"`
	LastThreshold              int64     `json:"last_threshold" gorm:"not null;default:0"`
	CoinsEarnedToday           int64     `json:"coins_earned_today" gorm:"not null;default:0"`
	LastResetDate              time.Time `json:"last_reset_date" gorm:"not null"`

	RedeemBlocked       bool       `json:"redeem_blocked" gorm:"not null;default:false"`
	BlockReason         string     `json:"block_reason" gorm:"type:text;not null;default:''"`
	RedeemedLimitPerDay int        `json:"redeemed_limit_per_day" gorm:"not null;default:0"`
	LastRedeemAt        *time.Time `json:"last_redeem_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserCoinAccount) TableName() string { return "user_coin_accounts" }
