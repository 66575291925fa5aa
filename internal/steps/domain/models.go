// Package domain contains persistence models for step tracking configuration
// and per-day step history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ResetPolicy controls when step counters roll over.
type ResetPolicy string

const (
	ResetPolicyDaily      ResetPolicy = "daily"
	ResetPolicyContinuous ResetPolicy = "continuous"
)

// StepsConfig is a versioned reward configuration. At most one row is active
// at a time; activating a new version deactivates all others.
type StepsConfig struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	ThresholdSteps    int64        `json:"threshold_steps" gorm:"not null"`
	CoinsPerThreshold int64        `json:"coins_per_threshold" gorm:"not null"`
	MaxCoinsPerDay    int64        `json:"max_coins_per_day" gorm:"not null"`
	CoinValueInRupees float64      `json:"coin_value_in_rupees" gorm:"not null"`
	CoinValueInUSD    float64      `json:"coin_value_in_usd" gorm:"not null"`
	ResetPolicy       ResetPolicy  `json:"reset_policy" gorm:"type:text;not null"`
	IsActive          bool         `json:"is_active" gorm:"not null;default:false;index"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StepsConfig) TableName() string { return "steps_configs" }

// DefaultConfig mirrors the values provisioned when no configuration exists.
func DefaultConfig() StepsConfig {
	return StepsConfig{
		ThresholdSteps:    10000,
		CoinsPerThreshold: 2,
		MaxCoinsPerDay:    6,
		CoinValueInRupees: 1.5,
		CoinValueInUSD:    1.5,
		ResetPolicy:       ResetPolicyContinuous,
		IsActive:          true,
	}
}

// StepsHistory is one row per user per calendar day.
type StepsHistory struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex:ux_steps_history_user_date,priority:1"`
	Date        time.Time    `json:"date" gorm:"not null;uniqueIndex:ux_steps_history_user_date,priority:2"`
	Steps       int64        `json:"steps" gorm:"not null;default:0"`
	CoinsEarned int64        `json:"coins_earned" gorm:"not null;default:0"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StepsHistory) TableName() string { return "steps_history" }
