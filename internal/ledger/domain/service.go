package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound     = errors.New("coin_account_not_found")
	ErrInsufficientBalance = errors.New("insufficient_coin_balance")
	ErrInvalidAmount       = errors.New("invalid_coin_amount")
)

// Repository exposes the atomic balance primitives. Every mutation is a
// single conditional UPDATE so concurrent callers for the same user cannot
// observe or produce a negative balance. Methods take the database handle so
// callers can compose them into a larger transaction.
//
type Repository interface {
	// GetOrCreate returns the account, inserting a zeroed row on first use.
	// The caller supplies now so last_reset_date stays consistent with the
	// clock driving its day-boundary logic.
	GetOrCreate(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*UserCoinAccount, error)
	Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserCoinAccount, error)

	// Credit increases total_coins_earned and available_coins.
	Credit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error
	// Debit moves available -> redeemed, failing with ErrInsufficientBalance
	// when available_coins < amount.
	Debit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error
	// Reserve moves available -> pending under the same balance guard.
	Reserve(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error
	// Release moves pending -> available (redemption reject/cancel).
	Release(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error
	// SettleReserved moves pending -> redeemed (redemption approve).
	SettleReserved(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error
}

// Service is the ledger surface for callers that do not manage their own
// transaction.
type Service interface {
	Balance(ctx context.Context, userID snowflake.ID) (*UserCoinAccount, error)
	Credit(ctx context.Context, userID snowflake.ID, amount int64) error
	Debit(ctx context.Context, userID snowflake.ID, amount int64) error
	Reserve(ctx context.Context, userID snowflake.ID, amount int64) error
	Release(ctx context.Context, userID snowflake.ID, amount int64) error
	SettleReserved(ctx context.Context, userID snowflake.ID, amount int64) error
}
