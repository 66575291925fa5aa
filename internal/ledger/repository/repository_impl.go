package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	"github.com/stridehealth/stride/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) GetOrCreate(ctx context.Context, conn *gorm.DB, userID snowflake.ID, now time.Time) (*ledgerdomain.UserCoinAccount, error) {
	account, err := r.Get(ctx, conn, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ledgerdomain.ErrAccountNotFound) {
		return nil, err
	}

	now = now.UTC()
	fresh := &ledgerdomain.UserCoinAccount{
		UserID:        userID,
		LastResetDate: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := conn.WithContext(ctx).Create(fresh).Error; err != nil {
		// A concurrent caller may have inserted the row first.
		if db.IsDuplicateKeyErr(err) {
			return r.Get(ctx, conn, userID)
		}
		return nil, err
	}
	return fresh, nil
}

func (r *repo) Get(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*ledgerdomain.UserCoinAccount, error) {
	var account ledgerdomain.UserCoinAccount
	err := conn.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledgerdomain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) Credit(ctx context.Context, conn *gorm.DB, userID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_coin_accounts
		 SET total_coins_earned = total_coins_earned + ?,
		     available_coins = available_coins + ?,
		     updated_at = ?
		 WHERE user_id = ?`,
		amount, amount, time.Now().UTC(), userID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrAccountNotFound
	}
	return nil
}

func (r *repo) Debit(ctx context.Context, conn *gorm.DB, userID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	now := time.Now().UTC()
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_coin_accounts
		 SET available_coins = available_coins - ?,
		     redeemed_coins = redeemed_coins + ?,
		     last_redeem_at = ?,
		     updated_at = ?
		 WHERE user_id = ? AND available_coins >= ?`,
		amount, amount, now, now, userID, amount,
	)
	return r.guarded(ctx, conn, userID, result)
}

func (r *repo) Reserve(ctx context.Context, conn *gorm.DB, userID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_coin_accounts
		 SET available_coins = available_coins - ?,
		     pending_redeem = pending_redeem + ?,
		     updated_at = ?
		 WHERE user_id = ? AND available_coins >= ?`,
		amount, amount, time.Now().UTC(), userID, amount,
	)
	return r.guarded(ctx, conn, userID, result)
}

func (r *repo) Release(ctx context.Context, conn *gorm.DB, userID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_coin_accounts
		 SET pending_redeem = pending_redeem - ?,
		     available_coins = available_coins + ?,
		     updated_at = ?
		 WHERE user_id = ? AND pending_redeem >= ?`,
		amount, amount, time.Now().UTC(), userID, amount,
	)
	return r.guarded(ctx, conn, userID, result)
}

func (r *repo) SettleReserved(ctx context.Context, conn *gorm.DB, userID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	now := time.Now().UTC()
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_coin_accounts
		 SET pending_redeem = pending_redeem - ?,
		     redeemed_coins = redeemed_coins + ?,
		     last_redeem_at = ?,
		     updated_at = ?
		 WHERE user_id = ? AND pending_redeem >= ?`,
		amount, amount, now, now, userID, amount,
	)
	return r.guarded(ctx, conn, userID, result)
}

// guarded distinguishes a missing row from a failed balance condition after a
// conditional update matched nothing.
func (r *repo) guarded(ctx context.Context, conn *gorm.DB, userID snowflake.ID, result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, conn, userID); err != nil {
		return err
	}
	return ledgerdomain.ErrInsufficientBalance
}
