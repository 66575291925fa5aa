package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	"github.com/stridehealth/stride/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) CreateActive(ctx context.Context, conn *gorm.DB, sub *subscriptiondomain.UserSubscription) error {
	sub.Status = subscriptiondomain.SubscriptionStatusActive
	if err := conn.WithContext(ctx).Create(sub).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.ErrAlreadySubscribed
		}
		return err
	}
	return nil
}

func (r *repo) ActiveByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	var sub subscriptiondomain.UserSubscription
	err := conn.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, subscriptiondomain.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repo) HistoryByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) ([]subscriptiondomain.UserSubscription, error) {
	var subs []subscriptiondomain.UserSubscription
	err := conn.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) Cancel(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	now := time.Now().UTC()
	result := conn.WithContext(ctx).Exec(
		`UPDATE user_subscriptions
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE user_id = ? AND status = ?`,
		subscriptiondomain.SubscriptionStatusCancelled, now, now,
		userID, subscriptiondomain.SubscriptionStatusActive,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, subscriptiondomain.ErrNotFound
	}

	var sub subscriptiondomain.UserSubscription
	err := conn.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, subscriptiondomain.SubscriptionStatusCancelled).
		Order("cancelled_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
