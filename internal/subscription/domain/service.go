package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("subscription_not_found")
	ErrAlreadySubscribed = errors.New("subscription_already_active")
)

// Repository methods take the database handle explicitly so callers can
// compose them into a larger transaction. The payment reconciler creates the
// subscription row inside the same transaction that debits the ledger.
type Repository interface {
	// CreateActive inserts an active subscription. The partial unique index
	// on (user_id) WHERE status = 'active' closes the check-then-act race;
	// a duplicate key maps to ErrAlreadySubscribed.
	CreateActive(ctx context.Context, db *gorm.DB, sub *UserSubscription) error
	ActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserSubscription, error)
	HistoryByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]UserSubscription, error)
	// Cancel transitions active → cancelled; zero rows means no active
	// subscription exists.
	Cancel(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserSubscription, error)
}

type Service interface {
	Active(ctx context.Context, userID snowflake.ID) (*UserSubscription, error)
	History(ctx context.Context, userID snowflake.ID) ([]UserSubscription, error)
	Cancel(ctx context.Context, userID snowflake.ID) (*UserSubscription, error)
}
