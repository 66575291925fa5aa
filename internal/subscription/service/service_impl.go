package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/stridehealth/stride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo subscriptiondomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo subscriptiondomain.Repository
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("subscription.service"),
		repo: p.Repo,
	}
}

func (s *Service) Active(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	return s.repo.ActiveByUser(ctx, s.db, userID)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID) ([]subscriptiondomain.UserSubscription, error) {
	return s.repo.HistoryByUser(ctx, s.db, userID)
}

func (s *Service) Cancel(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	sub, err := s.repo.Cancel(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription cancelled",
		zap.String("user_id", userID.String()),
		zap.String("subscription_id", sub.ID.String()),
	)
	return sub, nil
}
