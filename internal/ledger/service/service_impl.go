package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	obsmetrics "github.com/stridehealth/stride/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (*ledgerdomain.UserCoinAccount, error) {
	return s.repo.GetOrCreate(ctx, s.db, userID, s.clock.Now())
}

func (s *Service) Credit(ctx context.Context, userID snowflake.ID, amount int64) error {
	return s.mutate(ctx, "credit", userID, amount, s.repo.Credit)
}

func (s *Service) Debit(ctx context.Context, userID snowflake.ID, amount int64) error {
	return s.mutate(ctx, "debit", userID, amount, s.repo.Debit)
}

func (s *Service) Reserve(ctx context.Context, userID snowflake.ID, amount int64) error {
	return s.mutate(ctx, "reserve", userID, amount, s.repo.Reserve)
}

func (s *Service) Release(ctx context.Context, userID snowflake.ID, amount int64) error {
	return s.mutate(ctx, "release", userID, amount, s.repo.Release)
}

func (s *Service) SettleReserved(ctx context.Context, userID snowflake.ID, amount int64) error {
	return s.mutate(ctx, "settle", userID, amount, s.repo.SettleReserved)
}

type mutation func(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) error

func (s *Service) mutate(ctx context.Context, operation string, userID snowflake.ID, amount int64, fn mutation) error {
	if err := fn(ctx, s.db, userID, amount); err != nil {
		return err
	}
	s.log.Debug("ledger mutation",
		zap.String("operation", operation),
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerMutation(operation)
	}
	return nil
}
