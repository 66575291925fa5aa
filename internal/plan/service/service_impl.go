package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreateRequest) (*plandomain.SubscriptionPlan, error) {
	name := strings.TrimSpace(req.Name)
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if name == "" || currency == "" || req.Price < 0 || req.DurationDays < 1 {
		return nil, plandomain.ErrInvalidPlan
	}
	if req.CoinValueRatio < 0 || req.MaxCoinRedemptionPercent < 0 || req.MaxCoinRedemptionPercent > 100 || req.CoinsRequired < 0 {
		return nil, plandomain.ErrInvalidPlan
	}

	now := s.clock.Now()
	plan := plandomain.SubscriptionPlan{
		ID:                       s.genID.Generate(),
		Name:                     name,
		Description:              strings.TrimSpace(req.Description),
		Price:                    req.Price,
		Currency:                 currency,
		DurationDays:             req.DurationDays,
		CoinValueRatio:           req.CoinValueRatio,
		MaxCoinRedemptionPercent: req.MaxCoinRedemptionPercent,
		CoinsRequired:            req.CoinsRequired,
		Features:                 req.Features,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	s.log.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("name", plan.Name))
	return &plan, nil
}

func (s *Service) Update(ctx context.Context, req plandomain.UpdateRequest) (*plandomain.SubscriptionPlan, error) {
	updates := map[string]interface{}{"updated_at": s.clock.Now()}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, plandomain.ErrInvalidPlan
		}
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	result := s.db.WithContext(ctx).
		Model(&plandomain.SubscriptionPlan{}).
		Where("id = ?", req.ID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, plandomain.ErrPlanNotFound
	}
	return s.Get(ctx, req.ID)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*plandomain.SubscriptionPlan, error) {
	var plan plandomain.SubscriptionPlan
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, plandomain.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (s *Service) ListActive(ctx context.Context) ([]plandomain.SubscriptionPlan, error) {
	var plans []plandomain.SubscriptionPlan
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Service) ListAll(ctx context.Context) ([]plandomain.SubscriptionPlan, error) {
	var plans []plandomain.SubscriptionPlan
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
