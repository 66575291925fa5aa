package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	obsmetrics "github.com/stridehealth/stride/internal/observability/metrics"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	"github.com/stridehealth/stride/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Concurrent reports for the same user race on the step counters; the
// counter update is a compare-and-swap, so a loser just recomputes.
const maxReportAttempts = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerRepo ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerRepo ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) stepsdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("steps.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerRepo: p.LedgerRepo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ActiveConfig(ctx context.Context) (*stepsdomain.StepsConfig, error) {
	var cfg stepsdomain.StepsConfig
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	fresh := stepsdomain.DefaultConfig()
	fresh.ID = s.genID.Generate()
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		return nil, err
	}
	s.log.Info("provisioned default steps config", zap.String("config_id", fresh.ID.String()))
	return &fresh, nil
}

func (s *Service) UpdateConfig(ctx context.Context, req stepsdomain.UpdateConfigRequest) (*stepsdomain.StepsConfig, error) {
	if req.ThresholdSteps <= 0 || req.CoinsPerThreshold <= 0 || req.MaxCoinsPerDay <= 0 {
		return nil, stepsdomain.ErrInvalidSteps
	}
	switch req.ResetPolicy {
	case stepsdomain.ResetPolicyDaily, stepsdomain.ResetPolicyContinuous:
	default:
		return nil, stepsdomain.ErrInvalidSteps
	}

	now := s.clock.Now()
	cfg := stepsdomain.StepsConfig{
		ID:                s.genID.Generate(),
		ThresholdSteps:    req.ThresholdSteps,
		CoinsPerThreshold: req.CoinsPerThreshold,
		MaxCoinsPerDay:    req.MaxCoinsPerDay,
		CoinValueInRupees: req.CoinValueInRupees,
		CoinValueInUSD:    req.CoinValueInUSD,
		ResetPolicy:       req.ResetPolicy,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE steps_configs SET is_active = ?, updated_at = ? WHERE is_active = ?`,
			false, now, true,
		).Error; err != nil {
			return err
		}
		return tx.Create(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Service) Report(ctx context.Context, req stepsdomain.ReportRequest) (*stepsdomain.ReportResponse, error) {
	if req.Steps < 0 {
		return nil, stepsdomain.ErrInvalidSteps
	}

	cfg, err := s.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	var resp *stepsdomain.ReportResponse
	for attempt := 0; attempt < maxReportAttempts; attempt++ {
		resp, err = s.tryReport(ctx, req, cfg)
		if errors.Is(err, stepsdomain.ErrStaleCounters) {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if resp.NewCoinsAwarded > 0 && s.obsMetrics != nil {
		s.obsMetrics.RecordCoinsAwarded(resp.NewCoinsAwarded)
	}
	return resp, nil
}

func (s *Service) tryReport(ctx context.Context, req stepsdomain.ReportRequest, cfg *stepsdomain.StepsConfig) (*stepsdomain.ReportResponse, error) {
	var resp stepsdomain.ReportResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		account, err := s.ledgerRepo.GetOrCreate(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}

		if cfg.ResetPolicy == stepsdomain.ResetPolicyDaily && !sameDay(account.LastResetDate, now) {
			account, err = s.resetCounters(ctx, tx, req.UserID, now)
			if err != nil {
				return err
			}
		}

		sinceThreshold := account.CurrentStepsSinceThreshold + req.Steps
		crossed := sinceThreshold / cfg.ThresholdSteps
		potential := crossed * cfg.CoinsPerThreshold
		remainingToday := cfg.MaxCoinsPerDay - account.CoinsEarnedToday
		if remainingToday < 0 {
			remainingToday = 0
		}
		awarded := potential
		if awarded > remainingToday {
			awarded = remainingToday
		}
		remainder := sinceThreshold % cfg.ThresholdSteps

		result := tx.Exec(
			`UPDATE user_coin_accounts
			 SET current_steps_since_threshold = ?,
			     total_steps = total_steps + ?,
			     last_threshold = last_threshold + ?,
			     coins_earned_today = coins_earned_today + ?,
			     updated_at = ?
			 WHERE user_id = ?
			   AND current_steps_since_threshold = ?
			   AND coins_earned_today = ?`,
			remainder,
			req.Steps,
			crossed*cfg.ThresholdSteps,
			awarded,
			now,
			req.UserID,
			account.CurrentStepsSinceThreshold,
			account.CoinsEarnedToday,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return stepsdomain.ErrStaleCounters
		}

		if awarded > 0 {
			if err := s.ledgerRepo.Credit(ctx, tx, req.UserID, awarded); err != nil {
				return err
			}
		}

		todaySteps, err := s.upsertHistory(ctx, tx, req.UserID, now, req.Steps, awarded)
		if err != nil {
			return err
		}

		resp = stepsdomain.ReportResponse{
			AcceptedSteps:              req.Steps,
			CurrentStepsSinceThreshold: remainder,
			ThresholdsCrossed:          crossed,
			NewCoinsAwarded:            awarded,
			TotalCoins:                 account.TotalCoinsEarned + awarded,
			TotalStepsToday:            todaySteps,
			StepsToNextThreshold:       cfg.ThresholdSteps - remainder,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// resetCounters zeroes the step counters lazily on the first report of a new
// calendar day. The update is conditional on the stored reset date so only
// one of two concurrent reports performs the reset; the loser sees zero rows
// and retries against the fresh state.
func (s *Service) resetCounters(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) (*ledgerdomain.UserCoinAccount, error) {
	result := tx.Exec(
		`UPDATE user_coin_accounts
		 SET current_steps_since_threshold = 0,
		     coins_earned_today = 0,
		     last_threshold = 0,
		     last_reset_date = ?,
		     updated_at = ?
		 WHERE user_id = ? AND last_reset_date < ?`,
		now, now, userID, dayStart(now),
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, stepsdomain.ErrStaleCounters
	}
	return s.ledgerRepo.Get(ctx, tx, userID)
}

func (s *Service) upsertHistory(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time, steps, coins int64) (int64, error) {
	day := dayStart(now)
	row := stepsdomain.StepsHistory{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Date:        day,
		Steps:       steps,
		CoinsEarned: coins,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"steps":        gorm.Expr("steps_history.steps + ?", steps),
			"coins_earned": gorm.Expr("steps_history.coins_earned + ?", coins),
			"updated_at":   now,
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, err
	}

	var today stepsdomain.StepsHistory
	if err := tx.Where("user_id = ? AND date = ?", userID, day).First(&today).Error; err != nil {
		return 0, err
	}
	return today.Steps, nil
}

func (s *Service) History(ctx context.Context, req stepsdomain.HistoryRequest) (*stepsdomain.HistoryResponse, error) {
	query := s.db.WithContext(ctx).Model(&stepsdomain.StepsHistory{}).Where("user_id = ?", req.UserID)
	if req.From != nil {
		query = query.Where("date >= ?", dayStart(*req.From))
	}
	if req.To != nil {
		query = query.Where("date <= ?", dayStart(*req.To))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var days []stepsdomain.StepsHistory
	err := query.Order("date DESC").
		Offset(req.Page.Offset()).
		Limit(req.Page.PageSize()).
		Find(&days).Error
	if err != nil {
		return nil, err
	}

	return &stepsdomain.HistoryResponse{
		PageInfo: pagination.BuildPageInfo(req.Page, total),
		Days:     days,
	}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
