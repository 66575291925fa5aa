package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stridehealth/stride/internal/clock"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	obsmetrics "github.com/stridehealth/stride/internal/observability/metrics"
	redemptiondomain "github.com/stridehealth/stride/internal/redemption/domain"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	"github.com/stridehealth/stride/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerRepo ledgerdomain.Repository
	StepsSvc   stepsdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerRepo ledgerdomain.Repository
	stepsSvc   stepsdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) redemptiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("redemption.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerRepo: p.LedgerRepo,
		stepsSvc:   p.StepsSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req redemptiondomain.CreateRequest) (*redemptiondomain.CoinRedemption, error) {
	if req.CoinsRequested < 1 || req.AmountRequested < 0 || strings.TrimSpace(req.RequestType) == "" {
		return nil, redemptiondomain.ErrInvalidRequest
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := s.clock.Now()
	redemption := redemptiondomain.CoinRedemption{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		CoinsRequested:  req.CoinsRequested,
		AmountRequested: req.AmountRequested,
		Currency:        currency,
		Status:          redemptiondomain.RedemptionStatusPending,
		RequestType:     strings.TrimSpace(req.RequestType),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		PaymentDetails:  strings.TrimSpace(req.PaymentDetails),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.ledgerRepo.GetOrCreate(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}
		if account.RedeemBlocked {
			return redemptiondomain.ErrRedeemBlocked
		}

		if account.RedeemedLimitPerDay > 0 {
			var todayCount int64
			err := tx.Model(&redemptiondomain.CoinRedemption{}).
				Where("user_id = ? AND created_at >= ? AND status IN ?",
					req.UserID,
					dayStart(now),
					[]redemptiondomain.RedemptionStatus{
						redemptiondomain.RedemptionStatusPending,
						redemptiondomain.RedemptionStatusApproved,
					}).
				Count(&todayCount).Error
			if err != nil {
				return err
			}
			if todayCount >= int64(account.RedeemedLimitPerDay) {
				return redemptiondomain.ErrDailyLimitReached
			}
		}

		// Reserve fails with ErrInsufficientBalance when the balance is
		// too low; nothing has been written yet at that point.
		if err := s.ledgerRepo.Reserve(ctx, tx, req.UserID, req.CoinsRequested); err != nil {
			return err
		}

		if err := tx.Create(&redemption).Error; err != nil {
			return err
		}

		return s.appendHistory(ctx, tx, &redemption, "created", redemption.CoinsRequested, redemption.AmountRequested, "Redemption request created by user", req.UserID)
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerMutation("redemption_create")
	}
	return &redemption, nil
}

func (s *Service) Approve(ctx context.Context, req redemptiondomain.ApproveRequest) (*redemptiondomain.CoinRedemption, error) {
	var approved redemptiondomain.CoinRedemption

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		redemption, err := s.get(ctx, tx, req.ID)
		if err != nil {
			return err
		}

		coins := redemption.CoinsRequested
		if req.CoinsApproved != nil {
			coins = *req.CoinsApproved
		}
		amount := redemption.AmountRequested
		if req.AmountApproved != nil {
			amount = *req.AmountApproved
		}
		if coins < 1 || coins > redemption.CoinsRequested || amount < 0 {
			return redemptiondomain.ErrInvalidRequest
		}

		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE coin_redemptions
			 SET status = ?, coins_approved = ?, amount_approved = ?,
			     admin_notes = ?, processed_by = ?, processed_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			redemptiondomain.RedemptionStatusApproved, coins, amount,
			strings.TrimSpace(req.Notes), req.AdminID, now, now,
			req.ID, redemptiondomain.RedemptionStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return redemptiondomain.ErrStateConflict
		}

		if err := s.ledgerRepo.SettleReserved(ctx, tx, redemption.UserID, coins); err != nil {
			return err
		}
		// Approving fewer coins than were reserved returns the remainder.
		if leftover := redemption.CoinsRequested - coins; leftover > 0 {
			if err := s.ledgerRepo.Release(ctx, tx, redemption.UserID, leftover); err != nil {
				return err
			}
		}

		if err := s.appendHistory(ctx, tx, redemption, "approved", coins, amount, notesOr(req.Notes, "Redemption request approved"), req.AdminID); err != nil {
			return err
		}

		updated, err := s.get(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		approved = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordLedgerMutation("redemption_approve")
	}
	return &approved, nil
}

func (s *Service) Reject(ctx context.Context, req redemptiondomain.ReviewRequest) (*redemptiondomain.CoinRedemption, error) {
	return s.terminate(ctx, req.ID, redemptiondomain.RedemptionStatusRejected, req.AdminID, notesOr(req.Notes, "Redemption request rejected"))
}

func (s *Service) Cancel(ctx context.Context, req redemptiondomain.CancelRequest) (*redemptiondomain.CoinRedemption, error) {
	if !req.Admin {
		redemption, err := s.Get(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if redemption.UserID != req.ActorID {
			return nil, redemptiondomain.ErrNotFound
		}
	}
	return s.terminate(ctx, req.ID, redemptiondomain.RedemptionStatusCancelled, req.ActorID, "Redemption request cancelled")
}

// terminate releases the reservation and moves a pending request into a
// terminal state. Reject and cancel share these semantics.
func (s *Service) terminate(ctx context.Context, id snowflake.ID, status redemptiondomain.RedemptionStatus, actorID snowflake.ID, notes string) (*redemptiondomain.CoinRedemption, error) {
	var out redemptiondomain.CoinRedemption

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		redemption, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE coin_redemptions
			 SET status = ?, processed_by = ?, processed_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			status, actorID, now, now,
			id, redemptiondomain.RedemptionStatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return redemptiondomain.ErrStateConflict
		}

		if err := s.ledgerRepo.Release(ctx, tx, redemption.UserID, redemption.CoinsRequested); err != nil {
			return err
		}

		if err := s.appendHistory(ctx, tx, redemption, string(status), redemption.CoinsRequested, redemption.AmountRequested, notes, actorID); err != nil {
			return err
		}

		updated, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		out = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*redemptiondomain.CoinRedemption, error) {
	return s.get(ctx, s.db, id)
}

func (s *Service) get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*redemptiondomain.CoinRedemption, error) {
	var redemption redemptiondomain.CoinRedemption
	err := conn.WithContext(ctx).Where("id = ?", id).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, redemptiondomain.ErrNotFound
		}
		return nil, err
	}
	return &redemption, nil
}

func (s *Service) List(ctx context.Context, req redemptiondomain.ListRequest) (*redemptiondomain.ListResponse, error) {
	query := s.db.WithContext(ctx).Model(&redemptiondomain.CoinRedemption{})
	if req.UserID != nil {
		query = query.Where("user_id = ?", *req.UserID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.RequestType != "" {
		query = query.Where("request_type = ?", req.RequestType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var redemptions []redemptiondomain.CoinRedemption
	err := query.Order("created_at DESC").
		Offset(req.Page.Offset()).
		Limit(req.Page.PageSize()).
		Find(&redemptions).Error
	if err != nil {
		return nil, err
	}

	var stats redemptiondomain.Statistics
	err = query.Select(
		`COUNT(id) AS total_requests,
		 COALESCE(SUM(coins_requested), 0) AS total_coins_requested,
		 COALESCE(SUM(amount_requested), 0) AS total_amount_requested,
		 COALESCE(SUM(coins_approved), 0) AS total_coins_approved,
		 COALESCE(SUM(amount_approved), 0) AS total_amount_approved`,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	return &redemptiondomain.ListResponse{
		PageInfo:    pagination.BuildPageInfo(req.Page, total),
		Redemptions: redemptions,
		Statistics:  stats,
	}, nil
}

func (s *Service) HistoryOf(ctx context.Context, redemptionID snowflake.ID) ([]redemptiondomain.CoinRedemptionHistory, error) {
	var rows []redemptiondomain.CoinRedemptionHistory
	err := s.db.WithContext(ctx).
		Where("redemption_id = ?", redemptionID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) Calculate(ctx context.Context, coins int64) (*redemptiondomain.Quote, error) {
	if coins < 0 {
		return nil, redemptiondomain.ErrInvalidRequest
	}
	cfg, err := s.stepsSvc.ActiveConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &redemptiondomain.Quote{
		Coins:        coins,
		AmountRupees: float64(coins) * cfg.CoinValueInRupees,
		AmountUSD:    float64(coins) * cfg.CoinValueInUSD,
		CoinValueINR: cfg.CoinValueInRupees,
		CoinValueUSD: cfg.CoinValueInUSD,
	}, nil
}

func (s *Service) appendHistory(ctx context.Context, tx *gorm.DB, redemption *redemptiondomain.CoinRedemption, action string, coins int64, amount float64, notes string, performedBy snowflake.ID) error {
	return tx.WithContext(ctx).Create(&redemptiondomain.CoinRedemptionHistory{
		ID:           s.genID.Generate(),
		UserID:       redemption.UserID,
		RedemptionID: redemption.ID,
		Action:       action,
		CoinsAmount:  coins,
		AmountValue:  amount,
		Currency:     redemption.Currency,
		Notes:        notes,
		PerformedBy:  performedBy,
		CreatedAt:    s.clock.Now(),
	}).Error
}

func notesOr(notes, fallback string) string {
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		return trimmed
	}
	return fallback
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
