package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stridehealth/stride/internal/clock"
	ledgerdomain "github.com/stridehealth/stride/internal/ledger/domain"
	ledgerrepository "github.com/stridehealth/stride/internal/ledger/repository"
	stepsdomain "github.com/stridehealth/stride/internal/steps/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupStepsService(t *testing.T, fake *clock.FakeClock) (stepsdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.UserCoinAccount{},
		&stepsdomain.StepsConfig{},
		&stepsdomain.StepsHistory{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		LedgerRepo: ledgerrepository.Provide(),
	})
	return svc, db, node
}

func activateConfig(t *testing.T, svc stepsdomain.Service, req stepsdomain.UpdateConfigRequest) {
	t.Helper()
	_, err := svc.UpdateConfig(context.Background(), req)
	require.NoError(t, err)
}

func TestActiveConfigProvisionsDefault(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, db, _ := setupStepsService(t, fake)

	cfg, err := svc.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 10000, cfg.ThresholdSteps)
	assert.EqualValues(t, 2, cfg.CoinsPerThreshold)
	assert.EqualValues(t, 6, cfg.MaxCoinsPerDay)
	assert.True(t, cfg.IsActive)

	var count int64
	require.NoError(t, db.Model(&stepsdomain.StepsConfig{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateConfigKeepsSingleActiveRow(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, db, _ := setupStepsService(t, fake)

	activateConfig(t, svc, stepsdomain.UpdateConfigRequest{
		ThresholdSteps:    5000,
		CoinsPerThreshold: 1,
		MaxCoinsPerDay:    4,
		CoinValueInRupees: 1,
		CoinValueInUSD:    1,
		ResetPolicy:       stepsdomain.ResetPolicyDaily,
	})
	activateConfig(t, svc, stepsdomain.UpdateConfigRequest{
		ThresholdSteps:    8000,
		CoinsPerThreshold: 2,
		MaxCoinsPerDay:    6,
		CoinValueInRupees: 1.5,
		CoinValueInUSD:    1.5,
		ResetPolicy:       stepsdomain.ResetPolicyDaily,
	})

	var active int64
	require.NoError(t, db.Model(&stepsdomain.StepsConfig{}).Where("is_active = ?", true).Count(&active).Error)
	assert.EqualValues(t, 1, active)

	cfg, err := svc.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8000, cfg.ThresholdSteps)
}

func TestReportThresholdCrossing(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, _, node := setupStepsService(t, fake)
	userID := node.Generate()
	ctx := context.Background()

	// Default config: threshold 10000, 2 coins per threshold, 6 per day.
	deltas := []int64{4000, 4000, 4000}
	wantAwarded := []int64{0, 0, 2}

	var last *stepsdomain.ReportResponse
	for i, delta := range deltas {
		resp, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: delta})
		require.NoError(t, err)
		assert.Equal(t, wantAwarded[i], resp.NewCoinsAwarded, "report %d", i)
		last = resp
	}

	assert.EqualValues(t, 2000, last.CurrentStepsSinceThreshold)
	assert.EqualValues(t, 1, last.ThresholdsCrossed)
	assert.EqualValues(t, 12000, last.TotalStepsToday)
	assert.EqualValues(t, 8000, last.StepsToNextThreshold)
}

func TestReportDailyCapBindsAwards(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, db, node := setupStepsService(t, fake)
	userID := node.Generate()
	ctx := context.Background()

	activateConfig(t, svc, stepsdomain.UpdateConfigRequest{
		ThresholdSteps:    1000,
		CoinsPerThreshold: 2,
		MaxCoinsPerDay:    6,
		CoinValueInRupees: 1.5,
		CoinValueInUSD:    1.5,
		ResetPolicy:       stepsdomain.ResetPolicyDaily,
	})

	var total int64
	for i := 0; i < 10; i++ {
		resp, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 1000})
		require.NoError(t, err)
		total += resp.NewCoinsAwarded
		assert.LessOrEqual(t, total, int64(6))
	}
	assert.EqualValues(t, 6, total)

	var account ledgerdomain.UserCoinAccount
	require.NoError(t, db.Where("user_id = ?", userID).First(&account).Error)
	assert.EqualValues(t, 6, account.CoinsEarnedToday)
	assert.EqualValues(t, 6, account.AvailableCoins)
}

func TestReportLazyDailyReset(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	svc, _, node := setupStepsService(t, fake)
	userID := node.Generate()
	ctx := context.Background()

	activateConfig(t, svc, stepsdomain.UpdateConfigRequest{
		ThresholdSteps:    1000,
		CoinsPerThreshold: 2,
		MaxCoinsPerDay:    4,
		CoinValueInRupees: 1.5,
		CoinValueInUSD:    1.5,
		ResetPolicy:       stepsdomain.ResetPolicyDaily,
	})

	// Exhaust the daily cap, carry a remainder of 500 steps.
	resp, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 2500})
	require.NoError(t, err)
	assert.EqualValues(t, 4, resp.NewCoinsAwarded)
	assert.EqualValues(t, 500, resp.CurrentStepsSinceThreshold)

	// Next day: counters reset lazily on the first report.
	fake.Advance(4 * time.Hour)
	resp, err = svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.NewCoinsAwarded)
	assert.EqualValues(t, 0, resp.CurrentStepsSinceThreshold)
	assert.EqualValues(t, 1000, resp.TotalStepsToday)
}

func TestReportContinuousPolicyKeepsRemainder(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC))
	svc, _, node := setupStepsService(t, fake)
	userID := node.Generate()
	ctx := context.Background()

	activateConfig(t, svc, stepsdomain.UpdateConfigRequest{
		ThresholdSteps:    1000,
		CoinsPerThreshold: 1,
		MaxCoinsPerDay:    10,
		CoinValueInRupees: 1.5,
		CoinValueInUSD:    1.5,
		ResetPolicy:       stepsdomain.ResetPolicyContinuous,
	})

	resp, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 700})
	require.NoError(t, err)
	assert.EqualValues(t, 700, resp.CurrentStepsSinceThreshold)

	// Remainder survives the day boundary under the continuous policy.
	fake.Advance(4 * time.Hour)
	resp, err = svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 400})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.NewCoinsAwarded)
	assert.EqualValues(t, 100, resp.CurrentStepsSinceThreshold)
}

func TestReportRejectsNegativeDelta(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, _, node := setupStepsService(t, fake)

	_, err := svc.Report(context.Background(), stepsdomain.ReportRequest{UserID: node.Generate(), Steps: -1})
	require.ErrorIs(t, err, stepsdomain.ErrInvalidSteps)
}

func TestHistoryAccumulatesPerDay(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	svc, _, node := setupStepsService(t, fake)
	userID := node.Generate()
	ctx := context.Background()

	for _, delta := range []int64{3000, 2000} {
		_, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: delta})
		require.NoError(t, err)
	}
	fake.Advance(24 * time.Hour)
	_, err := svc.Report(ctx, stepsdomain.ReportRequest{UserID: userID, Steps: 1000})
	require.NoError(t, err)

	resp, err := svc.History(ctx, stepsdomain.HistoryRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, resp.Days, 2)
	// Newest first.
	assert.EqualValues(t, 1000, resp.Days[0].Steps)
	assert.EqualValues(t, 5000, resp.Days[1].Steps)
}
