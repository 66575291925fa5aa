package pricing

import (
	"testing"

	plandomain "github.com/stridehealth/stride/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	base := plandomain.SubscriptionPlan{
		Price:                    500,
		Currency:                 "INR",
		DurationDays:             30,
		CoinValueRatio:           1.5,
		MaxCoinRedemptionPercent: 30,
	}

	tests := []struct {
		name       string
		plan       plandomain.SubscriptionPlan
		requested  int64
		available  int64
		wantCoins  int64
		wantDisc   float64
		wantPrice  float64
		wantMethod string
		wantErr    error
	}{
		{
			name:       "no coins requested",
			plan:       base,
			requested:  0,
			available:  1000,
			wantCoins:  0,
			wantDisc:   0,
			wantPrice:  500,
			wantMethod: PaymentMethodGateway,
		},
		{
			name:      "capped by redemption percent",
			plan:      base,
			requested: 1000,
			available: 1000,
			// floor(500 * 30 / 100 / 1.5) = 100 coins, 150 discount.
			wantCoins:  100,
			wantDisc:   150,
			wantPrice:  350,
			wantMethod: PaymentMethodGateway,
		},
		{
			name:       "capped by balance",
			plan:       base,
			requested:  1000,
			available:  40,
			wantCoins:  40,
			wantDisc:   60,
			wantPrice:  440,
			wantMethod: PaymentMethodGateway,
		},
		{
			name:       "capped by request",
			plan:       base,
			requested:  10,
			available:  1000,
			wantCoins:  10,
			wantDisc:   15,
			wantPrice:  485,
			wantMethod: PaymentMethodGateway,
		},
		{
			name: "zero ratio disables discount",
			plan: func() plandomain.SubscriptionPlan {
				p := base
				p.CoinValueRatio = 0
				return p
			}(),
			requested:  1000,
			available:  1000,
			wantCoins:  0,
			wantDisc:   0,
			wantPrice:  500,
			wantMethod: PaymentMethodGateway,
		},
		{
			name: "zero redemption percent disables discount",
			plan: func() plandomain.SubscriptionPlan {
				p := base
				p.MaxCoinRedemptionPercent = 0
				return p
			}(),
			requested:  1000,
			available:  1000,
			wantCoins:  0,
			wantDisc:   0,
			wantPrice:  500,
			wantMethod: PaymentMethodGateway,
		},
		{
			name: "fully coin funded",
			plan: plandomain.SubscriptionPlan{
				Price:                    150,
				DurationDays:             30,
				CoinValueRatio:           1.5,
				MaxCoinRedemptionPercent: 100,
			},
			requested:  100,
			available:  100,
			wantCoins:  100,
			wantDisc:   150,
			wantPrice:  0,
			wantMethod: PaymentMethodCoins,
		},
		{
			name: "coins required not met",
			plan: func() plandomain.SubscriptionPlan {
				p := base
				p.CoinsRequired = 50
				return p
			}(),
			requested: 1000,
			available: 20,
			wantErr:   ErrCoinsRequired,
		},
		{
			name: "coins required met",
			plan: func() plandomain.SubscriptionPlan {
				p := base
				p.CoinsRequired = 50
				return p
			}(),
			requested:  60,
			available:  1000,
			wantCoins:  60,
			wantDisc:   90,
			wantPrice:  410,
			wantMethod: PaymentMethodGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := Price(&tt.plan, tt.requested, tt.available)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCoins, quote.CoinsUsed)
			assert.InDelta(t, tt.wantDisc, quote.CoinDiscount, 1e-9)
			assert.InDelta(t, tt.wantPrice, quote.FinalPrice, 1e-9)
			assert.Equal(t, tt.wantMethod, quote.PaymentMethod)
		})
	}
}

func TestPriceIsDeterministic(t *testing.T) {
	plan := plandomain.SubscriptionPlan{
		Price:                    999,
		DurationDays:             30,
		CoinValueRatio:           2,
		MaxCoinRedemptionPercent: 50,
	}
	first, err := Price(&plan, 300, 200)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Price(&plan, 300, 200)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
