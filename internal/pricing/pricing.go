// Package pricing computes the coin discount applied to a subscription
// purchase. Quote is deterministic and side-effect free; its output is
// snapshotted into the payment intent so reconciliation always settles the
// figures agreed at order time.
package pricing

import (
	"errors"
	"math"

	plandomain "github.com/stridehealth/stride/internal/plan/domain"
)

var ErrCoinsRequired = errors.New("plan_coins_required_not_met")

// PaymentMethodGateway and PaymentMethodCoins name how the final price is
// collected. A zero final price bypasses the gateway entirely.
const (
	PaymentMethodGateway = "gateway"
	PaymentMethodCoins   = "coins"
)

type Quote struct {
	CoinsUsed     int64   `json:"coins_used"`
	CoinDiscount  float64 `json:"coin_discount"`
	FinalPrice    float64 `json:"final_price"`
	PaymentMethod string  `json:"payment_method"`
}

// Price applies the plan's coin redemption rules to a purchase request.
//
// When coin_value_ratio or max_coin_redemption_percent is zero (or
// negative) the discount branch is disabled and the full plan price is
// charged. Otherwise usable coins are capped by the request, the user's
// balance and the plan's redemption ceiling.
func Price(plan *plandomain.SubscriptionPlan, requestedCoins, availableCoins int64) (Quote, error) {
	quote := Quote{
		FinalPrice:    plan.Price,
		PaymentMethod: PaymentMethodGateway,
	}

	if plan.CoinValueRatio > 0 && plan.MaxCoinRedemptionPercent > 0 {
		maxCoinsAllowed := int64(math.Floor(plan.Price * plan.MaxCoinRedemptionPercent / 100 / plan.CoinValueRatio))
		usable := min3(requestedCoins, availableCoins, maxCoinsAllowed)
		if usable < 0 {
			usable = 0
		}
		quote.CoinsUsed = usable
		quote.CoinDiscount = float64(usable) * plan.CoinValueRatio
		quote.FinalPrice = math.Max(0, plan.Price-quote.CoinDiscount)
	}

	if plan.CoinsRequired > 0 && quote.CoinsUsed < plan.CoinsRequired {
		return Quote{}, ErrCoinsRequired
	}

	if quote.FinalPrice == 0 {
		quote.PaymentMethod = PaymentMethodCoins
	}
	return quote, nil
}

func min3(a, b, c int64) int64 {
	return min(a, min(b, c))
}
