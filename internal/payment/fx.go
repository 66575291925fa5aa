package payment

import (
	"github.com/stridehealth/stride/internal/payment/gateway"
	"github.com/stridehealth/stride/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		gateway.NewRazorpay,
		service.NewService,
	),
)
