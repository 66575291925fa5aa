package redemption

import (
	"github.com/stridehealth/stride/internal/redemption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(service.NewService),
)
