package steps

import (
	"github.com/stridehealth/stride/internal/steps/service"
	"go.uber.org/fx"
)

var Module = fx.Module("steps.service",
	fx.Provide(service.NewService),
)
