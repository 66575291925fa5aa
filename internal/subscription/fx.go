package subscription

import (
	"github.com/stridehealth/stride/internal/subscription/repository"
	"github.com/stridehealth/stride/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
