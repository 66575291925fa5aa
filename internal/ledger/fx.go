package ledger

import (
	"github.com/stridehealth/stride/internal/ledger/repository"
	"github.com/stridehealth/stride/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
