package ledger

import (
	"github.com/smallbiznis/payroll-psp-core/internal/ledger/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
