package reconciliation

import (
	"github.com/smallbiznis/payroll-psp-core/internal/reconciliation/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
