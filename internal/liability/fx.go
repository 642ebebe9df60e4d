package liability

import (
	"github.com/smallbiznis/payroll-psp-core/internal/liability/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/liability/service"
	"go.uber.org/fx"
)

var Module = fx.Module("liability.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
