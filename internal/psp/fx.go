package psp

import (
	"github.com/smallbiznis/payroll-psp-core/internal/psp/service"
	"go.uber.org/fx"
)

var Module = fx.Module("psp.service",
	fx.Provide(service.NewService),
)
