package payment

import (
	"github.com/smallbiznis/payroll-psp-core/internal/payment/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
