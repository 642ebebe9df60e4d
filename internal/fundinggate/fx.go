package fundinggate

import (
	"github.com/smallbiznis/payroll-psp-core/internal/fundinggate/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/fundinggate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fundinggate.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
