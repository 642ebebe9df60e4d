package events

import (
	"github.com/smallbiznis/payroll-psp-core/internal/events/repository"
	"github.com/smallbiznis/payroll-psp-core/internal/events/service"
	"go.uber.org/fx"
)

var Module = fx.Module("events.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
