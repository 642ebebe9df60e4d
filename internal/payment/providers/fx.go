package providers

import (
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/ach"
	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/fednow"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/railclient"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/rtp"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/wire"
	"go.uber.org/fx"
)

// RailConfig groups the four rail adapters' base URLs and API keys; a zero
// BaseURL leaves an adapter out of the registry entirely.
type RailConfig struct {
	ACH    railclient.Config
	RTP    railclient.Config
	FedNow railclient.Config
	Wire   railclient.Config
}

func NewRegistryFromConfig(cfg RailConfig) *Registry {
	var entries []providerdomain.Provider
	if cfg.ACH.BaseURL != "" {
		entries = append(entries, ach.New(cfg.ACH))
	}
	if cfg.RTP.BaseURL != "" {
		entries = append(entries, rtp.New(cfg.RTP))
	}
	if cfg.FedNow.BaseURL != "" {
		entries = append(entries, fednow.New(cfg.FedNow))
	}
	if cfg.Wire.BaseURL != "" {
		entries = append(entries, wire.New(cfg.Wire))
	}
	return NewRegistry(entries...)
}

var Module = fx.Module("payment.providers",
	fx.Provide(NewRegistryFromConfig),
)
