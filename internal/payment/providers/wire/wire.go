// Package wire is the Wire rail adapter.
package wire

import (
	"context"
	"time"

	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
	"github.com/smallbiznis/payroll-psp-core/internal/payment/providers/railclient"
)

type Adapter struct {
	client *railclient.Client
}

func New(cfg railclient.Config) *Adapter {
	cfg.Name = "wire"
	return &Adapter{client: railclient.New(cfg)}
}

func (a *Adapter) Name() string { return "wire" }

func (a *Adapter) Capabilities() providerdomain.Capabilities {
	return providerdomain.Capabilities{Wire: true}
}

func (a *Adapter) Submit(ctx context.Context, payload providerdomain.SubmitPayload) (providerdomain.SubmitResult, error) {
	resp, err := a.client.Submit(ctx, railclient.SubmitRequestFrom(
		payload.InstructionID.String(), payload.Amount.String(), payload.Currency,
		payload.IdempotencyKey, payload.Purpose, payload.PayeeType, payload.PayeeRefID,
		payload.Direction, payload.Metadata,
	))
	if err != nil {
		return providerdomain.SubmitResult{}, err
	}
	return providerdomain.SubmitResult{Accepted: resp.Accepted, ProviderRequestID: resp.ProviderRequestID, Message: resp.Message}, nil
}

func (a *Adapter) Reconcile(ctx context.Context, date time.Time) ([]providerdomain.SettlementRecord, error) {
	records, err := a.client.Reconcile(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]providerdomain.SettlementRecord, 0, len(records))
	for _, r := range records {
		amount, err := railclient.ParseAmount(r.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, providerdomain.SettlementRecord{
			ExternalTraceID: r.ExternalTraceID,
			EffectiveDate:   r.EffectiveDate,
			Status:          r.Status,
			Amount:          amount,
			Currency:        r.Currency,
			RawPayload:      r.RawPayload,
		})
	}
	return out, nil
}
