// Package railclient is the shared HTTP transport the four rail adapters
// (ach, rtp, fednow, wire) build on: a minimal JSON-over-HTTP client posting
// to a configurable base URL. None of the donor's adapters call out over the
// network (they only verify inbound webhook signatures), so there is no
// pack example for an outbound rail client to ground against; this is the
// thin stdlib net/http client the Provider Abstraction's "no network I/O
// outside the boundary" requirement (spec §4.6) pushes down to.
package railclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/smallbiznis/payroll-psp-core/pkg/money"
)

type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg}
}

type SubmitRequest struct {
	InstructionID  string         `json:"instruction_id"`
	Amount         string         `json:"amount"`
	Currency       string         `json:"currency"`
	IdempotencyKey string         `json:"idempotency_key"`
	Purpose        string         `json:"purpose"`
	PayeeType      string         `json:"payee_type"`
	PayeeRefID     string         `json:"payee_ref_id"`
	Direction      string         `json:"direction"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type SubmitResponse struct {
	Accepted          bool   `json:"accepted"`
	ProviderRequestID string `json:"provider_request_id"`
	Message           string `json:"message"`
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return SubmitResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("%s: submit: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	var out SubmitResponse
	if resp.StatusCode >= 300 {
		return SubmitResponse{Accepted: false, Message: fmt.Sprintf("%s: http %d", c.cfg.Name, resp.StatusCode)}, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SubmitResponse{}, fmt.Errorf("%s: decode submit response: %w", c.cfg.Name, err)
	}
	return out, nil
}

type SettlementRecord struct {
	ExternalTraceID string         `json:"external_trace_id"`
	EffectiveDate   time.Time      `json:"effective_date"`
	Status          string         `json:"status"`
	Amount          string         `json:"amount"`
	Currency        string         `json:"currency"`
	RawPayload      map[string]any `json:"raw_payload"`
}

func (c *Client) Reconcile(ctx context.Context, date time.Time) ([]SettlementRecord, error) {
	endpoint := c.cfg.BaseURL + "/settlements?date=" + url.QueryEscape(date.Format("2006-01-02"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: reconcile: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: reconcile: http %d", c.cfg.Name, resp.StatusCode)
	}
	var out []SettlementRecord
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode reconcile response: %w", c.cfg.Name, err)
	}
	return out, nil
}

func ParseAmount(s string) (money.Amount, error) {
	return money.NewFromString(s)
}

func SubmitRequestFrom(instructionID, amount, currency, idempotencyKey, purpose, payeeType, payeeRefID, direction string, metadata map[string]any) SubmitRequest {
	return SubmitRequest{
		InstructionID:  instructionID,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
		Purpose:        purpose,
		PayeeType:      payeeType,
		PayeeRefID:     payeeRefID,
		Direction:      direction,
		Metadata:       metadata,
	}
}
