package gateways

import (
	// Go Internal Packages
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	// Local Packages
	errors "remit-orchestrator/errors"
	models "remit-orchestrator/models"

	// External Packages
	"github.com/shopspring/decimal"
)

// statusResponse is the common poll-status reply shape of the partner APIs.
type statusResponse struct {
	Status          string  `json:"status"`
	Detail          string  `json:"detail"`
	FailureCode     string  `json:"failure_code"`
	Rate            string  `json:"rate"`
	ConvertedAmount string  `json:"converted_amount"`
	DeliveredAt     *string `json:"delivered_at"`
}

func (r *statusResponse) toOutcome() (models.LegOutcome, error) {
	outcome := models.LegOutcome{
		Status:      models.OutcomeStatus(r.Status),
		Detail:      r.Detail,
		FailureCode: r.FailureCode,
	}
	if r.Rate != "" {
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return outcome, errors.E(errors.Internal, "bad rate in partner response", err)
		}
		outcome.Rate = rate
	}
	if r.ConvertedAmount != "" {
		amount, err := decimal.NewFromString(r.ConvertedAmount)
		if err != nil {
			return outcome, errors.E(errors.Internal, "bad amount in partner response", err)
		}
		outcome.ConvertedAmount = amount
	}
	if r.DeliveredAt != nil {
		at, err := time.Parse(time.RFC3339, *r.DeliveredAt)
		if err != nil {
			return outcome, errors.E(errors.Internal, "bad delivery time in partner response", err)
		}
		outcome.DeliveredAt = &at
	}
	return outcome, nil
}

type httpGateway struct {
	client  *http.Client
	baseURL string
}

func newHTTPGateway(endpoint string, timeout time.Duration) httpGateway {
	return httpGateway{client: &http.Client{Timeout: timeout}, baseURL: endpoint}
}

func (g *httpGateway) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.E(errors.Internal, "failed to encode partner request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.E(errors.Internal, "failed to build partner request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *httpGateway) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return errors.E(errors.Internal, "failed to build partner request", err)
	}
	return g.do(req, out)
}

func (g *httpGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return errors.E(errors.Unavailable, "partner request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.E(errors.Unavailable, fmt.Sprintf("partner returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return errors.E(errors.Invalid, fmt.Sprintf("partner rejected request with %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.E(errors.Internal, "failed to decode partner response", err)
	}
	return nil
}

// HTTPCollection talks to the domestic collection partner.
type HTTPCollection struct {
	httpGateway
}

func NewHTTPCollection(endpoint string, timeout time.Duration) *HTTPCollection {
	return &HTTPCollection{newHTTPGateway(endpoint, timeout)}
}

func (g *HTTPCollection) Initiate(ctx context.Context, txID string, amount decimal.Decimal) (string, error) {
	var resp struct {
		Reference string `json:"reference"`
	}
	body := map[string]string{"transaction_id": txID, "amount": amount.String()}
	if err := g.postJSON(ctx, "/collections", body, &resp); err != nil {
		return "", err
	}
	return resp.Reference, nil
}

func (g *HTTPCollection) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	var resp statusResponse
	if err := g.getJSON(ctx, "/collections/"+url.PathEscape(legReference), &resp); err != nil {
		return models.LegOutcome{}, err
	}
	return resp.toOutcome()
}

// HTTPConversion talks to the currency-conversion partner.
type HTTPConversion struct {
	httpGateway
}

func NewHTTPConversion(endpoint string, timeout time.Duration) *HTTPConversion {
	return &HTTPConversion{newHTTPGateway(endpoint, timeout)}
}

func (g *HTTPConversion) QuoteRate(ctx context.Context, sourceCurrency, targetCurrency string) (decimal.Decimal, error) {
	var resp struct {
		Rate string `json:"rate"`
	}
	path := fmt.Sprintf("/rates?source=%s&target=%s", url.QueryEscape(sourceCurrency), url.QueryEscape(targetCurrency))
	if err := g.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Rate)
}

func (g *HTTPConversion) Initiate(ctx context.Context, txID string, amount decimal.Decimal, sourceCurrency, targetCurrency string) (string, error) {
	var resp struct {
		Reference string `json:"reference"`
	}
	body := map[string]string{
		"transaction_id":  txID,
		"amount":          amount.String(),
		"source_currency": sourceCurrency,
		"target_currency": targetCurrency,
	}
	if err := g.postJSON(ctx, "/conversions", body, &resp); err != nil {
		return "", err
	}
	return resp.Reference, nil
}

func (g *HTTPConversion) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	var resp statusResponse
	if err := g.getJSON(ctx, "/conversions/"+url.PathEscape(legReference), &resp); err != nil {
		return models.LegOutcome{}, err
	}
	return resp.toOutcome()
}

// HTTPDisbursement talks to the cross-border disbursement partner.
type HTTPDisbursement struct {
	httpGateway
}

func NewHTTPDisbursement(endpoint string, timeout time.Duration) *HTTPDisbursement {
	return &HTTPDisbursement{newHTTPGateway(endpoint, timeout)}
}

func (g *HTTPDisbursement) Initiate(ctx context.Context, txID string, amount decimal.Decimal, targetCurrency string, recipient models.RecipientDetails) (string, error) {
	var resp struct {
		Reference string `json:"reference"`
	}
	body := map[string]any{
		"transaction_id":  txID,
		"amount":          amount.String(),
		"target_currency": targetCurrency,
		"recipient":       recipient,
	}
	if err := g.postJSON(ctx, "/transfers", body, &resp); err != nil {
		return "", err
	}
	return resp.Reference, nil
}

func (g *HTTPDisbursement) PollStatus(ctx context.Context, legReference string) (models.LegOutcome, error) {
	var resp statusResponse
	if err := g.getJSON(ctx, "/transfers/"+url.PathEscape(legReference), &resp); err != nil {
		return models.LegOutcome{}, err
	}
	return resp.toOutcome()
}
