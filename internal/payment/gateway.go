package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

type IntentRequest struct {
	Amount         money.Money
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ProviderIntentID string `json:"providerIntentId"`
	ClientSecret     string `json:"clientSecret"`
}

// Gateway creates payment intents with an external provider. Two calls with
// the same IdempotencyKey must return the same intent.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// SandboxGateway derives intents from the idempotency key and never leaves
// the process.
type SandboxGateway struct{}

func (SandboxGateway) Name() string { return "sandbox" }

func (SandboxGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	sum := sha256.Sum256([]byte(req.IdempotencyKey))
	id := "pi_" + hex.EncodeToString(sum[:12])
	return Intent{
		ProviderIntentID: id,
		ClientSecret:     id + "_secret_" + hex.EncodeToString(sum[12:20]),
	}, nil
}

// HTTPGateway posts to a payment service: POST {base}/intents.
type HTTPGateway struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPGateway(baseURL string, client *http.Client) (*HTTPGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	return &HTTPGateway{base: u, client: client}, nil
}

func (g *HTTPGateway) Name() string { return "http" }

type createIntentBody struct {
	AmountMinor int64             `json:"amountMinor"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	body, err := json.Marshal(createIntentBody{
		AmountMinor: req.Amount.MinorUnits(),
		Currency:    req.Amount.Currency().Code,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("marshal intent request: %w", err)
	}

	u := g.base.ResolveReference(&url.URL{Path: "/intents"})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build intent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Intent{}, fmt.Errorf("create intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Intent{}, fmt.Errorf("create intent: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	if intent.ProviderIntentID == "" || intent.ClientSecret == "" {
		return Intent{}, fmt.Errorf("create intent: incomplete response")
	}
	return intent, nil
}
