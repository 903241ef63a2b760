package payment

import (
	"strings"
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

type Status string

const (
	StatusRequiresPayment Status = "requires_payment"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Reported is a status as the gateway reports it. Only "completed" and
// "failed" settle an order; anything else is stored as an intermediate state
// unless it is Reserved.
type Reported string

const (
	ReportedCompleted Reported = "completed"
	ReportedFailed    Reported = "failed"
)

func ParseReported(s string) Reported {
	return Reported(strings.ToLower(strings.TrimSpace(s)))
}

func (r Reported) Terminal() bool {
	return r == ReportedCompleted || r == ReportedFailed
}

// Reserved reports whether r is an intermediate status that would be stored
// under a name the engine itself assigns to payments.
func (r Reported) Reserved() bool {
	if r.Terminal() {
		return false
	}
	switch Status(r) {
	case StatusRequiresPayment, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

type Payment struct {
	ID                    string      `json:"paymentId"`
	OrderID               string      `json:"orderId"`
	Provider              string      `json:"provider"`
	ProviderIntentID      string      `json:"providerIntentId"`
	ProviderTransactionID string      `json:"providerTransactionId,omitempty"`
	ClientSecret          string      `json:"clientSecret"`
	Status                Status      `json:"status"`
	Amount                money.Money `json:"amount"`
	CreatedAt             time.Time   `json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}
