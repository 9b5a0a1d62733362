// Package gateway wraps the outbound payment provider API used to create,
// confirm and refund charges. A misconfigured gateway degrades to failure
// results instead of errors so callers never branch on wiring.
package gateway

import "context"

// Result is the uniform outcome of a gateway call. Provider rejections are
// reported as Success=false with the provider's message, not as an error.
type Result struct {
	Success      bool   `json:"success"`
	IntentID     string `json:"intent_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
}

// CreateIntentRequest describes a charge to initiate.
type CreateIntentRequest struct {
	Amount     int64
	Currency   string
	DonationID string
	CampaignID string
	// IdempotencyKey dedupes retried create calls at the provider.
	IdempotencyKey string
}

type Gateway interface {
	Enabled() bool
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) Result
	ConfirmPayment(ctx context.Context, intentID string) Result
	RefundPayment(ctx context.Context, intentID string, amount *int64) Result
}

const disabledMessage = "payment gateway not configured"

type disabledGateway struct{}

// NewDisabled returns a gateway that fails every call without network I/O.
func NewDisabled() Gateway {
	return disabledGateway{}
}

func (disabledGateway) Enabled() bool { return false }

func (disabledGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) Result {
	return Result{Success: false, Message: disabledMessage}
}

func (disabledGateway) ConfirmPayment(ctx context.Context, intentID string) Result {
	return Result{Success: false, Message: disabledMessage}
}

func (disabledGateway) RefundPayment(ctx context.Context, intentID string, amount *int64) Result {
	return Result{Success: false, Message: disabledMessage}
}
