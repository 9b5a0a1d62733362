package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	stripeAPIBase  = "https://api.stripe.com/v1"
	requestTimeout = 12 * time.Second
)

type stripeGateway struct {
	secretKey string
	accountID string
	baseURL   string
	client    *http.Client
	log       *zap.Logger
}

// NewStripe returns a gateway backed by the Stripe HTTP API.
func NewStripe(secretKey string, accountID string, log *zap.Logger) Gateway {
	return &stripeGateway{
		secretKey: strings.TrimSpace(secretKey),
		accountID: strings.TrimSpace(accountID),
		baseURL:   stripeAPIBase,
		client:    &http.Client{Timeout: requestTimeout},
		log:       log.Named("payment.gateway"),
	}
}

func (g *stripeGateway) Enabled() bool { return g.secretKey != "" }

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) Result {
	if !g.Enabled() {
		return Result{Success: false, Message: disabledMessage}
	}
	if req.Amount <= 0 {
		return Result{Success: false, Message: "amount must be positive"}
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.DonationID != "" {
		form.Set("metadata[donation_id]", req.DonationID)
	}
	if req.CampaignID != "" {
		form.Set("metadata[campaign_id]", req.CampaignID)
	}

	return g.call(ctx, http.MethodPost, "/payment_intents", form, req.IdempotencyKey)
}

func (g *stripeGateway) ConfirmPayment(ctx context.Context, intentID string) Result {
	if !g.Enabled() {
		return Result{Success: false, Message: disabledMessage}
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Result{Success: false, Message: "missing intent id"}
	}

	result := g.call(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(intentID), nil, "")
	if !result.Success {
		return result
	}
	if result.Status != "succeeded" {
		return Result{
			Success:  false,
			IntentID: result.IntentID,
			Status:   result.Status,
			Message:  fmt.Sprintf("payment not completed: %s", result.Status),
		}
	}
	return result
}

func (g *stripeGateway) RefundPayment(ctx context.Context, intentID string, amount *int64) Result {
	if !g.Enabled() {
		return Result{Success: false, Message: disabledMessage}
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Result{Success: false, Message: "missing intent id"}
	}
	if amount != nil && *amount <= 0 {
		return Result{Success: false, Message: "refund amount must be positive"}
	}

	form := url.Values{}
	form.Set("payment_intent", intentID)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(*amount, 10))
	}

	return g.call(ctx, http.MethodPost, "/refunds", form, "")
}

type stripeResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	ClientSecret string       `json:"client_secret"`
	Error        *stripeError `json:"error"`
}

type stripeError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *stripeGateway) call(ctx context.Context, method string, path string, form url.Values, idempotencyKey string) Result {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return Result{Success: false, Message: "failed to build provider request"}
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if g.accountID != "" {
		req.Header.Set("Stripe-Account", g.accountID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("provider request failed", zap.String("path", path), zap.Error(err))
		return Result{Success: false, Message: "payment provider unreachable"}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Success: false, Message: "failed to read provider response"}
	}

	var parsed stripeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		g.log.Warn("unparseable provider response", zap.String("path", path), zap.Int("status_code", resp.StatusCode))
		return Result{Success: false, Message: "unexpected provider response"}
	}

	if resp.StatusCode >= 400 || parsed.Error != nil {
		message := "payment provider rejected the request"
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return Result{Success: false, IntentID: parsed.ID, Message: message}
	}

	return Result{
		Success:      true,
		IntentID:     parsed.ID,
		ClientSecret: parsed.ClientSecret,
		Status:       parsed.Status,
	}
}
