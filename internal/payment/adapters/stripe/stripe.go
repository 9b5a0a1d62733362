package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	disputedomain "github.com/classfund/classfund/internal/payment/dispute/domain"
	paymentdomain "github.com/classfund/classfund/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "payment_intent.payment_failed":
		return a.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentFailed)
	case "charge.succeeded":
		return a.parseCharge(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "charge.refunded":
		return a.parseCharge(event, payload, paymentdomain.EventTypeRefunded)
	default:
		// Unrecognized types are recorded, never rejected.
		return &paymentdomain.PaymentEvent{
			Provider:          "stripe",
			ProviderEventID:   event.ID,
			ProviderEventType: strings.TrimSpace(event.Type),
			Type:              paymentdomain.EventTypeUnknown,
			OccurredAt:        timestamp(event.Created, 0),
			RawPayload:        payload,
		}, nil
	}
}

func (a *Adapter) ParseDispute(ctx context.Context, payload []byte) (*disputedomain.DisputeEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var disputeType string
	switch strings.TrimSpace(event.Type) {
	case "charge.dispute.created":
		disputeType = disputedomain.EventTypeDisputeCreated
	case "charge.dispute.funds_withdrawn":
		disputeType = disputedomain.EventTypeDisputeFundsWithdrawn
	case "charge.dispute.funds_reinstated":
		disputeType = disputedomain.EventTypeDisputeFundsReinstated
	case "charge.dispute.closed":
		disputeType = disputedomain.EventTypeDisputeClosed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var dispute stripeDispute
	if err := json.Unmarshal(event.Data.Object, &dispute); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(dispute.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	donationID, campaignID := parseMetadataIDs(dispute.Metadata)
	occurredAt := timestamp(dispute.Created, event.Created)
	return &disputedomain.DisputeEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		ProviderDisputeID: dispute.ID,
		ProviderIntentID:  strings.TrimSpace(dispute.PaymentIntent),
		Type:              disputeType,
		DonationID:        donationID,
		CampaignID:        campaignID,
		Amount:            dispute.Amount,
		Currency:          strings.ToLower(strings.TrimSpace(dispute.Currency)),
		Reason:            strings.TrimSpace(dispute.Reason),
		ProviderStatus:    strings.ToLower(strings.TrimSpace(dispute.Status)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Created          int64             `json:"created"`
	Metadata         map[string]any    `json:"metadata"`
	LastPaymentError *stripeChargeFail `json:"last_payment_error"`
}

type stripeChargeFail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stripeCharge struct {
	ID             string         `json:"id"`
	PaymentIntent  string         `json:"payment_intent"`
	Amount         int64          `json:"amount"`
	AmountRefunded int64          `json:"amount_refunded"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type stripeDispute struct {
	ID            string         `json:"id"`
	PaymentIntent string         `json:"payment_intent"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Reason        string         `json:"reason"`
	Status        string         `json:"status"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *Adapter) parsePaymentIntent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	amount := intent.Amount
	if eventType == paymentdomain.EventTypePaymentSucceeded && intent.AmountReceived > 0 {
		amount = intent.AmountReceived
	}

	var failureReason string
	if intent.LastPaymentError != nil {
		failureReason = strings.TrimSpace(intent.LastPaymentError.Message)
		if failureReason == "" {
			failureReason = strings.TrimSpace(intent.LastPaymentError.Code)
		}
	}

	donationID, campaignID := parseMetadataIDs(intent.Metadata)
	occurredAt := timestamp(intent.Created, event.Created)
	return &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		ProviderIntentID:  intent.ID,
		ProviderEventType: strings.TrimSpace(event.Type),
		Type:              eventType,
		DonationID:        donationID,
		CampaignID:        campaignID,
		Amount:            amount,
		Currency:          strings.ToLower(strings.TrimSpace(intent.Currency)),
		FailureReason:     failureReason,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) parseCharge(event stripeEvent, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	amount := charge.Amount
	if eventType == paymentdomain.EventTypeRefunded && charge.AmountRefunded > 0 {
		amount = charge.AmountRefunded
	}

	donationID, campaignID := parseMetadataIDs(charge.Metadata)
	occurredAt := timestamp(charge.Created, event.Created)
	return &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		ProviderIntentID:  strings.TrimSpace(charge.PaymentIntent),
		ProviderEventType: strings.TrimSpace(event.Type),
		Type:              eventType,
		DonationID:        donationID,
		CampaignID:        campaignID,
		Amount:            amount,
		Currency:          strings.ToLower(strings.TrimSpace(charge.Currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func parseMetadataIDs(metadata map[string]any) (*snowflake.ID, *snowflake.ID) {
	return parseMetadataID(metadata, "donation_id"), parseMetadataID(metadata, "campaign_id")
}

func parseMetadataID(metadata map[string]any, key string) *snowflake.ID {
	raw := readMetadataValue(metadata, key)
	if raw == "" {
		return nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
