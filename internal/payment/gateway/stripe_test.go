package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*stripeGateway, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &stripeGateway{
		secretKey: "sk_test_123",
		baseURL:   server.URL,
		client:    &http.Client{Timeout: time.Second},
		log:       zap.NewNop(),
	}, server
}

func TestCreatePaymentIntent(t *testing.T) {
	var gotAuth, gotIdempotency, gotAmount, gotDonation string

	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_intents" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotAmount = r.PostForm.Get("amount")
		gotDonation = r.PostForm.Get("metadata[donation_id]")

		json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_123",
			"status":        "requires_payment_method",
			"client_secret": "pi_123_secret",
		})
	})

	result := g.CreatePaymentIntent(context.Background(), CreateIntentRequest{
		Amount:         5425,
		Currency:       "USD",
		DonationID:     "42",
		IdempotencyKey: "donation-42",
	})
	if !result.Success {
		t.Fatalf("expected success, got message %q", result.Message)
	}
	if result.IntentID != "pi_123" || result.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotIdempotency != "donation-42" {
		t.Fatalf("unexpected idempotency key %q", gotIdempotency)
	}
	if gotAmount != "5425" {
		t.Fatalf("unexpected amount %q", gotAmount)
	}
	if gotDonation != "42" {
		t.Fatalf("unexpected donation metadata %q", gotDonation)
	}
}

func TestCreatePaymentIntentProviderError(t *testing.T) {
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
			},
		})
	})

	result := g.CreatePaymentIntent(context.Background(), CreateIntentRequest{Amount: 100})
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Message != "Your card was declined." {
		t.Fatalf("expected provider message, got %q", result.Message)
	}
}

func TestConfirmPaymentRequiresSucceededStatus(t *testing.T) {
	status := "processing"
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/payment_intents/") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pi_123", "status": status})
	})

	result := g.ConfirmPayment(context.Background(), "pi_123")
	if result.Success {
		t.Fatalf("expected failure for status %q", status)
	}
	if !strings.Contains(result.Message, "processing") {
		t.Fatalf("expected status in message, got %q", result.Message)
	}

	status = "succeeded"
	result = g.ConfirmPayment(context.Background(), "pi_123")
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
}

func TestRefundPaymentPartial(t *testing.T) {
	var gotAmount, gotIntent string
	g, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refunds" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotAmount = r.PostForm.Get("amount")
		gotIntent = r.PostForm.Get("payment_intent")
		json.NewEncoder(w).Encode(map[string]any{"id": "re_1", "status": "succeeded"})
	})

	amount := int64(1200)
	result := g.RefundPayment(context.Background(), "pi_123", &amount)
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if gotAmount != "1200" || gotIntent != "pi_123" {
		t.Fatalf("unexpected form values amount=%q intent=%q", gotAmount, gotIntent)
	}

	gotAmount = "unset"
	if result := g.RefundPayment(context.Background(), "pi_123", nil); !result.Success {
		t.Fatalf("expected full refund success, got %q", result.Message)
	}
	if gotAmount != "" {
		t.Fatalf("expected no amount for full refund, got %q", gotAmount)
	}
}

func TestDisabledGatewayMakesNoCalls(t *testing.T) {
	g := NewDisabled()

	if g.Enabled() {
		t.Fatalf("expected disabled")
	}
	for _, result := range []Result{
		g.CreatePaymentIntent(context.Background(), CreateIntentRequest{Amount: 100}),
		g.ConfirmPayment(context.Background(), "pi_123"),
		g.RefundPayment(context.Background(), "pi_123", nil),
	} {
		if result.Success {
			t.Fatalf("expected failure result")
		}
		if result.Message != "payment gateway not configured" {
			t.Fatalf("unexpected message %q", result.Message)
		}
	}
}
