package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateOrder(t *testing.T) {
	var got OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/v1/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"order_123","amount":50000,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer srv.Close()

	c := NewClient("rzp_test_key", "secret", WithBaseURL(srv.URL))
	order, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 50000, Currency: "INR", Receipt: "rcpt_1"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_123" || order.Amount != 50000 {
		t.Fatalf("unexpected order %+v", order)
	}
	if got.PaymentCapture != 1 {
		t.Error("orders should be auto-captured")
	}
}

func TestCreateOrder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))
	defer srv.Close()

	c := NewClient("k", "s", WithBaseURL(srv.URL))
	_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 1, Currency: "INR"})
	if err == nil || !strings.Contains(err.Error(), "amount exceeds maximum") {
		t.Fatalf("expected API error description, got %v", err)
	}
}

func TestCreateOrder_NotConfigured(t *testing.T) {
	_, err := NewClient("", "").CreateOrder(context.Background(), OrderRequest{Amount: 100})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	c := NewClient("k", "secret")
	sig := Sign([]byte("order_1|pay_1"), "secret")

	if !c.VerifyPaymentSignature("order_1", "pay_1", sig) {
		t.Error("valid signature rejected")
	}
	if c.VerifyPaymentSignature("order_1", "pay_2", sig) {
		t.Error("signature for another payment accepted")
	}
	if NewClient("k", "").VerifyPaymentSignature("order_1", "pay_1", Sign([]byte("order_1|pay_1"), "")) {
		t.Error("verification without a secret must fail")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	c := NewClient("k", "s", WithWebhookSecret("whsec"))

	if !c.VerifyWebhookSignature(body, Sign(body, "whsec")) {
		t.Error("valid webhook signature rejected")
	}
	if c.VerifyWebhookSignature(body, Sign(body, "s")) {
		t.Error("webhook signed with the API secret accepted")
	}
	if NewClient("k", "s").VerifyWebhookSignature(body, Sign(body, "")) {
		t.Error("verification without a webhook secret must fail")
	}
}
