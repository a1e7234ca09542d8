package payment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusCreated = "created"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

const DefaultCurrency = "INR"

// Webhook events that change a payment.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Payment is one gateway order and, once settled, the payment made against
// it. Amount is in the smallest currency unit.
type Payment struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	OrderID       string     `json:"order_id"`
	PaymentID     *string    `json:"payment_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Signature     *string    `json:"-"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CreateOrderRequest struct {
	Amount        int64      `json:"amount"`
	Currency      *string    `json:"currency"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
}

// OrderResponse carries what a checkout page needs to open the gateway.
type OrderResponse struct {
	OrderID  string   `json:"order_id"`
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	KeyID    string   `json:"key_id"`
	Payment  *Payment `json:"payment"`
}

type VerifyRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// WebhookEvent is the subset of a gateway webhook body that is acted on.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

// WebhookResult reports whether an event changed a stored payment.
type WebhookResult struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id,omitempty"`
	Applied bool   `json:"applied"`
}
