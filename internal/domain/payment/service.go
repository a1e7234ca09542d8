// Package payment records gateway orders and settles them from checkout
// callbacks and webhooks.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/appointment"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/razorpay"
)

// maxAmount caps a single order at 5,00,000 INR in paise.
const maxAmount = 50_000_000

// Gateway is the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}

// Appointments resolves the appointment an order pays for, enforcing that
// the caller takes part in it.
type Appointments interface {
	Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	repo         Repository
	tx           db.Transactor
	gateway      Gateway
	appointments Appointments
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, tx db.Transactor, gateway Gateway, appointments Appointments, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		tx:           tx,
		gateway:      gateway,
		appointments: appointments,
		logger:       logger.With().Str("component", "payment").Logger(),
		now:          time.Now,
	}
}

// Config returns the public checkout settings.
func (s *Service) Config() map[string]interface{} {
	return map[string]interface{}{
		"key_id":   s.gateway.KeyID(),
		"currency": DefaultCurrency,
		"enabled":  s.gateway.KeyID() != "",
	}
}

func (s *Service) CreateOrder(ctx context.Context, caller auth.Identity, req CreateOrderRequest) (*OrderResponse, error) {
	if req.Amount <= 0 {
		return nil, apperr.Validation("amount must be greater than 0")
	}
	if req.Amount > maxAmount {
		return nil, apperr.Validation("amount must not exceed %d", maxAmount)
	}
	currency := DefaultCurrency
	if req.Currency != nil && strings.TrimSpace(*req.Currency) != "" {
		currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	if len(currency) != 3 {
		return nil, apperr.Validation("invalid currency %q", currency)
	}
	if req.AppointmentID != nil {
		a, err := s.appointments.Get(ctx, caller, *req.AppointmentID)
		if err != nil {
			return nil, err
		}
		if a.PatientID != caller.UserID {
			return nil, apperr.Forbidden("Only the patient can pay for this appointment")
		}
	}

	p := &Payment{
		ID:            uuid.New(),
		UserID:        caller.UserID,
		AppointmentID: req.AppointmentID,
		Amount:        req.Amount,
		Currency:      currency,
		Status:        StatusCreated,
	}
	notes := map[string]string{"payment_id": p.ID.String(), "user_id": caller.UserID.String()}
	if req.AppointmentID != nil {
		notes["appointment_id"] = req.AppointmentID.String()
	}
	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   p.Amount,
		Currency: p.Currency,
		Receipt:  "rcpt_" + strings.ReplaceAll(p.ID.String(), "-", "")[:20],
		Notes:    notes,
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("create gateway order: %w", err))
	}
	p.OrderID = order.ID
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperr.Wrap(fmt.Errorf("create payment: %w", err))
	}
	s.logger.Info().Str("order_id", p.OrderID).Int64("amount", p.Amount).Msg("payment order created")

	return &OrderResponse{
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		Currency: p.Currency,
		KeyID:    s.gateway.KeyID(),
		Payment:  p,
	}, nil
}

// Get returns the caller's payment for an order.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, orderID string) (*Payment, error) {
	p, err := s.repo.GetByOrderID(ctx, strings.TrimSpace(orderID))
	if errors.Is(err, db.ErrNotFound) || (err == nil && p.UserID != userID) {
		return nil, apperr.NotFound("Payment")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return p, nil
}

// Verify settles a checkout callback. Repeating a successful verification
// returns the stored payment unchanged.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, req VerifyRequest) (*Payment, error) {
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, apperr.Validation("order_id, payment_id and signature are required")
	}
	if !s.gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		s.logger.Warn().Str("order_id", orderID).Msg("payment signature mismatch")
		return nil, apperr.Validation("Invalid payment signature")
	}

	var out *Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByOrderIDForUpdate(ctx, orderID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && p.UserID != userID) {
			return apperr.NotFound("Payment")
		}
		if err != nil {
			return err
		}
		if p.Status == StatusPaid {
			if p.PaymentID != nil && *p.PaymentID == paymentID {
				out = p
				return nil
			}
			return apperr.Conflict("Order is already paid")
		}
		s.markPaid(p, paymentID)
		p.Signature = &signature
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Payment already recorded")
		}
		return nil, apperr.Wrap(err)
	}
	return out, nil
}

// HandleWebhook applies a signed gateway event. Unknown events and orders
// are acknowledged without changes so the gateway stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, apperr.Validation("Missing signature")
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.logger.Warn().Msg("webhook signature mismatch")
		return nil, apperr.Validation("Invalid signature")
	}
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperr.Validation("invalid webhook payload")
	}

	entity := evt.Payload.Payment.Entity
	res := &WebhookResult{Event: evt.Event, OrderID: entity.OrderID}
	if evt.Event != EventPaymentCaptured && evt.Event != EventPaymentFailed {
		s.logger.Info().Str("event", evt.Event).Msg("webhook event ignored")
		return res, nil
	}
	if entity.OrderID == "" || entity.ID == "" {
		return nil, apperr.Validation("webhook payment entity is incomplete")
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByOrderIDForUpdate(ctx, entity.OrderID)
		if errors.Is(err, db.ErrNotFound) {
			s.logger.Warn().Str("order_id", entity.OrderID).Msg("webhook for unknown order")
			return nil
		}
		if err != nil {
			return err
		}
		if !s.applyEvent(p, evt.Event, entity) {
			return nil
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		res.Applied = true
		return nil
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict("Payment already recorded")
		}
		return nil, apperr.Wrap(err)
	}
	return res, nil
}

// applyEvent moves p according to a webhook event and reports whether it
// changed. Paid is terminal.
func (s *Service) applyEvent(p *Payment, event string, entity PaymentEntity) bool {
	if p.Status == StatusPaid {
		if p.PaymentID == nil || *p.PaymentID != entity.ID {
			s.logger.Warn().Str("order_id", p.OrderID).Str("payment_id", entity.ID).Str("event", event).
				Msg("event for an order already paid by another payment")
		}
		return false
	}
	switch event {
	case EventPaymentCaptured:
		if entity.Amount != 0 && entity.Amount != p.Amount {
			s.logger.Warn().Str("order_id", p.OrderID).Int64("expected", p.Amount).Int64("captured", entity.Amount).
				Msg("captured amount does not match order")
			return false
		}
		s.markPaid(p, entity.ID)
		return true
	case EventPaymentFailed:
		if p.Status == StatusFailed && p.PaymentID != nil && *p.PaymentID == entity.ID {
			return false
		}
		p.Status = StatusFailed
		p.PaymentID = &entity.ID
		if entity.ErrorDescription != "" {
			reason := entity.ErrorDescription
			p.FailureReason = &reason
		}
		return true
	}
	return false
}

func (s *Service) markPaid(p *Payment, paymentID string) {
	now := s.now().UTC()
	p.Status = StatusPaid
	p.PaymentID = &paymentID
	p.FailureReason = nil
	p.PaidAt = &now
}
