package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/varad2005/AI-IS13-HealthNova/internal/domain/appointment"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/apperr"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/auth"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/db"
	"github.com/varad2005/AI-IS13-HealthNova/internal/platform/razorpay"
)

// -- Mock Repository --

type mockRepo struct {
	mu    sync.Mutex
	items map[string]*Payment
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[string]*Payment)}
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.OrderID] = &cp
	return nil
}

func (m *mockRepo) GetByOrderID(_ context.Context, orderID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[orderID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*Payment, error) {
	return m.GetByOrderID(ctx, orderID)
}

func (m *mockRepo) Update(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.OrderID]; !ok {
		return db.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.items[p.OrderID] = &cp
	return nil
}

type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// -- Fake Gateway --

const (
	testKeySecret     = "key-secret"
	testWebhookSecret = "webhook-secret"
)

type fakeGateway struct {
	mu     sync.Mutex
	orders []razorpay.OrderRequest
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.orders = append(g.orders, req)
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", len(g.orders)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return razorpay.Sign([]byte(orderID+"|"+paymentID), testKeySecret) == signature
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return razorpay.Sign(body, testWebhookSecret) == signature
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

type fakeAppointments struct {
	items map[uuid.UUID]*appointment.Appointment
}

func (f *fakeAppointments) Get(_ context.Context, caller auth.Identity, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound("Appointment")
	}
	if !a.Participant(caller.UserID) {
		return nil, apperr.Forbidden("You are not authorized to access this appointment")
	}
	return a, nil
}

// -- Helpers --

type testEnv struct {
	svc          *Service
	repo         *mockRepo
	gateway      *fakeGateway
	appointments *fakeAppointments
	patient      auth.Identity
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:         newMockRepo(),
		gateway:      &fakeGateway{},
		appointments: &fakeAppointments{items: make(map[uuid.UUID]*appointment.Appointment)},
		patient:      auth.Identity{UserID: uuid.New(), Role: auth.RolePatient},
	}
	env.svc = NewService(env.repo, fakeTx{}, env.gateway, env.appointments, zerolog.Nop())
	env.svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	return env
}

func (env *testEnv) order(t *testing.T, amount int64) *OrderResponse {
	t.Helper()
	out, err := env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: amount})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return out
}

func verifyRequest(orderID, paymentID string) VerifyRequest {
	return VerifyRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: razorpay.Sign([]byte(orderID+"|"+paymentID), testKeySecret),
	}
}

func webhook(t *testing.T, event, orderID, paymentID string, amount int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id": paymentID, "order_id": orderID, "amount": amount, "currency": "INR",
					"error_description": "Card declined",
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body, razorpay.Sign(body, testWebhookSecret)
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// -- Tests --

func TestCreateOrder(t *testing.T) {
	env := newTestEnv()
	out := env.order(t, 50000)

	if out.OrderID != "order_1" || out.KeyID != "rzp_test_key" || out.Currency != DefaultCurrency {
		t.Fatalf("unexpected response %+v", out)
	}
	stored, err := env.repo.GetByOrderID(context.Background(), out.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusCreated || stored.UserID != env.patient.UserID || stored.Amount != 50000 {
		t.Fatalf("unexpected stored payment %+v", stored)
	}
	if env.gateway.orders[0].Notes["payment_id"] != stored.ID.String() {
		t.Error("gateway order should carry the payment id in its notes")
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv()
	usd := "usd"
	bad := "rupees"
	cases := []CreateOrderRequest{
		{Amount: 0},
		{Amount: -5},
		{Amount: maxAmount + 1},
		{Amount: 100, Currency: &bad},
	}
	for _, req := range cases {
		_, err := env.svc.CreateOrder(context.Background(), env.patient, req)
		assertKind(t, err, apperr.KindValidation)
	}
	out, err := env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: 100, Currency: &usd})
	if err != nil || out.Currency != "USD" {
		t.Fatalf("currency should be normalized: %+v %v", out, err)
	}
}

func TestCreateOrder_Appointment(t *testing.T) {
	env := newTestEnv()
	own := &appointment.Appointment{ID: uuid.New(), PatientID: env.patient.UserID, DoctorID: uuid.New()}
	other := &appointment.Appointment{ID: uuid.New(), PatientID: uuid.New(), DoctorID: uuid.New()}
	env.appointments.items[own.ID] = own
	env.appointments.items[other.ID] = other

	out, err := env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: 100, AppointmentID: &own.ID})
	if err != nil {
		t.Fatal(err)
	}
	if out.Payment.AppointmentID == nil || *out.Payment.AppointmentID != own.ID {
		t.Error("payment should reference the appointment")
	}

	_, err = env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: 100, AppointmentID: &other.ID})
	assertKind(t, err, apperr.KindForbidden)
	missing := uuid.New()
	_, err = env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: 100, AppointmentID: &missing})
	assertKind(t, err, apperr.KindNotFound)
}

func TestCreateOrder_GatewayFailure(t *testing.T) {
	env := newTestEnv()
	env.gateway.err = errors.New("connection refused")

	_, err := env.svc.CreateOrder(context.Background(), env.patient, CreateOrderRequest{Amount: 100})
	assertKind(t, err, apperr.KindInternal)
	if len(env.repo.items) != 0 {
		t.Error("no payment should be stored when the gateway fails")
	}
}

func TestVerify(t *testing.T) {
	env := newTestEnv()
	out := env.order(t, 50000)

	p, err := env.svc.Verify(context.Background(), env.patient.UserID, verifyRequest(out.OrderID, "pay_1"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Status != StatusPaid || p.PaymentID == nil || *p.PaymentID != "pay_1" || p.PaidAt == nil {
		t.Fatalf("unexpected payment %+v", p)
	}

	again, err := env.svc.Verify(context.Background(), env.patient.UserID, verifyRequest(out.OrderID, "pay_1"))
	if err != nil {
		t.Fatalf("repeat Verify: %v", err)
	}
	if !again.PaidAt.Equal(*p.PaidAt) {
		t.Error("repeat verification must not change the payment")
	}

	_, err = env.svc.Verify(context.Background(), env.patient.UserID, verifyRequest(out.OrderID, "pay_2"))
	assertKind(t, err, apperr.KindConflict)
}

func TestVerify_Rejections(t *testing.T) {
	env := newTestEnv()
	out := env.order(t, 50000)

	_, err := env.svc.Verify(context.Background(), env.patient.UserID, VerifyRequest{OrderID: out.OrderID})
	assertKind(t, err, apperr.KindValidation)

	forged := verifyRequest(out.OrderID, "pay_1")
	forged.Signature = razorpay.Sign([]byte(out.OrderID+"|pay_1"), "wrong-secret")
	_, err = env.svc.Verify(context.Background(), env.patient.UserID, forged)
	assertKind(t, err, apperr.KindValidation)

	_, err = env.svc.Verify(context.Background(), uuid.New(), verifyRequest(out.OrderID, "pay_1"))
	assertKind(t, err, apperr.KindNotFound)
	_, err = env.svc.Verify(context.Background(), env.patient.UserID, verifyRequest("order_missing", "pay_1"))
	assertKind(t, err, apperr.KindNotFound)

	stored, _ := env.repo.GetByOrderID(context.Background(), out.OrderID)
	if stored.Status != StatusCreated {
		t.Fatalf("rejected verifications must leave the payment unchanged, got %s", stored.Status)
	}
}

func TestWebhook_CapturedAndFailed(t *testing.T) {
	env := newTestEnv()
	first := env.order(t, 50000)
	second := env.order(t, 20000)

	body, sig := webhook(t, EventPaymentCaptured, first.OrderID, "pay_1", 50000)
	res, err := env.svc.HandleWebhook(context.Background(), body, sig)
	if err != nil || !res.Applied {
		t.Fatalf("captured: %+v %v", res, err)
	}
	res, err = env.svc.HandleWebhook(context.Background(), body, sig)
	if err != nil || res.Applied {
		t.Fatalf("duplicate delivery must be a no-op: %+v %v", res, err)
	}

	// A failure arriving after capture does not undo it.
	body, sig = webhook(t, EventPaymentFailed, first.OrderID, "pay_1", 50000)
	if res, _ := env.svc.HandleWebhook(context.Background(), body, sig); res.Applied {
		t.Error("failure after capture must be ignored")
	}

	body, sig = webhook(t, EventPaymentFailed, second.OrderID, "pay_9", 20000)
	if res, err := env.svc.HandleWebhook(context.Background(), body, sig); err != nil || !res.Applied {
		t.Fatalf("failed: %+v %v", res, err)
	}
	p, _ := env.repo.GetByOrderID(context.Background(), second.OrderID)
	if p.Status != StatusFailed || p.FailureReason == nil || *p.FailureReason != "Card declined" {
		t.Fatalf("unexpected failed payment %+v", p)
	}

	// A retry on the same order can still succeed.
	body, sig = webhook(t, EventPaymentCaptured, second.OrderID, "pay_10", 20000)
	if res, _ := env.svc.HandleWebhook(context.Background(), body, sig); !res.Applied {
		t.Error("capture after failure should apply")
	}
	p, _ = env.repo.GetByOrderID(context.Background(), second.OrderID)
	if p.Status != StatusPaid || p.FailureReason != nil {
		t.Fatalf("unexpected payment after retry %+v", p)
	}
}

func TestWebhook_Rejections(t *testing.T) {
	env := newTestEnv()
	out := env.order(t, 50000)
	body, sig := webhook(t, EventPaymentCaptured, out.OrderID, "pay_1", 50000)

	_, err := env.svc.HandleWebhook(context.Background(), body, "")
	assertKind(t, err, apperr.KindValidation)
	_, err = env.svc.HandleWebhook(context.Background(), body, razorpay.Sign(body, testKeySecret))
	assertKind(t, err, apperr.KindValidation)

	tampered, _ := webhook(t, EventPaymentCaptured, out.OrderID, "pay_1", 1)
	_, err = env.svc.HandleWebhook(context.Background(), tampered, sig)
	assertKind(t, err, apperr.KindValidation)

	mismatch, mismatchSig := webhook(t, EventPaymentCaptured, out.OrderID, "pay_1", 100)
	if res, err := env.svc.HandleWebhook(context.Background(), mismatch, mismatchSig); err != nil || res.Applied {
		t.Fatalf("amount mismatch must not apply: %+v %v", res, err)
	}

	unknown, unknownSig := webhook(t, EventPaymentCaptured, "order_missing", "pay_1", 50000)
	if res, err := env.svc.HandleWebhook(context.Background(), unknown, unknownSig); err != nil || res.Applied {
		t.Fatalf("unknown order should be acknowledged: %+v %v", res, err)
	}

	other, otherSig := webhook(t, "refund.created", out.OrderID, "pay_1", 50000)
	if res, err := env.svc.HandleWebhook(context.Background(), other, otherSig); err != nil || res.Applied {
		t.Fatalf("unhandled events should be acknowledged: %+v %v", res, err)
	}

	p, _ := env.repo.GetByOrderID(context.Background(), out.OrderID)
	if p.Status != StatusCreated {
		t.Fatalf("payment should be untouched, got %s", p.Status)
	}
}

func TestGet(t *testing.T) {
	env := newTestEnv()
	out := env.order(t, 100)

	if _, err := env.svc.Get(context.Background(), env.patient.UserID, out.OrderID); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	_, err := env.svc.Get(context.Background(), uuid.New(), out.OrderID)
	assertKind(t, err, apperr.KindNotFound)
}
