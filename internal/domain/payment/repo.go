package payment

import (
	"context"
)

// Repository defines the data access interface for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// GetByOrderIDForUpdate locks the row for the rest of the transaction.
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}
