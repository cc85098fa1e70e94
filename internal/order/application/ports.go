package application

import (
	"context"

	catalog "github.com/raihanmd/storefront/internal/catalog/domain"
	"github.com/raihanmd/storefront/internal/order/domain"
)

type Repository interface {
	// CreateWithOutbox inserts the order, its line items and the outbox event
	// in one transaction. It never touches stock.
	CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error

	Get(ctx context.Context, id string) (domain.Order, error)
	GetByNumber(ctx context.Context, number string) (domain.Order, error)

	// Transition locks the order row, validates the move against the status
	// machine and, when the order enters approved, decrements stock for every
	// line item inside the same transaction. Returns the updated order.
	Transition(ctx context.Context, orderID string, to domain.Status, traceparent string) (domain.Order, error)
}

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}
