package application

import (
	"context"

	orderdomain "github.com/raihanmd/storefront/internal/order/domain"
	"github.com/raihanmd/storefront/internal/payment/domain"
)

type Repository interface {
	GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error)

	// Upsert creates or replaces the single payment row for the order
	// (keyed by order id) together with its outbox event.
	Upsert(ctx context.Context, p domain.Payment, eventType string, payload []byte, traceparent string) error

	// ApplyNotification resolves the gateway transaction id to a payment,
	// locks the payment and order rows, evaluates domain.Decide and applies
	// the update atomically, including the one-time stock decrement. Returns
	// false when the latch discarded the notification.
	ApplyNotification(ctx context.Context, upd domain.Update, traceparent string) (bool, error)
}

type Gateway interface {
	CreateTransaction(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResponse, error)
	ParseNotification(body []byte) (domain.Notification, error)
	GetTransactionStatus(ctx context.Context, gatewayTxID string) (string, error)
}

type OrderStore interface {
	Get(ctx context.Context, orderID string) (orderdomain.Order, error)
}

// Deduper is the advisory fast path that drops obvious webhook redeliveries
// before they reach the database. Misses and errors are tolerated; the
// terminal-status latch stays authoritative.
type Deduper interface {
	NotificationKey(gatewayTxID, status, statusCode string) string
	Seen(ctx context.Context, key string) (bool, error)
}
