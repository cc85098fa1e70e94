package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrValidation    = errors.New("invalid order payload")
)

// OutOfStockError reports the best-effort availability check at creation time.
// It is advisory: the authoritative guard runs inside the approval transaction.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s out of stock: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type DeliverySchedule string

const (
	DeliveryMorning   DeliverySchedule = "morning"
	DeliveryAfternoon DeliverySchedule = "afternoon"
	DeliveryEvening   DeliverySchedule = "evening"
)

type PaymentMethod string

const (
	MethodGateway      PaymentMethod = "gateway"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCashOnSite   PaymentMethod = "cash_on_site"
)

type Order struct {
	ID               string
	Number           string
	CustomerName     string
	CustomerPhone    string
	Address          string
	Latitude         *float64
	Longitude        *float64
	DeliverySchedule DeliverySchedule
	PaymentMethod    PaymentMethod
	TotalAmount      decimal.Decimal
	Status           Status
	Items            []Item
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item carries the price snapshot taken at order creation. PriceAtTime is
// never recomputed: later catalog price changes must not move existing orders.
type Item struct {
	ID          int64
	ProductID   string
	ProductName string
	Quantity    int
	PriceAtTime decimal.Decimal
}

// NewOrder assembles a pending order from snapshotted items and computes the
// total from the snapshots, not from the live catalog.
func NewOrder(customerName, customerPhone, address string, lat, lng *float64, schedule DeliverySchedule, method PaymentMethod, items []Item) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.PriceAtTime.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	now := time.Now().UTC()
	return Order{
		ID:               uuid.NewString(),
		Number:           NewNumber(now),
		CustomerName:     customerName,
		CustomerPhone:    customerPhone,
		Address:          address,
		Latitude:         lat,
		Longitude:        lng,
		DeliverySchedule: schedule,
		PaymentMethod:    method,
		TotalAmount:      total,
		Status:           StatusPending,
		Items:            items,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewNumber mints a human-readable order number, unique under the orders
// table's unique index.
func NewNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
