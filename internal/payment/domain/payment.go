package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrGateway marks failures of the outbound gateway call so callers can
	// tell them apart from validation errors and decide on retry policy.
	ErrGateway = errors.New("payment gateway error")
)

// Payment is the single payment record an order owns. The gateway transaction
// id may be re-minted across attempts (create-or-replace), the record itself
// is never replaced by a second row.
type Payment struct {
	ID            string
	OrderID       string
	GatewayTxID   string
	TransactionID string
	Status        Status
	GrossAmount   decimal.Decimal
	Token         string
	RedirectURL   string
	PaymentType   string
	FraudStatus   string
	RawStatusCode string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether this payment can still be completed by the customer,
// i.e. repeated "pay now" clicks must reuse its token instead of minting a new
// gateway transaction.
func (p Payment) Active(now time.Time) bool {
	return p.Status == StatusPending && now.Before(p.ExpiresAt)
}

// ChargeRequest is what the gateway needs to open a transaction.
type ChargeRequest struct {
	GatewayTxID   string
	GrossAmount   decimal.Decimal
	CustomerName  string
	CustomerPhone string
	Items         []ChargeItem
	ExpiryMinutes int
}

type ChargeItem struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

type ChargeResponse struct {
	Token       string
	RedirectURL string
}

// Notification is a gateway webhook after signature verification and parsing.
type Notification struct {
	GatewayTxID   string
	Status        string
	FraudStatus   string
	TransactionID string
	PaymentType   string
	StatusCode    string
	GrossAmount   string
}
