package domain

import (
	order "github.com/raihanmd/storefront/internal/order/domain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusCapture    Status = "capture"
	StatusSettlement Status = "settlement"
	StatusCancel     Status = "cancel"
	StatusExpire     Status = "expire"
	StatusFailure    Status = "failure"
	StatusDeny       Status = "deny"
)

const (
	FraudAccept    = "accept"
	FraudChallenge = "challenge"
)

// Terminal reports whether a payment in this status is latched against
// further notifications. A capture is terminal once the fraud review accepted
// it; a capture still under review ("challenge") must stay open so the
// follow-up accept or settlement can land.
func (s Status) Terminal(fraudStatus string) bool {
	switch s {
	case StatusSettlement, StatusCancel, StatusExpire, StatusFailure, StatusDeny:
		return true
	case StatusCapture:
		return fraudStatus != FraudChallenge
	}
	return false
}

// MapGatewayStatus translates the gateway's vocabulary into the internal
// payment status and the order status it implies. The third return value is
// false for unrecognized gateway statuses, which map to pending/pending.
func MapGatewayStatus(gatewayStatus, fraudStatus string) (Status, order.Status, bool) {
	switch gatewayStatus {
	case "capture":
		if fraudStatus == FraudChallenge {
			return StatusCapture, order.StatusPending, true
		}
		return StatusCapture, order.StatusApproved, true
	case "settlement":
		return StatusSettlement, order.StatusApproved, true
	case "pending":
		return StatusPending, order.StatusPending, true
	case "deny":
		return StatusDeny, order.StatusRejected, true
	case "cancel":
		return StatusCancel, order.StatusCancelled, true
	case "expire":
		return StatusExpire, order.StatusCancelled, true
	case "failure":
		return StatusFailure, order.StatusRejected, true
	}
	return StatusPending, order.StatusPending, false
}

// Update is a notification resolved into internal vocabulary, ready to be
// applied against the stored payment and order.
type Update struct {
	GatewayTxID   string
	PaymentStatus Status
	OrderStatus   order.Status
	TransactionID string
	PaymentType   string
	FraudStatus   string
	StatusCode    string
}

// ResolveNotification maps a verified notification to an Update. known is
// false when the gateway status was unrecognized.
func ResolveNotification(n Notification) (Update, bool) {
	ps, os, known := MapGatewayStatus(n.Status, n.FraudStatus)
	return Update{
		GatewayTxID:   n.GatewayTxID,
		PaymentStatus: ps,
		OrderStatus:   os,
		TransactionID: n.TransactionID,
		PaymentType:   n.PaymentType,
		FraudStatus:   n.FraudStatus,
		StatusCode:    n.StatusCode,
	}, known
}

// Decision is what a notification is allowed to do, computed under the row
// locks of the applying transaction.
type Decision struct {
	Apply          bool
	UpdateOrder    bool
	DecrementStock bool
}

// Decide evaluates the anti-regression latch. Once the stored payment status
// is terminal nothing is written: a late or out-of-order notification is
// discarded and a matching redelivery is a no-op. A non-terminal payment
// always takes the incoming payment status; the order moves with it only when
// the order machine permits the transition, and stock is decremented exactly
// on the move into approved.
//
// Decide is pure so every store (postgres and the test fakes) shares one
// implementation of the guard. It must run inside the same critical section
// as the writes it authorizes.
func Decide(current Payment, currentOrder order.Status, upd Update) Decision {
	if current.Status.Terminal(current.FraudStatus) {
		return Decision{}
	}
	d := Decision{Apply: true}
	if upd.OrderStatus != currentOrder && order.CanTransition(currentOrder, upd.OrderStatus) {
		d.UpdateOrder = true
		d.DecrementStock = upd.OrderStatus == order.StatusApproved
	}
	return d
}

// EventTypeFor names the outbox event emitted when a payment reaches a status.
func EventTypeFor(s Status) string {
	switch s {
	case StatusCapture:
		return "PaymentCaptured"
	case StatusSettlement:
		return "PaymentSettled"
	case StatusCancel:
		return "PaymentCancelled"
	case StatusExpire:
		return "PaymentExpired"
	case StatusFailure:
		return "PaymentFailed"
	case StatusDeny:
		return "PaymentDenied"
	}
	return "PaymentPending"
}
