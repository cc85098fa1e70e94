package domain

import order "github.com/raihanmd/storefront/internal/order/domain"

type PaymentInitiated struct {
	OrderID     string
	GatewayTxID string
	GrossAmount string
	ExpiresAt   string
}

type PaymentStatusChanged struct {
	OrderID     string
	GatewayTxID string
	From        Status
	To          Status
	OrderStatus order.Status
}
