package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrStockGuard means a decrement would have driven stock negative. The
	// creation-time check and the locked approval transaction should make this
	// unreachable, so it is surfaced loudly instead of as an ordinary
	// out-of-stock response.
	ErrStockGuard = errors.New("stock guard violated")
)

type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}
