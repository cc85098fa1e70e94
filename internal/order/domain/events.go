package domain

type OrderCreated struct {
	OrderID     string
	Number      string
	Customer    string
	TotalAmount string
	Items       []OrderCreatedItem
}

type OrderCreatedItem struct {
	ProductID   string
	Quantity    int
	PriceAtTime string
}

type OrderStatusChanged struct {
	OrderID string
	Number  string
	From    Status
	To      Status
}

// EventTypeFor names the outbox event emitted for a status transition.
func EventTypeFor(to Status) string {
	switch to {
	case StatusApproved:
		return "OrderApproved"
	case StatusRejected:
		return "OrderRejected"
	case StatusShipped:
		return "OrderShipped"
	case StatusDelivered:
		return "OrderDelivered"
	case StatusCancelled:
		return "OrderCancelled"
	}
	return "OrderStatusChanged"
}
