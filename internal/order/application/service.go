package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/raihanmd/storefront/internal/order/domain"
	"github.com/raihanmd/storefront/pkg/tracing"
)

type Service struct {
	log      *slog.Logger
	repo     Repository
	products ProductStore
}

func NewService(log *slog.Logger, repo Repository, products ProductStore) *Service {
	return &Service{log: log, repo: repo, products: products}
}

type CreateItemInput struct {
	ProductID string
	Quantity  int
}

type CreateInput struct {
	CustomerName     string
	CustomerPhone    string
	Address          string
	Latitude         *float64
	Longitude        *float64
	DeliverySchedule domain.DeliverySchedule
	PaymentMethod    domain.PaymentMethod
	Items            []CreateItemInput
}

// Create validates availability, snapshots current catalog prices into the
// line items and persists the order as pending. Stock is checked, never
// reserved: abandoned orders must not deplete it.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, fmt.Errorf("order needs at least one item: %w", domain.ErrValidation)
	}

	items := make([]domain.Item, 0, len(in.Items))
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("quantity for product %s must be positive: %w", line.ProductID, domain.ErrValidation)
		}
		p, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if line.Quantity > p.Stock {
			return domain.Order{}, &domain.OutOfStockError{
				ProductID: p.ID,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
		items = append(items, domain.Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			PriceAtTime: p.Price,
		})
	}

	o := domain.NewOrder(in.CustomerName, in.CustomerPhone, in.Address, in.Latitude, in.Longitude, in.DeliverySchedule, in.PaymentMethod, items)

	event := domain.OrderCreated{
		OrderID:     o.ID,
		Number:      o.Number,
		Customer:    o.CustomerName,
		TotalAmount: o.TotalAmount.StringFixed(2),
	}
	for _, item := range o.Items {
		event.Items = append(event.Items, domain.OrderCreatedItem{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime.StringFixed(2),
		})
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.repo.CreateWithOutbox(ctx, o, "OrderCreated", payload, tracing.Traceparent(ctx)); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "number", o.Number, "total", o.TotalAmount.StringFixed(2))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return s.repo.GetByNumber(ctx, number)
}

// Approve is the manual path into approved for non-gateway payment methods.
// The repository enforces pending -> approved and the one-time stock
// decrement under the order row lock, the same rules the webhook path obeys.
func (s *Service) Approve(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Transition(ctx, orderID, domain.StatusApproved, tracing.Traceparent(ctx))
}

// Reject moves a pending order to rejected. Stock is never touched.
func (s *Service) Reject(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.Transition(ctx, orderID, domain.StatusRejected, tracing.Traceparent(ctx))
}

// UpdateStatus is the generic admin transition (ship, deliver, cancel). It
// shares the same machine as approve/reject and the reconciliation path.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	to, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", err, domain.ErrValidation)
	}
	return s.repo.Transition(ctx, orderID, to, tracing.Traceparent(ctx))
}
