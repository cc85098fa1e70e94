package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	catalog "github.com/raihanmd/storefront/internal/catalog/domain"
	"github.com/raihanmd/storefront/internal/payment/domain"
	"github.com/raihanmd/storefront/pkg/tracing"
)

const gatewayCallTimeout = 10 * time.Second

type Service struct {
	log     *slog.Logger
	repo    Repository
	orders  OrderStore
	gateway Gateway
	dedup   Deduper
	expiry  time.Duration
	now     func() time.Time
}

func NewService(log *slog.Logger, repo Repository, orders OrderStore, gateway Gateway, dedup Deduper, expiry time.Duration) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		orders:  orders,
		gateway: gateway,
		dedup:   dedup,
		expiry:  expiry,
		now:     time.Now,
	}
}

// Initiate returns a token the customer can pay with. An active payment
// (still pending, not expired) is reused unchanged so repeated "pay now"
// clicks never open duplicate gateway transactions. Otherwise a fresh gateway
// transaction id is minted and the order's single payment row is replaced.
func (s *Service) Initiate(ctx context.Context, orderID string) (domain.Payment, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.now().UTC()
	existing, err := s.repo.GetByOrderID(ctx, orderID)
	switch {
	case err == nil:
		if existing.Active(now) {
			s.log.Info("reusing active payment", "order_id", orderID, "gateway_tx_id", existing.GatewayTxID)
			return existing, nil
		}
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return domain.Payment{}, err
	}

	// The id must differ from every prior attempt for this order, so the
	// gateway treats a retry after expiry as a new transaction.
	gatewayTxID := fmt.Sprintf("%s-%d", o.Number, now.UnixNano())

	req := domain.ChargeRequest{
		GatewayTxID:   gatewayTxID,
		GrossAmount:   o.TotalAmount,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		ExpiryMinutes: int(s.expiry.Minutes()),
	}
	for _, item := range o.Items {
		req.Items = append(req.Items, domain.ChargeItem{
			ID:       item.ProductID,
			Name:     item.ProductName,
			Price:    item.PriceAtTime,
			Quantity: item.Quantity,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	resp, err := s.gateway.CreateTransaction(callCtx, req)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %s", domain.ErrGateway, err)
	}

	p := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     o.ID,
		GatewayTxID: gatewayTxID,
		Status:      domain.StatusPending,
		GrossAmount: o.TotalAmount,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		ExpiresAt:   now.Add(s.expiry),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	payload, err := json.Marshal(domain.PaymentInitiated{
		OrderID:     o.ID,
		GatewayTxID: gatewayTxID,
		GrossAmount: o.TotalAmount.StringFixed(2),
		ExpiresAt:   p.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.repo.Upsert(ctx, p, "PaymentInitiated", payload, tracing.Traceparent(ctx)); err != nil {
		return domain.Payment{}, err
	}
	s.log.Info("payment initiated", "order_id", o.ID, "gateway_tx_id", gatewayTxID)
	return p, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// HandleNotification reconciles one inbound gateway notification. It never
// returns an error: the gateway retries aggressively on anything but a
// prompt acknowledgment, so every internal failure is logged and swallowed.
func (s *Service) HandleNotification(ctx context.Context, raw []byte) {
	n, err := s.gateway.ParseNotification(raw)
	if err != nil {
		s.log.Warn("notification rejected", "err", err)
		return
	}

	if s.dedup != nil {
		key := s.dedup.NotificationKey(n.GatewayTxID, n.Status, n.StatusCode)
		seen, err := s.dedup.Seen(ctx, key)
		if err != nil {
			s.log.Warn("notification dedup unavailable", "err", err)
		} else if seen {
			s.log.Debug("duplicate notification skipped", "gateway_tx_id", n.GatewayTxID, "status", n.Status)
			return
		}
	}

	upd, known := domain.ResolveNotification(n)
	if !known {
		s.log.Warn("unrecognized gateway status, treating as pending",
			"gateway_tx_id", n.GatewayTxID, "status", n.Status)
	}

	applied, err := s.repo.ApplyNotification(ctx, upd, tracing.Traceparent(ctx))
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		// Likely a superseded transaction attempt. Not an error.
		s.log.Info("notification for unknown transaction discarded", "gateway_tx_id", n.GatewayTxID)
	case errors.Is(err, catalog.ErrStockGuard):
		s.log.Error("stock invariant violated during reconciliation",
			"gateway_tx_id", n.GatewayTxID, "err", err)
	case err != nil:
		s.log.Error("notification apply failed", "gateway_tx_id", n.GatewayTxID, "err", err)
	case applied:
		s.log.Info("notification applied",
			"gateway_tx_id", n.GatewayTxID, "payment_status", upd.PaymentStatus, "order_status", upd.OrderStatus)
	default:
		s.log.Info("stale or duplicate notification discarded",
			"gateway_tx_id", n.GatewayTxID, "status", upd.PaymentStatus)
	}
}
