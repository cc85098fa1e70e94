package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	orderdomain "github.com/raihanmd/storefront/internal/order/domain"
	orderpg "github.com/raihanmd/storefront/internal/order/infrastructure/postgres"
	"github.com/raihanmd/storefront/internal/payment/domain"
)

type Repository struct {
	log    *slog.Logger
	pool   *pgxpool.Pool
	orders *orderpg.Repository
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, orders *orderpg.Repository) *Repository {
	return &Repository{log: log, pool: pool, orders: orders}
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	var p domain.Payment
	var gross string
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, gateway_tx_id, transaction_id, status, gross_amount::text, token,
			redirect_url, payment_type, fraud_status, raw_status_code, expires_at, created_at, updated_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.GatewayTxID, &p.TransactionID, &p.Status, &gross, &p.Token,
			&p.RedirectURL, &p.PaymentType, &p.FraudStatus, &p.RawStatusCode, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, fmt.Errorf("order %s: %w", orderID, domain.ErrPaymentNotFound)
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if p.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// Upsert replaces the order's single payment row. A retry after expiry keeps
// the row and overwrites the attempt-scoped fields with the new gateway
// transaction.
func (r *Repository) Upsert(ctx context.Context, p domain.Payment, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, gateway_tx_id, transaction_id, status, gross_amount, token,
			redirect_url, payment_type, fraud_status, raw_status_code, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,'',$4,$5,$6,$7,'','','',$8,$9,$10)
		ON CONFLICT (order_id) DO UPDATE SET
			gateway_tx_id=$3, transaction_id='', status=$4, gross_amount=$5, token=$6,
			redirect_url=$7, payment_type='', fraud_status='', raw_status_code='',
			expires_at=$8, updated_at=$10`,
		p.ID, p.OrderID, p.GatewayTxID, p.Status, p.GrossAmount.StringFixed(2), p.Token,
		p.RedirectURL, p.ExpiresAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		"payment", p.OrderID, eventType, payload, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyNotification is the reconciliation write. Payment and order rows are
// locked before domain.Decide runs, so two racing notifications (or a
// notification racing a manual approval) serialize here: the loser re-reads
// the committed state and the latch turns it into a no-op.
func (r *Repository) ApplyNotification(ctx context.Context, upd domain.Update, traceparent string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current domain.Payment
	err = tx.QueryRow(ctx, `SELECT id, order_id, gateway_tx_id, status, fraud_status FROM payments WHERE gateway_tx_id=$1 FOR UPDATE`,
		upd.GatewayTxID).
		Scan(&current.ID, &current.OrderID, &current.GatewayTxID, &current.Status, &current.FraudStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("gateway tx %s: %w", upd.GatewayTxID, domain.ErrPaymentNotFound)
	}
	if err != nil {
		return false, err
	}

	var currentOrder orderdomain.Status
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, current.OrderID).Scan(&currentOrder); err != nil {
		return false, err
	}

	d := domain.Decide(current, currentOrder, upd)
	if !d.Apply {
		return false, nil
	}

	if d.DecrementStock {
		if err := r.orders.DecrementStockForOrder(ctx, tx, current.OrderID); err != nil {
			return false, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments SET status=$2, transaction_id=$3, payment_type=$4, fraud_status=$5,
			raw_status_code=$6, updated_at=now()
		WHERE id=$1`,
		current.ID, upd.PaymentStatus, upd.TransactionID, upd.PaymentType, upd.FraudStatus, upd.StatusCode)
	if err != nil {
		return false, err
	}

	orderStatus := currentOrder
	if d.UpdateOrder {
		orderStatus = upd.OrderStatus
		if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, current.OrderID, upd.OrderStatus); err != nil {
			return false, err
		}
	}

	payload, err := json.Marshal(domain.PaymentStatusChanged{
		OrderID:     current.OrderID,
		GatewayTxID: current.GatewayTxID,
		From:        current.Status,
		To:          upd.PaymentStatus,
		OrderStatus: orderStatus,
	})
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		"payment", current.OrderID, domain.EventTypeFor(upd.PaymentStatus), payload, traceparent)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
