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

	catalogpg "github.com/raihanmd/storefront/internal/catalog/postgres"
	"github.com/raihanmd/storefront/internal/order/domain"
)

type Repository struct {
	log   *slog.Logger
	pool  *pgxpool.Pool
	stock *catalogpg.Repository
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, stock *catalogpg.Repository) *Repository {
	return &Repository{log: log, pool: pool, stock: stock}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, number, customer_name, customer_phone, address, latitude, longitude,
			delivery_schedule, payment_method, total_amount, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		o.ID, o.Number, o.CustomerName, o.CustomerPhone, o.Address, o.Latitude, o.Longitude,
		o.DeliverySchedule, o.PaymentMethod, o.TotalAmount.StringFixed(2), o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price_at_time) VALUES ($1,$2,$3,$4)`,
			o.ID, item.ProductID, item.Quantity, item.PriceAtTime.StringFixed(2))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", o.ID, eventType, payload, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, `o.id = $1`, id)
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.get(ctx, `o.number = $1`, number)
}

func (r *Repository) get(ctx context.Context, where string, arg any) (domain.Order, error) {
	var o domain.Order
	var total string
	err := r.pool.QueryRow(ctx, `
		SELECT o.id, o.number, o.customer_name, o.customer_phone, o.address, o.latitude, o.longitude,
			o.delivery_schedule, o.payment_method, o.total_amount::text, o.status, o.created_at, o.updated_at
		FROM orders o WHERE `+where, arg).
		Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerPhone, &o.Address, &o.Latitude, &o.Longitude,
			&o.DeliverySchedule, &o.PaymentMethod, &total, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.product_id, p.name, i.quantity, i.price_at_time::text
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.Item
		var price string
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return domain.Order{}, err
		}
		if item.PriceAtTime, err = decimal.NewFromString(price); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// Transition moves the order through the status machine under a row lock.
// Entering approved decrements stock for every line item inside the same
// transaction, so two racing approval attempts serialize on the order row and
// only the first one pays the stock.
func (r *Repository) Transition(ctx context.Context, orderID string, to domain.Status, traceparent string) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var number string
	var from domain.Status
	err = tx.QueryRow(ctx, `SELECT number, status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&number, &from)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	if err := domain.Transition(from, to); err != nil {
		return domain.Order{}, err
	}

	if to == domain.StatusApproved {
		if err := r.DecrementStockForOrder(ctx, tx, orderID); err != nil {
			return domain.Order{}, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(domain.OrderStatusChanged{OrderID: orderID, Number: number, From: from, To: to})
	if err != nil {
		return domain.Order{}, err
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", orderID, domain.EventTypeFor(to), payload, traceparent)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return r.Get(ctx, orderID)
}

// DecrementStockForOrder walks the line items in insertion order so
// concurrent approvals touching the same products lock them in a stable
// order. It is shared with the payment reconciliation transaction.
func (r *Repository) DecrementStockForOrder(ctx context.Context, tx pgx.Tx, orderID string) error {
	rows, err := tx.Query(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		productID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		if err := r.stock.DecrementStock(ctx, tx, l.productID, l.qty); err != nil {
			return fmt.Errorf("order %s: %w", orderID, err)
		}
	}
	return nil
}
