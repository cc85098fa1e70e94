package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/raihanmd/storefront/internal/catalog/domain"
)

// Repository is the stock ledger. Reads are plain lookups; the decrement is a
// guarded UPDATE meant to run inside the approval transaction of its caller.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	var price string
	err := r.pool.QueryRow(ctx, `SELECT id, name, price::text, stock FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &price, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	if err != nil {
		return domain.Product{}, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// UpsertProduct exists for seeding and the admin catalog path.
func (r *Repository) UpsertProduct(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, stock) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name=$2, price=$3, stock=$4, updated_at=now()`,
		p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
	return err
}

// DecrementStock subtracts qty inside the caller's transaction. The WHERE
// clause is the invariant: zero rows affected means the decrement would have
// gone negative, which is a bug signal, not a user-facing out-of-stock.
func (r *Repository) DecrementStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1 AND stock >= $2`,
		productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s, qty %d: %w", productID, qty, domain.ErrStockGuard)
	}
	return nil
}
