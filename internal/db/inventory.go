package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/models"
)

type InventoryStore struct {
	pool *pgxpool.Pool
}

func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool}
}

// InsufficientStockError names the offending inventory unit.
type InsufficientStockError struct {
	ProductID uuid.UUID
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (s *InventoryStore) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, price, stock, active
		FROM products
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		var price pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		p.Price = numericToDecimal(price)
		products[p.ID] = p
	}
	return products, rows.Err()
}

// DecrementStock reserves inventory with a conditional decrement: the
// stock >= quantity guard inside the statement is what prevents oversell
// under concurrent checkouts.
func (s *InventoryStore) DecrementStock(ctx context.Context, q Querier, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	tag, err := q.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`,
		productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &InsufficientStockError{ProductID: productID}
	}
	return nil
}

// RestoreStock returns reserved units on cancellation or completed return.
func (s *InventoryStore) RestoreStock(ctx context.Context, q Querier, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	_, err := q.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}
