package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RequestReturn opens a return for a delivered order. The guard admits only
// delivered orders with no live return (none, or a previously rejected one),
// so at most one PENDING return exists per order at a time.
func (s *OrderStore) RequestReturn(ctx context.Context, orderID uuid.UUID, userID uuid.UUID, note string, images []string) error {
	encoded, err := json.Marshal(images)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = 'pending', return_note = $3, return_images = $4,
		    fulfillment_status = 'return_requested'
		WHERE id = $1 AND user_id = $2
		  AND fulfillment_status = 'delivered'
		  AND return_status IN ('none', 'rejected')`,
		orderID, userID, note, encoded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order must be delivered with no open return", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) ApproveReturn(ctx context.Context, orderID uuid.UUID) error {
	return s.decideReturn(ctx, orderID, "approved")
}

// RejectReturn freezes the order: fulfillment drops back to delivered and the
// return is closed.
func (s *OrderStore) RejectReturn(ctx context.Context, orderID uuid.UUID) error {
	return s.decideReturn(ctx, orderID, "rejected")
}

func (s *OrderStore) decideReturn(ctx context.Context, orderID uuid.UUID, decision string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET return_status = $2,
		    fulfillment_status = CASE WHEN $2 = 'rejected' THEN 'delivered' ELSE fulfillment_status END
		WHERE id = $1 AND return_status = 'pending'`,
		orderID, decision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending return", ErrInvalidStatusTransition)
	}
	return nil
}

// CompleteReturn is terminal; it runs on the caller's Querier so refund and
// restock bookkeeping commit atomically with it.
func (s *OrderStore) CompleteReturn(ctx context.Context, q Querier, orderID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET return_status = 'completed', fulfillment_status = 'returned'
		WHERE id = $1 AND return_status = 'approved'`,
		orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected approved return", ErrInvalidStatusTransition)
	}
	return nil
}

// IncrementLineReturn records returned units on one line, bounded by the
// original quantity and gated on the parent order's return being approved or
// completed.
func (s *OrderStore) IncrementLineReturn(ctx context.Context, q Querier, lineID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("return quantity must be positive")
	}

	tag, err := q.Exec(ctx, `
		UPDATE order_lines ol
		SET return_quantity = ol.return_quantity + $2
		FROM orders o
		WHERE ol.id = $1
		  AND o.id = ol.order_id
		  AND ol.return_quantity + $2 <= ol.quantity
		  AND o.return_status IN ('approved', 'completed')`,
		lineID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: return quantity exceeds purchased quantity or return not approved", ErrInvalidStatusTransition)
	}
	return nil
}
