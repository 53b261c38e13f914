package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/models"
)

// Assembler groups the multi-table writes of the order lifecycle into single
// transactions. Each method commits all of its effects or none of them.
type Assembler struct {
	pool      *pgxpool.Pool
	orders    *OrderStore
	vouchers  *VoucherStore
	inventory *InventoryStore
	delivery  *DeliveryStore
}

func NewAssembler(pool *pgxpool.Pool) *Assembler {
	return &Assembler{
		pool:      pool,
		orders:    NewOrderStore(pool),
		vouchers:  NewVoucherStore(pool),
		inventory: NewInventoryStore(pool),
		delivery:  NewDeliveryStore(pool),
	}
}

func (a *Assembler) Orders() *OrderStore        { return a.orders }
func (a *Assembler) Vouchers() *VoucherStore    { return a.vouchers }
func (a *Assembler) Inventory() *InventoryStore { return a.inventory }
func (a *Assembler) Deliveries() *DeliveryStore { return a.delivery }

// AssembleOrder persists a checkout: the order header, its lines, a stock
// decrement per line and a usage increment per applied voucher, all in one
// transaction. A stock or voucher guard failing rolls the whole order back.
func (a *Assembler) AssembleOrder(ctx context.Context, order *models.Order) error {
	return InTx(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		if err := a.orders.CreateLines(ctx, tx, order.ID, order.Lines); err != nil {
			return err
		}
		for _, line := range order.Lines {
			if err := a.inventory.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		for _, voucherID := range appliedVouchers(order) {
			if err := a.vouchers.IncrementUsage(ctx, tx, voucherID); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelOrder cancels an unpaid order, restores the reserved stock and
// releases any voucher uses. Returns false when the order was not cancellable
// (already paid, already cancelled, or not owned by byUser).
func (a *Assembler) CancelOrder(ctx context.Context, orderID uuid.UUID, byUser *uuid.UUID) (bool, error) {
	var cancelled bool
	err := InTx(ctx, a.pool, func(tx pgx.Tx) error {
		ok, err := a.orders.CancelPending(ctx, tx, orderID, byUser)
		if err != nil || !ok {
			return err
		}
		cancelled = true

		lines, err := a.orders.GetLines(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := a.inventory.RestoreStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		var priceVoucherID, shippingVoucherID uuid.NullUUID
		err = tx.QueryRow(ctx, `
			SELECT price_voucher_id, shipping_voucher_id FROM orders WHERE id = $1`,
			orderID).Scan(&priceVoucherID, &shippingVoucherID)
		if err != nil {
			return fmt.Errorf("failed to read order vouchers: %w", err)
		}
		for _, id := range []uuid.NullUUID{priceVoucherID, shippingVoucherID} {
			if !id.Valid {
				continue
			}
			if err := a.vouchers.DecrementUsage(ctx, tx, id.UUID); err != nil {
				return err
			}
		}
		return nil
	})
	return cancelled, err
}

// MarkReadyToShip moves a processing order to shipping and opens its delivery
// order in the same transaction. Prepaid orders must be paid first; the
// MarkShipping guard enforces that.
func (a *Assembler) MarkReadyToShip(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*models.DeliveryOrder, error) {
	var created *models.DeliveryOrder
	err := InTx(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.orders.MarkShipping(ctx, tx, orderID); err != nil {
			return err
		}
		delivery, err := a.delivery.Create(ctx, tx, orderID, trackingNumber)
		if err != nil {
			return err
		}
		created = delivery
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteDelivery records drop-off with proof and advances the parent order
// to delivered. Cash-on-delivery orders settle their payment in the same
// transaction.
func (a *Assembler) CompleteDelivery(ctx context.Context, trackingNumber string, shipperID uuid.UUID, proofImage string) error {
	return InTx(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.delivery.MarkDelivered(ctx, tx, trackingNumber, shipperID, proofImage); err != nil {
			return err
		}

		var orderID uuid.UUID
		var paymentMethod string
		err := tx.QueryRow(ctx, `
			SELECT o.id, o.payment_method
			FROM orders o
			JOIN delivery_orders d ON d.order_id = o.id
			WHERE d.tracking_number = $1`,
			trackingNumber).Scan(&orderID, &paymentMethod)
		if err != nil {
			return fmt.Errorf("failed to read delivered order: %w", err)
		}

		if err := a.orders.UpdateFulfillment(ctx, tx, orderID, models.FulfillmentShipping, models.FulfillmentDelivered); err != nil {
			return err
		}
		if models.PaymentMethod(paymentMethod) == models.MethodCOD {
			if err := a.orders.MarkPaidOnDelivery(ctx, tx, orderID); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteReturn closes an approved return: records the returned units per
// line and restocks them. lineQuantities maps order line id to returned
// quantity; a nil or empty map returns every line in full.
func (a *Assembler) CompleteReturn(ctx context.Context, orderID uuid.UUID, lineQuantities map[uuid.UUID]int) error {
	return InTx(ctx, a.pool, func(tx pgx.Tx) error {
		lines, err := a.orders.GetLines(ctx, tx, orderID)
		if err != nil {
			return err
		}

		productByLine := make(map[uuid.UUID]uuid.UUID, len(lines))
		if len(lineQuantities) == 0 {
			lineQuantities = make(map[uuid.UUID]int, len(lines))
			for _, line := range lines {
				lineQuantities[line.ID] = line.Quantity - line.ReturnQuantity
			}
		}
		for _, line := range lines {
			productByLine[line.ID] = line.ProductID
		}

		for lineID, quantity := range lineQuantities {
			if quantity <= 0 {
				continue
			}
			productID, ok := productByLine[lineID]
			if !ok {
				return fmt.Errorf("line %s does not belong to order %s", lineID, orderID)
			}
			if err := a.orders.IncrementLineReturn(ctx, tx, lineID, quantity); err != nil {
				return err
			}
			if err := a.inventory.RestoreStock(ctx, tx, productID, quantity); err != nil {
				return err
			}
		}

		return a.orders.CompleteReturn(ctx, tx, orderID)
	})
}

func appliedVouchers(order *models.Order) []uuid.UUID {
	var ids []uuid.UUID
	if order.PriceVoucherID != nil {
		ids = append(ids, *order.PriceVoucherID)
	}
	if order.ShippingVoucherID != nil {
		ids = append(ids, *order.ShippingVoucherID)
	}
	return ids
}
