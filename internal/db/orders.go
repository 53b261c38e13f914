package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Pool() *pgxpool.Pool {
	return s.pool
}

const orderColumns = `
	id, user_id, tracking_number, customer_email, shipping_address,
	price_voucher_id, shipping_voucher_id,
	subtotal, shipping_fee, discount_amount, final_amount,
	payment_method, payment_status, fulfillment_status,
	note, failure_reason, return_status, return_note, return_images,
	created_at, paid_at, cancelled_at`

// Create inserts the order header. It runs on the caller's Querier so the
// checkout transaction can group it with lines, stock and voucher effects.
func (s *OrderStore) Create(ctx context.Context, q Querier, order *models.Order) error {
	var returnImages []byte
	if order.ReturnImages != nil {
		encoded, err := json.Marshal(order.ReturnImages)
		if err != nil {
			return err
		}
		returnImages = encoded
	}

	row := q.QueryRow(ctx, `
		INSERT INTO orders (
			user_id, tracking_number, customer_email, shipping_address,
			price_voucher_id, shipping_voucher_id,
			subtotal, shipping_fee, discount_amount, final_amount,
			payment_method, payment_status, fulfillment_status, note, return_status, return_images
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at`,
		order.UserID,
		order.TrackingNumber,
		order.CustomerEmail,
		order.ShippingAddress,
		nullableUUID(order.PriceVoucherID),
		nullableUUID(order.ShippingVoucherID),
		order.Subtotal.StringFixed(2),
		order.ShippingFee.StringFixed(2),
		order.DiscountAmount.StringFixed(2),
		order.FinalAmount.StringFixed(2),
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		string(order.Fulfillment),
		order.Note,
		string(order.ReturnStatus),
		returnImages,
	)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &createdAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	order.CreatedAt = createdAt.Time
	return nil
}

func (s *OrderStore) CreateLines(ctx context.Context, q Querier, orderID uuid.UUID, lines []models.OrderLine) error {
	for i := range lines {
		line := &lines[i]
		line.OrderID = orderID
		row := q.QueryRow(ctx, `
			INSERT INTO order_lines (order_id, product_id, product_name, unit_price, quantity, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			orderID,
			line.ProductID,
			line.ProductName,
			line.UnitPrice.StringFixed(2),
			line.Quantity,
			line.Subtotal.StringFixed(2),
		)
		if err := row.Scan(&line.ID); err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByTracking(ctx context.Context, trackingNumber string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tracking_number = $1`, trackingNumber)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *OrderStore) List(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// HasPriorOrders reports whether the user has any non-cancelled order, which
// disqualifies them from new-user vouchers.
func (s *OrderStore) HasPriorOrders(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders WHERE user_id = $1 AND payment_status <> 'cancelled'
		)`, userID).Scan(&exists)
	return exists, err
}

// MarkPaid flips a pending (or previously failed) order to paid. The status
// guard inside the same statement makes replayed callbacks no-ops: the second
// application matches zero rows.
func (s *OrderStore) MarkPaid(ctx context.Context, trackingNumber string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'paid', paid_at = NOW(), failure_reason = NULL
		WHERE tracking_number = $1 AND payment_status IN ('pending', 'failed')`,
		trackingNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *OrderStore) MarkFailed(ctx context.Context, trackingNumber, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'failed', failure_reason = $2
		WHERE tracking_number = $1 AND payment_status IN ('pending', 'failed')`,
		trackingNumber, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkPaidOnDelivery settles a cash-on-delivery order inside the delivery
// completion transaction.
func (s *OrderStore) MarkPaidOnDelivery(ctx context.Context, q Querier, orderID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'paid', paid_at = NOW()
		WHERE id = $1 AND payment_method = 'cod' AND payment_status = 'pending'`,
		orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending cod order", ErrInvalidStatusTransition)
	}
	return nil
}

// CancelPending cancels an order that has not been paid yet and has not left
// the warehouse. The fulfillment predicate matters for cash-on-delivery:
// payment stays pending through shipping, so without it a shipped COD order
// would still cancel and strand its delivery order. When byUser is set, only
// that owner's order matches. The caller's transaction restocks inventory and
// rolls back voucher usage alongside.
func (s *OrderStore) CancelPending(ctx context.Context, q Querier, orderID uuid.UUID, byUser *uuid.UUID) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'cancelled', fulfillment_status = 'cancelled', cancelled_at = NOW()
		WHERE id = $1
		  AND payment_status = 'pending'
		  AND fulfillment_status = 'processing'
		  AND ($2::uuid IS NULL OR user_id = $2::uuid)`,
		orderID, nullableUUID(byUser))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiredPending returns prepaid orders whose checkout window lapsed
// without a callback. They are eligible for passive expiry cancellation.
func (s *OrderStore) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE payment_status = 'pending' AND payment_method <> 'cod' AND created_at < $1`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkShipping moves a processing order to shipping. Prepaid orders may not
// advance until payment succeeded; cash-on-delivery ships unpaid.
func (s *OrderStore) MarkShipping(ctx context.Context, q Querier, orderID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET fulfillment_status = 'shipping'
		WHERE id = $1
		  AND fulfillment_status = 'processing'
		  AND (payment_method = 'cod' OR payment_status = 'paid')`,
		orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected a paid (or cod) processing order", ErrInvalidStatusTransition)
	}
	return nil
}

// UpdateFulfillment advances fulfillment with both ends of the transition
// pinned in the statement.
func (s *OrderStore) UpdateFulfillment(ctx context.Context, q Querier, orderID uuid.UUID, from, to models.FulfillmentStatus) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders
		SET fulfillment_status = $3
		WHERE id = $1 AND fulfillment_status = $2`,
		orderID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, from)
	}
	return nil
}

func (s *OrderStore) attachLines(ctx context.Context, order *models.Order) error {
	lines, err := s.GetLines(ctx, s.pool, order.ID)
	if err != nil {
		return err
	}
	order.Lines = lines
	return nil
}

func (s *OrderStore) GetLines(ctx context.Context, q Querier, orderID uuid.UUID) ([]models.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal, return_quantity
		FROM order_lines
		WHERE order_id = $1
		ORDER BY product_name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		var unitPrice, subtotal pgtype.Numeric
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName,
			&unitPrice, &line.Quantity, &subtotal, &line.ReturnQuantity); err != nil {
			return nil, err
		}
		line.UnitPrice = numericToDecimal(unitPrice)
		line.Subtotal = numericToDecimal(subtotal)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func collectOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order             models.Order
		priceVoucherID    uuid.NullUUID
		shippingVoucherID uuid.NullUUID
		customerEmail     pgtype.Text
		subtotal          pgtype.Numeric
		shippingFee       pgtype.Numeric
		discountAmount    pgtype.Numeric
		finalAmount       pgtype.Numeric
		note              pgtype.Text
		failureReason     pgtype.Text
		returnNote        pgtype.Text
		returnImages      []byte
		createdAt         pgtype.Timestamptz
		paidAt            pgtype.Timestamptz
		cancelledAt       pgtype.Timestamptz
		paymentMethod     string
		paymentStatus     string
		fulfillment       string
		returnStatus      string
	)

	err := row.Scan(
		&order.ID, &order.UserID, &order.TrackingNumber, &customerEmail, &order.ShippingAddress,
		&priceVoucherID, &shippingVoucherID,
		&subtotal, &shippingFee, &discountAmount, &finalAmount,
		&paymentMethod, &paymentStatus, &fulfillment,
		&note, &failureReason, &returnStatus, &returnNote, &returnImages,
		&createdAt, &paidAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if priceVoucherID.Valid {
		id := priceVoucherID.UUID
		order.PriceVoucherID = &id
	}
	if shippingVoucherID.Valid {
		id := shippingVoucherID.UUID
		order.ShippingVoucherID = &id
	}
	order.Subtotal = numericToDecimal(subtotal)
	order.ShippingFee = numericToDecimal(shippingFee)
	order.DiscountAmount = numericToDecimal(discountAmount)
	order.FinalAmount = numericToDecimal(finalAmount)
	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.Fulfillment = models.FulfillmentStatus(fulfillment)
	order.ReturnStatus = models.ReturnStatus(returnStatus)
	if customerEmail.Valid {
		order.CustomerEmail = customerEmail.String
	}
	if note.Valid {
		order.Note = note.String
	}
	if failureReason.Valid {
		order.FailureReason = failureReason.String
	}
	if returnNote.Valid {
		order.ReturnNote = returnNote.String
	}
	if returnImages != nil {
		if err := json.Unmarshal(returnImages, &order.ReturnImages); err != nil {
			return nil, fmt.Errorf("failed to decode return images: %w", err)
		}
	}
	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = cancelledAt.Time
	}

	return &order, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
