package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/models"
)

type DeliveryStore struct {
	pool *pgxpool.Pool
}

func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

const deliveryColumns = `
	id, order_id, tracking_number, shipper_id, status,
	proof_image, note, assigned_at, received_at, delivered_at, created_at`

// Create opens a delivery order when its parent enters the shipping state.
// The unique order_id constraint keeps it one per order.
func (s *DeliveryStore) Create(ctx context.Context, q Querier, orderID uuid.UUID, trackingNumber string) (*models.DeliveryOrder, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO delivery_orders (order_id, tracking_number, status)
		VALUES ($1, $2, 'created')
		RETURNING id, created_at`,
		orderID, trackingNumber)

	delivery := &models.DeliveryOrder{
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		Status:         models.DeliveryCreated,
	}
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&delivery.ID, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to create delivery order: %w", err)
	}
	delivery.CreatedAt = createdAt.Time
	return delivery, nil
}

func (s *DeliveryStore) GetByTracking(ctx context.Context, trackingNumber string) (*models.DeliveryOrder, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_orders
		WHERE tracking_number = $1`, trackingNumber)
	return scanDelivery(row)
}

// Assign dispatches a shipper to an un-picked-up delivery.
func (s *DeliveryStore) Assign(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delivery_orders
		SET shipper_id = $2, assigned_at = NOW()
		WHERE tracking_number = $1 AND status = 'created'`,
		trackingNumber, shipperID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected created", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkReceived records physical pickup. Only the assigned shipper matches the
// guard, and only from the created state.
func (s *DeliveryStore) MarkReceived(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delivery_orders
		SET status = 'delivering', received_at = NOW()
		WHERE tracking_number = $1 AND shipper_id = $2 AND status = 'created'`,
		trackingNumber, shipperID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected created and assigned to shipper", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkDelivered records drop-off with proof. It runs on the caller's Querier:
// the same transaction flips the parent order to delivered (and settles COD).
func (s *DeliveryStore) MarkDelivered(ctx context.Context, q Querier, trackingNumber string, shipperID uuid.UUID, proofImage string) error {
	if proofImage == "" {
		return fmt.Errorf("proof of delivery image is required")
	}

	tag, err := q.Exec(ctx, `
		UPDATE delivery_orders
		SET status = 'delivered', proof_image = $3, delivered_at = NOW()
		WHERE tracking_number = $1 AND shipper_id = $2 AND status = 'delivering'`,
		trackingNumber, shipperID, proofImage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected delivering and assigned to shipper", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *DeliveryStore) ListByStatus(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.DeliveryOrder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_orders
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.DeliveryOrder
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

func scanDelivery(row pgx.Row) (*models.DeliveryOrder, error) {
	var (
		delivery    models.DeliveryOrder
		shipperID   uuid.NullUUID
		status      string
		proofImage  pgtype.Text
		note        pgtype.Text
		assignedAt  pgtype.Timestamptz
		receivedAt  pgtype.Timestamptz
		deliveredAt pgtype.Timestamptz
		createdAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&delivery.ID, &delivery.OrderID, &delivery.TrackingNumber, &shipperID, &status,
		&proofImage, &note, &assignedAt, &receivedAt, &deliveredAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if shipperID.Valid {
		id := shipperID.UUID
		delivery.ShipperID = &id
	}
	delivery.Status = models.DeliveryStatus(status)
	if proofImage.Valid {
		delivery.ProofImage = proofImage.String
	}
	if note.Valid {
		delivery.Note = note.String
	}
	if assignedAt.Valid {
		delivery.AssignedAt = assignedAt.Time
	}
	if receivedAt.Valid {
		delivery.ReceivedAt = receivedAt.Time
	}
	if deliveredAt.Valid {
		delivery.DeliveredAt = deliveredAt.Time
	}
	delivery.CreatedAt = createdAt.Time

	return &delivery, nil
}
