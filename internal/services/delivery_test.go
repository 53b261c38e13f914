package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietshopapp/vietshop/internal/cache"
	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/models"
)

type fakeDeliveryQueue struct {
	items []*models.DeliveryOrder
	lists int
}

func (f *fakeDeliveryQueue) GetByTracking(ctx context.Context, trackingNumber string) (*models.DeliveryOrder, error) {
	for _, d := range f.items {
		if d.TrackingNumber == trackingNumber {
			return d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeDeliveryQueue) Assign(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	return nil
}

func (f *fakeDeliveryQueue) MarkReceived(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	return nil
}

func (f *fakeDeliveryQueue) ListByStatus(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.DeliveryOrder, error) {
	f.lists++
	if offset >= len(f.items) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[offset:end], nil
}

type fakeDeliveryOrders struct {
	order *models.Order
}

func (f *fakeDeliveryOrders) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return f.order, nil
}

type fakeDeliveryAssembler struct {
	delivery      *models.DeliveryOrder
	readyTracking string
	completedRefs []string
}

func (f *fakeDeliveryAssembler) MarkReadyToShip(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*models.DeliveryOrder, error) {
	f.readyTracking = trackingNumber
	return f.delivery, nil
}

func (f *fakeDeliveryAssembler) CompleteDelivery(ctx context.Context, trackingNumber string, shipperID uuid.UUID, proofImage string) error {
	f.completedRefs = append(f.completedRefs, trackingNumber)
	return nil
}

func newTestDelivery(t *testing.T, queue *fakeDeliveryQueue, orders *fakeDeliveryOrders, assembler *fakeDeliveryAssembler) *DeliveryService {
	t.Helper()
	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	return NewDeliveryService(queue, orders, assembler, provider, logging.Discard())
}

func queueItems(n int) []*models.DeliveryOrder {
	items := make([]*models.DeliveryOrder, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &models.DeliveryOrder{
			ID:             uuid.New(),
			OrderID:        uuid.New(),
			TrackingNumber: uuid.NewString(),
			Status:         models.DeliveryCreated,
		})
	}
	return items
}

func TestQueue_CachedPageHonorsLimit(t *testing.T) {
	t.Parallel()

	queue := &fakeDeliveryQueue{items: queueItems(5)}
	service := newTestDelivery(t, queue, &fakeDeliveryOrders{}, &fakeDeliveryAssembler{})
	ctx := context.Background()

	first, err := service.Queue(ctx, models.DeliveryCreated, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 || queue.lists != 1 {
		t.Fatalf("expected one store read of 2 items, got %d items after %d reads", len(first), queue.lists)
	}

	again, err := service.Queue(ctx, models.DeliveryCreated, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 2 || queue.lists != 1 {
		t.Fatalf("repeat request should come from cache, got %d items after %d reads", len(again), queue.lists)
	}

	// A larger limit cannot be served from the shorter cached page.
	wider, err := service.Queue(ctx, models.DeliveryCreated, 4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wider) != 4 {
		t.Fatalf("expected 4 items for the wider page, got %d", len(wider))
	}
	if queue.lists != 2 {
		t.Fatalf("wider page must go back to the store, got %d reads", queue.lists)
	}

	// Later pages always bypass the cache.
	if _, err := service.Queue(ctx, models.DeliveryCreated, 2, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queue.lists != 3 {
		t.Fatalf("offset pages must not be cached, got %d reads", queue.lists)
	}
}

func TestMarkReadyToShip_ReusesOrderTracking(t *testing.T) {
	t.Parallel()

	order := &models.Order{ID: uuid.New(), TrackingNumber: "VS-20260829-A41F03"}
	assembler := &fakeDeliveryAssembler{
		delivery: &models.DeliveryOrder{OrderID: order.ID, TrackingNumber: order.TrackingNumber},
	}
	service := newTestDelivery(t, &fakeDeliveryQueue{}, &fakeDeliveryOrders{order: order}, assembler)

	delivery, err := service.MarkReadyToShip(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assembler.readyTracking != order.TrackingNumber {
		t.Fatalf("delivery opened under %q, order tracks %q", assembler.readyTracking, order.TrackingNumber)
	}
	if delivery.TrackingNumber != order.TrackingNumber {
		t.Fatalf("delivery order must reuse the order tracking number, got %q", delivery.TrackingNumber)
	}
}
