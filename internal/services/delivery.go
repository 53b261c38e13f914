package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/vietshopapp/vietshop/internal/cache"
	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/models"
	"github.com/vietshopapp/vietshop/internal/observability"
)

// Shipper queue pages tolerate slight staleness; writes invalidate the cache
// only on the delivery they touch, not the whole listing.
const queueCacheTTL = 30 * time.Second

type deliveryStore interface {
	GetByTracking(ctx context.Context, trackingNumber string) (*models.DeliveryOrder, error)
	Assign(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error
	MarkReceived(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error
	ListByStatus(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.DeliveryOrder, error)
}

type deliveryOrders interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type deliveryAssembler interface {
	MarkReadyToShip(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*models.DeliveryOrder, error)
	CompleteDelivery(ctx context.Context, trackingNumber string, shipperID uuid.UUID, proofImage string) error
}

type DeliveryService struct {
	deliveries deliveryStore
	orders     deliveryOrders
	assembler  deliveryAssembler
	cache      cache.Provider
	logger     *slog.Logger
}

func NewDeliveryService(deliveries deliveryStore, orders deliveryOrders, assembler deliveryAssembler, cacheProvider cache.Provider, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		deliveries: deliveries,
		orders:     orders,
		assembler:  assembler,
		cache:      cacheProvider,
		logger:     logger,
	}
}

func (s *DeliveryService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// MarkReadyToShip hands a processing order over to delivery. The delivery
// order reuses the order's tracking number, which is what shippers scan.
func (s *DeliveryService) MarkReadyToShip(ctx context.Context, orderID uuid.UUID) (*models.DeliveryOrder, error) {
	span := sentry.StartSpan(
		ctx,
		"service.delivery.mark_ready_to_ship",
		sentry.WithOpName("service.delivery"),
		sentry.WithDescription("MarkReadyToShip"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	delivery, err := s.assembler.MarkReadyToShip(ctx, order.ID, order.TrackingNumber)
	if err != nil {
		meter.Count("delivery.ready_to_ship.rejected", 1)
		return nil, err
	}
	meter.Count("delivery.created", 1)
	s.loggerFromContext(ctx).Info("order ready to ship",
		"order_id", order.ID, "tracking_number", order.TrackingNumber)
	s.invalidateQueue(ctx, models.DeliveryCreated)

	return delivery, nil
}

// Assign dispatches a shipper to a waiting delivery.
func (s *DeliveryService) Assign(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	if err := s.deliveries.Assign(ctx, trackingNumber, shipperID); err != nil {
		return err
	}
	observability.MeterFromContext(ctx).Count("delivery.assigned", 1)
	s.loggerFromContext(ctx).Info("delivery assigned",
		"tracking_number", trackingNumber, "shipper_id", shipperID)
	s.invalidateQueue(ctx, models.DeliveryCreated)
	return nil
}

// MarkReceived records that the assigned shipper picked the package up.
func (s *DeliveryService) MarkReceived(ctx context.Context, trackingNumber string, shipperID uuid.UUID) error {
	if err := s.deliveries.MarkReceived(ctx, trackingNumber, shipperID); err != nil {
		return err
	}
	observability.MeterFromContext(ctx).Count("delivery.received", 1)
	s.loggerFromContext(ctx).Info("delivery picked up",
		"tracking_number", trackingNumber, "shipper_id", shipperID)
	s.invalidateQueue(ctx, models.DeliveryCreated)
	s.invalidateQueue(ctx, models.DeliveryDelivering)
	return nil
}

// Complete records drop-off with proof and settles the parent order, including
// cash-on-delivery payment, in one transaction.
func (s *DeliveryService) Complete(ctx context.Context, trackingNumber string, shipperID uuid.UUID, proofImage string) error {
	span := sentry.StartSpan(
		ctx,
		"service.delivery.complete",
		sentry.WithOpName("service.delivery"),
		sentry.WithDescription("Complete"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	if err := s.assembler.CompleteDelivery(ctx, trackingNumber, shipperID, proofImage); err != nil {
		meter.Count("delivery.complete.rejected", 1, sentry.WithAttributes(
			attribute.String("tracking_number", trackingNumber),
		))
		return err
	}
	meter.Count("delivery.completed", 1)
	s.loggerFromContext(ctx).Info("delivery completed",
		"tracking_number", trackingNumber, "shipper_id", shipperID)
	s.invalidateQueue(ctx, models.DeliveryDelivering)
	return nil
}

func (s *DeliveryService) Get(ctx context.Context, trackingNumber string) (*models.DeliveryOrder, error) {
	return s.deliveries.GetByTracking(ctx, trackingNumber)
}

// Queue lists deliveries in one status for the shipper work screens. The first
// page is cached briefly since every shipper polls it.
func (s *DeliveryService) Queue(ctx context.Context, status models.DeliveryStatus, limit, offset int) ([]*models.DeliveryOrder, error) {
	key := queueCacheKey(status)
	cacheable := offset == 0

	if cacheable {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cached []*models.DeliveryOrder
			// A cached page fetched with a smaller limit cannot answer a
			// larger request; fall through to the store for those.
			if err := json.Unmarshal([]byte(raw), &cached); err == nil && len(cached) >= limit {
				return cached[:limit], nil
			}
		}
	}

	deliveries, err := s.deliveries.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if raw, err := json.Marshal(deliveries); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), queueCacheTTL); err != nil {
				s.loggerFromContext(ctx).Warn("failed to cache shipper queue", "error", err, "status", status)
			}
		}
	}
	return deliveries, nil
}

func (s *DeliveryService) invalidateQueue(ctx context.Context, status models.DeliveryStatus) {
	if err := s.cache.Delete(ctx, queueCacheKey(status)); err != nil {
		s.loggerFromContext(ctx).Warn("failed to invalidate shipper queue cache", "error", err, "status", status)
	}
}

func queueCacheKey(status models.DeliveryStatus) string {
	return "shipper_queue:" + string(status)
}
