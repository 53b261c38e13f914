package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vietshopapp/vietshop/internal/cache"
	"github.com/vietshopapp/vietshop/internal/db"
	"github.com/vietshopapp/vietshop/internal/email"
	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/models"
	"github.com/vietshopapp/vietshop/internal/observability"
	"github.com/vietshopapp/vietshop/internal/vnpay"
)

var (
	ErrUnknownTransaction = errors.New("unknown transaction reference")
	ErrAmountMismatch     = errors.New("callback amount does not match order")
)

const (
	gatewayName = "vnpay"

	// Processed callbacks stay deduplicated in cache well past any realistic
	// gateway retry horizon. The database status guard backstops evictions.
	callbackDedupTTL = 24 * time.Hour

	// Checkout links expire after fifteen minutes; the sweep allows a grace
	// period for in-flight callbacks before reclaiming stock.
	pendingPaymentWindow = 30 * time.Minute
)

type callbackVerifier interface {
	VerifyCallback(values url.Values) (*vnpay.CallbackResult, error)
}

type paymentOrderStore interface {
	GetByTracking(ctx context.Context, trackingNumber string) (*models.Order, error)
	MarkPaid(ctx context.Context, trackingNumber string) (bool, error)
	MarkFailed(ctx context.Context, trackingNumber, reason string) error
}

type orderCanceller interface {
	CancelOrder(ctx context.Context, orderID uuid.UUID, byUser *uuid.UUID) (bool, error)
}

type expiredPendingLister interface {
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type PaymentService struct {
	verifier    callbackVerifier
	orders      paymentOrderStore
	expired     expiredPendingLister
	canceller   orderCanceller
	cache       cache.Provider
	emailSender email.Provider
	logger      *slog.Logger
	now         func() time.Time
}

func NewPaymentService(verifier callbackVerifier, orders paymentOrderStore, expired expiredPendingLister, canceller orderCanceller, cacheProvider cache.Provider, emailSender email.Provider, logger *slog.Logger) *PaymentService {
	if emailSender == nil {
		emailSender = email.NoopProvider{}
	}
	return &PaymentService{
		verifier:    verifier,
		orders:      orders,
		expired:     expired,
		canceller:   canceller,
		cache:       cacheProvider,
		emailSender: emailSender,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// CallbackOutcome is what the return-URL page renders. Replayed reports that
// this callback had already been applied and produced no new side effects.
type CallbackOutcome struct {
	Order         *models.Order
	Success       bool
	FailureReason string
	Replayed      bool
}

// HandleCallback verifies a gateway return callback and settles the matching
// order. Unverifiable callbacks are discarded without touching any order.
// Redelivered callbacks collapse to one logical application: first via the
// cache, and past cache eviction via the payment status guard in the store.
func (s *PaymentService) HandleCallback(ctx context.Context, values url.Values) (*CallbackOutcome, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.handle_callback",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("HandleCallback"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordRejected := func(reason string) {
		meter.Count("payment.callback.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("payment.callback.received", 1)

	result, err := s.verifier.VerifyCallback(values)
	if err != nil {
		recordRejected("signature_invalid")
		logger.Warn("discarding unverifiable gateway callback", "error", err)
		return nil, err
	}

	order, err := s.orders.GetByTracking(ctx, result.TrackingNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			recordRejected("unknown_txn_ref")
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, result.TrackingNumber)
		}
		return nil, fmt.Errorf("failed to load order for callback: %w", err)
	}

	if !result.Amount.Equal(order.FinalAmount) {
		recordRejected("amount_mismatch")
		logger.Warn("callback amount mismatch",
			"tracking_number", result.TrackingNumber,
			"callback_amount", result.Amount.StringFixed(2),
			"order_amount", order.FinalAmount.StringFixed(2))
		return nil, fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch,
			result.Amount.StringFixed(2), order.FinalAmount.StringFixed(2))
	}

	outcome := &CallbackOutcome{
		Order:         order,
		Success:       result.Success,
		FailureReason: result.FailureReason,
	}

	dedupKey := cache.CallbackKey(gatewayName, result.TrackingNumber, result.ResponseCode)
	if _, err := s.cache.Get(ctx, dedupKey); err == nil {
		meter.Count("payment.callback.replayed", 1)
		outcome.Replayed = true
		return outcome, nil
	}

	if result.Success {
		applied, err := s.orders.MarkPaid(ctx, result.TrackingNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
		if !applied {
			// Another delivery of the same callback won the race.
			meter.Count("payment.callback.replayed", 1)
			outcome.Replayed = true
		} else {
			order.PaymentStatus = models.PaymentPaid
			order.FailureReason = ""
			meter.Count("payment.succeeded", 1, sentry.WithAttributes(
				attribute.String("bank_code", result.BankCode),
			))
			logger.Info("payment confirmed",
				"tracking_number", result.TrackingNumber,
				"gateway_txn", result.GatewayTxnNo)
			s.sendConfirmation(ctx, order)
		}
	} else {
		if err := s.orders.MarkFailed(ctx, result.TrackingNumber, result.FailureReason); err != nil {
			if !errors.Is(err, db.ErrInvalidStatusTransition) {
				return nil, fmt.Errorf("failed to mark order failed: %w", err)
			}
			// Already settled or cancelled; the failure is stale.
			meter.Count("payment.callback.replayed", 1)
			outcome.Replayed = true
		} else {
			order.PaymentStatus = models.PaymentFailed
			order.FailureReason = result.FailureReason
			meter.Count("payment.failed", 1, sentry.WithAttributes(
				attribute.String("response_code", result.ResponseCode),
			))
			logger.Info("payment failed",
				"tracking_number", result.TrackingNumber,
				"response_code", result.ResponseCode,
				"reason", result.FailureReason)
		}
	}

	if err := s.cache.Set(ctx, dedupKey, "1", callbackDedupTTL); err != nil {
		logger.Warn("failed to record callback dedup key", "error", err, "key", dedupKey)
	}

	return outcome, nil
}

func (s *PaymentService) sendConfirmation(ctx context.Context, order *models.Order) {
	if order.CustomerEmail == "" {
		return
	}
	msg := email.OrderPaidEmail(order.CustomerEmail, order)
	if err := s.emailSender.SendEmail(ctx, msg); err != nil {
		s.loggerFromContext(ctx).Warn("failed to send order confirmation",
			"error", err, "tracking_number", order.TrackingNumber)
	}
}

// ExpirePending cancels prepaid orders whose checkout window lapsed without a
// callback, restoring their stock and voucher uses. It runs opportunistically
// rather than on a scheduler; each cancellation is guarded, so racing a late
// callback is safe.
func (s *PaymentService) ExpirePending(ctx context.Context) (int, error) {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	cutoff := s.now().Add(-pendingPaymentWindow)
	ids, err := s.expired.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired pending orders: %w", err)
	}

	cancelled := 0
	for _, id := range ids {
		ok, err := s.canceller.CancelOrder(ctx, id, nil)
		if err != nil {
			logger.Warn("failed to expire pending order", "error", err, "order_id", id)
			continue
		}
		if ok {
			cancelled++
		}
	}
	if cancelled > 0 {
		meter.Count("order.expired", int64(cancelled))
		logger.Info("expired pending orders", "count", cancelled)
	}
	return cancelled, nil
}
