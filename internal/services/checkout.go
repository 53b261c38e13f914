package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/models"
	"github.com/vietshopapp/vietshop/internal/observability"
	"github.com/vietshopapp/vietshop/internal/vnpay"
	"github.com/vietshopapp/vietshop/internal/voucher"
)

const trackingNumberAttempts = 3

var (
	ErrEmptyOrder         = errors.New("order has no items")
	ErrInvalidInput       = errors.New("invalid checkout input")
	ErrVoucherNotFound    = errors.New("voucher not found")
	ErrProductUnavailable = errors.New("product unavailable")
)

type orderAssembler interface {
	AssembleOrder(ctx context.Context, order *models.Order) error
}

type voucherDirectory interface {
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
}

type productCatalog interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type orderHistory interface {
	HasPriorOrders(ctx context.Context, userID uuid.UUID) (bool, error)
}

type paymentURLBuilder interface {
	BuildPaymentURL(req vnpay.PaymentRequest) (string, error)
}

type feeQuoter interface {
	FeeFor(region string, subtotal decimal.Decimal) decimal.Decimal
}

type CheckoutService struct {
	assembler orderAssembler
	vouchers  voucherDirectory
	catalog   productCatalog
	history   orderHistory
	fees      feeQuoter
	gateway   paymentURLBuilder
	evaluator *voucher.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

func NewCheckoutService(assembler orderAssembler, vouchers voucherDirectory, catalog productCatalog, history orderHistory, fees feeQuoter, gateway paymentURLBuilder, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		assembler: assembler,
		vouchers:  vouchers,
		catalog:   catalog,
		history:   history,
		fees:      fees,
		gateway:   gateway,
		evaluator: voucher.NewEvaluator(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CheckoutItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CheckoutInput struct {
	UserID              uuid.UUID
	CustomerEmail       string
	ShippingAddress     string
	Region              string
	Note                string
	PaymentMethod       models.PaymentMethod
	Items               []CheckoutItem
	PriceVoucherCode    string
	ShippingVoucherCode string
	ClientIP            string
}

// CheckoutResult carries the persisted order and, for prepaid orders, the
// signed gateway redirect the customer is sent to.
type CheckoutResult struct {
	Order      *models.Order
	PaymentURL string
}

// Checkout prices the cart from current product data, applies at most one
// price voucher and one shipping voucher, and persists the order atomically
// with its stock and voucher effects. Amounts stored on the order are final:
// later product or voucher edits never reprice it.
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.checkout",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Checkout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("checkout.received", 1)

	if len(input.Items) == 0 {
		recordFailure("empty_order")
		return nil, ErrEmptyOrder
	}
	if input.ShippingAddress == "" {
		recordFailure("missing_address")
		return nil, fmt.Errorf("%w: shipping address is required", ErrInvalidInput)
	}
	if input.PaymentMethod != models.MethodVNPay && input.PaymentMethod != models.MethodCOD {
		recordFailure("bad_payment_method")
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, input.PaymentMethod)
	}

	lines, subtotal, err := s.priceLines(ctx, input.Items)
	if err != nil {
		recordFailure("pricing_failed")
		return nil, err
	}

	shippingFee := s.fees.FeeFor(input.Region, subtotal)

	order := &models.Order{
		UserID:          input.UserID,
		CustomerEmail:   input.CustomerEmail,
		ShippingAddress: input.ShippingAddress,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Fulfillment:     models.FulfillmentProcessing,
		ReturnStatus:    models.ReturnNone,
		Note:            input.Note,
		Lines:           lines,
	}

	discount, err := s.applyVouchers(ctx, order, input)
	if err != nil {
		recordFailure("voucher_rejected")
		return nil, err
	}
	order.DiscountAmount = discount
	order.FinalAmount = subtotal.Add(shippingFee).Sub(discount)
	if order.FinalAmount.IsNegative() {
		order.FinalAmount = decimal.Zero
	}

	createdAt := s.now()
	for attempt := 1; ; attempt++ {
		order.TrackingNumber, err = newTrackingNumber(createdAt)
		if err != nil {
			recordFailure("tracking_number_failed")
			return nil, fmt.Errorf("failed to generate tracking number: %w", err)
		}

		err = s.assembler.AssembleOrder(ctx, order)
		if err == nil {
			break
		}
		// Same-day tracking suffixes can collide; the insert rolls the whole
		// transaction back, so retrying with a fresh number is safe.
		if isDuplicateTracking(err) && attempt < trackingNumberAttempts {
			logger.Warn("tracking number collision, retrying",
				"tracking_number", order.TrackingNumber, "attempt", attempt)
			continue
		}
		recordFailure("assembly_failed")
		return nil, err
	}
	meter.Count("order.created", 1, sentry.WithAttributes(
		attribute.String("payment_method", string(order.PaymentMethod)),
	))
	logger.Info("order created",
		"order_id", order.ID,
		"tracking_number", order.TrackingNumber,
		"final_amount", order.FinalAmount.StringFixed(2),
		"payment_method", order.PaymentMethod)

	result := &CheckoutResult{Order: order}
	if !order.PaymentMethod.Prepaid() {
		return result, nil
	}

	paymentURL, err := s.gateway.BuildPaymentURL(vnpay.PaymentRequest{
		TrackingNumber: order.TrackingNumber,
		Amount:         order.FinalAmount,
		OrderInfo:      "Payment for order " + order.TrackingNumber,
		ClientIP:       input.ClientIP,
		CreatedAt:      createdAt,
	})
	if err != nil {
		// The order stays pending; the expiry sweep reclaims it if the
		// customer never gets a working link.
		recordFailure("payment_url_failed")
		return nil, fmt.Errorf("failed to build payment URL: %w", err)
	}
	result.PaymentURL = paymentURL

	return result, nil
}

// priceLines snapshots name and unit price per item at checkout time.
func (s *CheckoutService) priceLines(ctx context.Context, items []CheckoutItem) ([]models.OrderLine, decimal.Decimal, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidInput, item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, decimal.Zero, fmt.Errorf("%w: duplicate product %s in order", ErrInvalidInput, item.ProductID)
		}
		seen[item.ProductID] = item.Quantity
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to load products: %w", err)
	}

	lines := make([]models.OrderLine, 0, len(items))
	subtotal := decimal.Zero
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
		}
		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines, models.OrderLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
			Subtotal:    lineSubtotal,
		})
		subtotal = subtotal.Add(lineSubtotal)
	}
	return lines, subtotal, nil
}

// applyVouchers evaluates the price and shipping codes independently and
// returns their combined discount. Either failing fails the checkout; a
// partially applied voucher pair is never persisted.
func (s *CheckoutService) applyVouchers(ctx context.Context, order *models.Order, input CheckoutInput) (decimal.Decimal, error) {
	if input.PriceVoucherCode == "" && input.ShippingVoucherCode == "" {
		return decimal.Zero, nil
	}

	hasPrior, err := s.history.HasPriorOrders(ctx, input.UserID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check order history: %w", err)
	}
	isNewUser := !hasPrior

	now := s.now()
	total := decimal.Zero

	if input.PriceVoucherCode != "" {
		v, discount, err := s.evaluateCode(ctx, input.PriceVoucherCode, models.ScopePrice, order, input.UserID, isNewUser, now)
		if err != nil {
			return decimal.Zero, err
		}
		order.PriceVoucherID = &v.ID
		total = total.Add(discount)
	}
	if input.ShippingVoucherCode != "" {
		v, discount, err := s.evaluateCode(ctx, input.ShippingVoucherCode, models.ScopeShipping, order, input.UserID, isNewUser, now)
		if err != nil {
			return decimal.Zero, err
		}
		order.ShippingVoucherID = &v.ID
		total = total.Add(discount)
	}
	return total, nil
}

func (s *CheckoutService) evaluateCode(ctx context.Context, code string, scope models.VoucherScope, order *models.Order, userID uuid.UUID, isNewUser bool, now time.Time) (*models.Voucher, decimal.Decimal, error) {
	v, err := s.vouchers.GetByCode(ctx, voucher.NormalizeCode(code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", ErrVoucherNotFound, voucher.NormalizeCode(code))
		}
		return nil, decimal.Zero, fmt.Errorf("failed to load voucher: %w", err)
	}

	discount, err := s.evaluator.Evaluate(voucher.Input{
		Voucher:   *v,
		Scope:     scope,
		Subtotal:  order.Subtotal,
		Shipping:  order.ShippingFee,
		UserID:    userID,
		IsNewUser: isNewUser,
		Now:       now,
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return v, discount, nil
}

func isDuplicateTracking(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		strings.Contains(pgErr.ConstraintName, "tracking_number")
}

const pgUniqueViolation = "23505"

// newTrackingNumber produces the customer-facing order reference, e.g.
// VS-20260829-A41F03. The random suffix keeps same-day orders distinct.
func newTrackingNumber(now time.Time) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("VS-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf))), nil
}
