package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/models"
	"github.com/vietshopapp/vietshop/internal/vnpay"
	"github.com/vietshopapp/vietshop/internal/voucher"
)

type fakeAssembler struct {
	order     *models.Order
	err       error
	errQueue  []error
	trackings []string
}

func (f *fakeAssembler) AssembleOrder(ctx context.Context, order *models.Order) error {
	f.trackings = append(f.trackings, order.TrackingNumber)
	if len(f.errQueue) > 0 {
		err := f.errQueue[0]
		f.errQueue = f.errQueue[1:]
		if err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	order.ID = uuid.New()
	f.order = order
	return nil
}

type fakeVouchers struct {
	byCode map[string]*models.Voucher
}

func (f *fakeVouchers) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	v, ok := f.byCode[code]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

type fakeCatalog struct {
	products map[uuid.UUID]models.Product
}

func (f *fakeCatalog) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	found := make(map[uuid.UUID]models.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

type fakeHistory struct {
	hasPrior bool
}

func (f *fakeHistory) HasPriorOrders(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f.hasPrior, nil
}

type fakeGateway struct {
	url     string
	err     error
	request vnpay.PaymentRequest
}

func (f *fakeGateway) BuildPaymentURL(req vnpay.PaymentRequest) (string, error) {
	f.request = req
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type flatFee struct {
	fee decimal.Decimal
}

func (f flatFee) FeeFor(region string, subtotal decimal.Decimal) decimal.Decimal {
	return f.fee
}

func money(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", value, err)
	}
	return d
}

func testVoucher(scope models.VoucherScope, kind models.VoucherKind, amount, maxAmount string) *models.Voucher {
	now := time.Now()
	return &models.Voucher{
		ID:                uuid.New(),
		Code:              "TEST",
		Kind:              kind,
		Scope:             scope,
		DiscountAmount:    decimal.RequireFromString(amount),
		MaxDiscountAmount: decimal.RequireFromString(maxAmount),
		UsageLimit:        100,
		StartDate:         now.Add(-time.Hour),
		EndDate:           now.Add(time.Hour),
		IsActive:          true,
		IsPublic:          true,
	}
}

func newTestCheckout(assembler *fakeAssembler, vouchers *fakeVouchers, catalog *fakeCatalog, gateway *fakeGateway) *CheckoutService {
	return NewCheckoutService(
		assembler,
		vouchers,
		catalog,
		&fakeHistory{hasPrior: true},
		flatFee{fee: decimal.NewFromInt(30000)},
		gateway,
		logging.Discard(),
	)
}

func TestCheckout_PricesCartAndBuildsPaymentURL(t *testing.T) {
	t.Parallel()

	productA := models.Product{ID: uuid.New(), Name: "Ceramic mug", Price: decimal.NewFromInt(150000), Stock: 10, Active: true}
	productB := models.Product{ID: uuid.New(), Name: "Tea sampler", Price: decimal.NewFromInt(100000), Stock: 5, Active: true}

	priceVoucher := testVoucher(models.ScopePrice, models.KindPercentage, "10", "40000")
	priceVoucher.Code = "SALE10"
	shippingVoucher := testVoucher(models.ScopeShipping, models.KindFixed, "20000", "20000")
	shippingVoucher.Code = "FREESHIP"

	assembler := &fakeAssembler{}
	gateway := &fakeGateway{url: "https://pay.example/redirect"}
	service := newTestCheckout(
		assembler,
		&fakeVouchers{byCode: map[string]*models.Voucher{"SALE10": priceVoucher, "FREESHIP": shippingVoucher}},
		&fakeCatalog{products: map[uuid.UUID]models.Product{productA.ID: productA, productB.ID: productB}},
		gateway,
	)

	result, err := service.Checkout(context.Background(), CheckoutInput{
		UserID:          uuid.New(),
		ShippingAddress: "12 Hang Bac, Hoan Kiem, Ha Noi",
		PaymentMethod:   models.MethodVNPay,
		Items: []CheckoutItem{
			{ProductID: productA.ID, Quantity: 2},
			{ProductID: productB.ID, Quantity: 2},
		},
		PriceVoucherCode:    "sale10",
		ShippingVoucherCode: "freeship",
		ClientIP:            "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := result.Order
	if !order.Subtotal.Equal(money(t, "500000")) {
		t.Fatalf("unexpected subtotal: %s", order.Subtotal)
	}
	if !order.ShippingFee.Equal(money(t, "30000")) {
		t.Fatalf("unexpected shipping fee: %s", order.ShippingFee)
	}
	// 10% of 500,000 capped at 40,000 plus the 20,000 shipping voucher.
	if !order.DiscountAmount.Equal(money(t, "60000")) {
		t.Fatalf("unexpected discount: %s", order.DiscountAmount)
	}
	want := order.Subtotal.Add(order.ShippingFee).Sub(order.DiscountAmount)
	if !order.FinalAmount.Equal(want) {
		t.Fatalf("final amount identity broken: got=%s want=%s", order.FinalAmount, want)
	}
	if order.PaymentStatus != models.PaymentPending || order.Fulfillment != models.FulfillmentProcessing {
		t.Fatalf("unexpected initial statuses: %s/%s", order.PaymentStatus, order.Fulfillment)
	}
	if order.PriceVoucherID == nil || order.ShippingVoucherID == nil {
		t.Fatal("expected both voucher ids recorded on the order")
	}
	if len(order.Lines) != 2 {
		t.Fatalf("unexpected line count: %d", len(order.Lines))
	}
	for _, line := range order.Lines {
		if line.ProductName == "" || !line.Subtotal.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))) {
			t.Fatalf("line snapshot inconsistent: %+v", line)
		}
	}

	if result.PaymentURL != "https://pay.example/redirect" {
		t.Fatalf("unexpected payment url: %s", result.PaymentURL)
	}
	if !gateway.request.Amount.Equal(order.FinalAmount) {
		t.Fatalf("gateway charged %s, order total is %s", gateway.request.Amount, order.FinalAmount)
	}
	if gateway.request.TrackingNumber != order.TrackingNumber {
		t.Fatalf("gateway txn ref %q does not match order %q", gateway.request.TrackingNumber, order.TrackingNumber)
	}
}

func TestCheckout_CashOnDeliverySkipsGateway(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Ceramic mug", Price: decimal.NewFromInt(150000), Stock: 10, Active: true}
	gateway := &fakeGateway{err: errors.New("gateway must not be called")}
	service := newTestCheckout(
		&fakeAssembler{},
		&fakeVouchers{},
		&fakeCatalog{products: map[uuid.UUID]models.Product{product.ID: product}},
		gateway,
	)

	result, err := service.Checkout(context.Background(), CheckoutInput{
		UserID:          uuid.New(),
		ShippingAddress: "45 Le Loi, Da Nang",
		PaymentMethod:   models.MethodCOD,
		Items:           []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PaymentURL != "" {
		t.Fatalf("cod checkout should not produce a payment url, got %q", result.PaymentURL)
	}
	if result.Order.PaymentStatus != models.PaymentPending {
		t.Fatalf("cod orders stay pending until delivery, got %s", result.Order.PaymentStatus)
	}
}

func TestCheckout_Rejections(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Ceramic mug", Price: decimal.NewFromInt(150000), Stock: 10, Active: true}
	inactive := models.Product{ID: uuid.New(), Name: "Retired item", Price: decimal.NewFromInt(99000), Stock: 3, Active: false}

	exhausted := testVoucher(models.ScopePrice, models.KindFixed, "10000", "10000")
	exhausted.Code = "GONE"
	exhausted.UsedCount = exhausted.UsageLimit

	tests := []struct {
		name    string
		input   CheckoutInput
		wantErr error
	}{
		{
			name: "no items",
			input: CheckoutInput{
				ShippingAddress: "somewhere",
				PaymentMethod:   models.MethodCOD,
			},
			wantErr: ErrEmptyOrder,
		},
		{
			name: "inactive product",
			input: CheckoutInput{
				ShippingAddress: "somewhere",
				PaymentMethod:   models.MethodCOD,
				Items:           []CheckoutItem{{ProductID: inactive.ID, Quantity: 1}},
			},
			wantErr: ErrProductUnavailable,
		},
		{
			name: "unknown product",
			input: CheckoutInput{
				ShippingAddress: "somewhere",
				PaymentMethod:   models.MethodCOD,
				Items:           []CheckoutItem{{ProductID: uuid.New(), Quantity: 1}},
			},
			wantErr: ErrProductUnavailable,
		},
		{
			name: "unknown voucher code",
			input: CheckoutInput{
				ShippingAddress:  "somewhere",
				PaymentMethod:    models.MethodCOD,
				Items:            []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
				PriceVoucherCode: "NOPE",
			},
			wantErr: ErrVoucherNotFound,
		},
		{
			name: "exhausted voucher",
			input: CheckoutInput{
				ShippingAddress:  "somewhere",
				PaymentMethod:    models.MethodCOD,
				Items:            []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
				PriceVoucherCode: "GONE",
			},
			wantErr: voucher.ErrIneligible,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assembler := &fakeAssembler{}
			service := newTestCheckout(
				assembler,
				&fakeVouchers{byCode: map[string]*models.Voucher{"GONE": exhausted}},
				&fakeCatalog{products: map[uuid.UUID]models.Product{product.ID: product, inactive.ID: inactive}},
				&fakeGateway{url: "https://pay.example"},
			)

			_, err := service.Checkout(context.Background(), tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if assembler.order != nil {
				t.Fatal("rejected checkout must not persist an order")
			}
		})
	}
}

func TestCheckout_RetriesTrackingNumberCollision(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Ceramic mug", Price: decimal.NewFromInt(150000), Stock: 10, Active: true}
	duplicate := &pgconn.PgError{Code: "23505", ConstraintName: "orders_tracking_number_key"}

	assembler := &fakeAssembler{errQueue: []error{duplicate}}
	service := newTestCheckout(
		assembler,
		&fakeVouchers{},
		&fakeCatalog{products: map[uuid.UUID]models.Product{product.ID: product}},
		&fakeGateway{url: "https://pay.example"},
	)

	result, err := service.Checkout(context.Background(), CheckoutInput{
		UserID:          uuid.New(),
		ShippingAddress: "45 Le Loi, Da Nang",
		PaymentMethod:   models.MethodCOD,
		Items:           []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assembler.trackings) != 2 {
		t.Fatalf("expected a second attempt after the collision, got %d", len(assembler.trackings))
	}
	if assembler.trackings[0] == assembler.trackings[1] {
		t.Fatalf("retry reused the colliding tracking number %s", assembler.trackings[0])
	}
	if result.Order.TrackingNumber != assembler.trackings[1] {
		t.Fatalf("order carries %s, persisted attempt was %s", result.Order.TrackingNumber, assembler.trackings[1])
	}

	// Any other failure surfaces immediately, without burning retries.
	unrelated := &fakeAssembler{errQueue: []error{&pgconn.PgError{Code: "23505", ConstraintName: "vouchers_code_key"}}}
	service = newTestCheckout(
		unrelated,
		&fakeVouchers{},
		&fakeCatalog{products: map[uuid.UUID]models.Product{product.ID: product}},
		&fakeGateway{url: "https://pay.example"},
	)
	if _, err := service.Checkout(context.Background(), CheckoutInput{
		UserID:          uuid.New(),
		ShippingAddress: "45 Le Loi, Da Nang",
		PaymentMethod:   models.MethodCOD,
		Items:           []CheckoutItem{{ProductID: product.ID, Quantity: 1}},
	}); err == nil {
		t.Fatal("expected the unrelated unique violation to fail the checkout")
	}
	if len(unrelated.trackings) != 1 {
		t.Fatalf("unrelated failures must not retry, got %d attempts", len(unrelated.trackings))
	}
}

func TestNewTrackingNumber(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	got, err := newTrackingNumber(at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !regexp.MustCompile(`^VS-20260829-[0-9A-F]{6}$`).MatchString(got) {
		t.Fatalf("unexpected tracking number format: %s", got)
	}

	other, err := newTrackingNumber(at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.EqualFold(got, other) {
		t.Fatalf("tracking numbers should differ: %s vs %s", got, other)
	}
}
