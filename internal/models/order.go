package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodVNPay PaymentMethod = "vnpay"
	MethodCOD   PaymentMethod = "cod"
)

// Prepaid reports whether payment must complete before fulfillment can
// advance past the shipping-ready state.
func (m PaymentMethod) Prepaid() bool {
	return m != MethodCOD
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

type FulfillmentStatus string

const (
	FulfillmentProcessing      FulfillmentStatus = "processing"
	FulfillmentShipping        FulfillmentStatus = "shipping"
	FulfillmentDelivered       FulfillmentStatus = "delivered"
	FulfillmentCancelled       FulfillmentStatus = "cancelled"
	FulfillmentReturnRequested FulfillmentStatus = "return_requested"
	FulfillmentReturned        FulfillmentStatus = "returned"
)

type ReturnStatus string

const (
	ReturnNone      ReturnStatus = "none"
	ReturnPending   ReturnStatus = "pending"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
	ReturnCompleted ReturnStatus = "completed"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed, PaymentCancelled},
	// failed gateway attempts may be retried and still succeed
	PaymentFailed: {PaymentPaid, PaymentCancelled},
}

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentProcessing:      {FulfillmentShipping, FulfillmentCancelled},
	FulfillmentShipping:        {FulfillmentDelivered},
	FulfillmentDelivered:       {FulfillmentReturnRequested},
	FulfillmentReturnRequested: {FulfillmentDelivered, FulfillmentReturned},
}

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnNone:     {ReturnPending},
	ReturnPending:  {ReturnApproved, ReturnRejected},
	ReturnApproved: {ReturnCompleted},
	// a rejected return may be re-requested
	ReturnRejected: {ReturnPending},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return containsStatus(paymentTransitions[from], to)
}

func CanTransitionFulfillment(from, to FulfillmentStatus) bool {
	return containsStatus(fulfillmentTransitions[from], to)
}

func CanTransitionReturn(from, to ReturnStatus) bool {
	return containsStatus(returnTransitions[from], to)
}

func containsStatus[T comparable](allowed []T, to T) bool {
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"user_id"`
	TrackingNumber    string            `json:"tracking_number"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	ShippingAddress   string            `json:"shipping_address"`
	PriceVoucherID    *uuid.UUID        `json:"price_voucher_id,omitempty"`
	ShippingVoucherID *uuid.UUID        `json:"shipping_voucher_id,omitempty"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	ShippingFee       decimal.Decimal   `json:"shipping_fee"`
	DiscountAmount    decimal.Decimal   `json:"discount_amount"`
	FinalAmount       decimal.Decimal   `json:"final_amount"`
	PaymentMethod     PaymentMethod     `json:"payment_method"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	Fulfillment       FulfillmentStatus `json:"fulfillment_status"`
	Note              string            `json:"note,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	ReturnStatus      ReturnStatus      `json:"return_status"`
	ReturnNote        string            `json:"return_note,omitempty"`
	ReturnImages      []string          `json:"return_images,omitempty"`
	Lines             []OrderLine       `json:"lines,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	PaidAt            time.Time         `json:"paid_at"`
	CancelledAt       time.Time         `json:"cancelled_at"`
}

type OrderLine struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	ProductName    string          `json:"product_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ReturnQuantity int             `json:"return_quantity"`
}

// Product is the inventory unit snapshot consulted at checkout. Catalog
// maintenance happens elsewhere; this system only reads price/stock and
// decrements stock on purchase.
type Product struct {
	ID     uuid.UUID       `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock"`
	Active bool            `json:"active"`
}
