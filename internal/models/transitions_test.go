package models

import "testing"

func TestCanTransitionDelivery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from DeliveryStatus
		to   DeliveryStatus
		want bool
	}{
		{name: "created to delivering", from: DeliveryCreated, to: DeliveryDelivering, want: true},
		{name: "delivering to delivered", from: DeliveryDelivering, to: DeliveryDelivered, want: true},
		{name: "created cannot skip to delivered", from: DeliveryCreated, to: DeliveryDelivered, want: false},
		{name: "delivered is terminal", from: DeliveryDelivered, to: DeliveryDelivering, want: false},
		{name: "no backwards move", from: DeliveryDelivering, to: DeliveryCreated, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CanTransitionDelivery(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransitionDelivery(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestCanTransitionFulfillment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from FulfillmentStatus
		to   FulfillmentStatus
		want bool
	}{
		{name: "processing to shipping", from: FulfillmentProcessing, to: FulfillmentShipping, want: true},
		{name: "processing to cancelled", from: FulfillmentProcessing, to: FulfillmentCancelled, want: true},
		{name: "shipping to delivered", from: FulfillmentShipping, to: FulfillmentDelivered, want: true},
		// a shipped order is past the point of no return; this holds for cod
		// orders too, whose payment is still pending while in transit
		{name: "shipping cannot be cancelled", from: FulfillmentShipping, to: FulfillmentCancelled, want: false},
		{name: "delivered to return requested", from: FulfillmentDelivered, to: FulfillmentReturnRequested, want: true},
		{name: "delivered cannot be cancelled", from: FulfillmentDelivered, to: FulfillmentCancelled, want: false},
		{name: "return requested to returned", from: FulfillmentReturnRequested, to: FulfillmentReturned, want: true},
		{name: "cancelled is terminal", from: FulfillmentCancelled, to: FulfillmentProcessing, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CanTransitionFulfillment(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransitionFulfillment(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{name: "pending to paid", from: PaymentPending, to: PaymentPaid, want: true},
		{name: "pending to failed", from: PaymentPending, to: PaymentFailed, want: true},
		{name: "pending to cancelled", from: PaymentPending, to: PaymentCancelled, want: true},
		{name: "failed can retry to paid", from: PaymentFailed, to: PaymentPaid, want: true},
		{name: "paid is terminal", from: PaymentPaid, to: PaymentCancelled, want: false},
		{name: "cancelled is terminal", from: PaymentCancelled, to: PaymentPaid, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CanTransitionPayment(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransitionPayment(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestCanTransitionReturn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from ReturnStatus
		to   ReturnStatus
		want bool
	}{
		{name: "none to pending", from: ReturnNone, to: ReturnPending, want: true},
		{name: "pending to approved", from: ReturnPending, to: ReturnApproved, want: true},
		{name: "pending to rejected", from: ReturnPending, to: ReturnRejected, want: true},
		{name: "approved to completed", from: ReturnApproved, to: ReturnCompleted, want: true},
		{name: "rejected allows a new request", from: ReturnRejected, to: ReturnPending, want: true},
		{name: "pending cannot jump to completed", from: ReturnPending, to: ReturnCompleted, want: false},
		{name: "completed is terminal", from: ReturnCompleted, to: ReturnPending, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CanTransitionReturn(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransitionReturn(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestPaymentMethodPrepaid(t *testing.T) {
	t.Parallel()

	if !MethodVNPay.Prepaid() {
		t.Fatalf("vnpay should be prepaid")
	}
	if MethodCOD.Prepaid() {
		t.Fatalf("cod should not be prepaid")
	}
}
