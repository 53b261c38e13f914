package email

import (
	"fmt"
	"strings"

	"github.com/vietshopapp/vietshop/internal/models"
)

// OrderPaidEmail builds the confirmation sent once payment succeeds.
func OrderPaidEmail(to string, order *models.Order) *Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order %s!\n\n", order.TrackingNumber)
	for _, line := range order.Lines {
		fmt.Fprintf(&b, "  %d x %s @ %s\n", line.Quantity, line.ProductName, line.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal:  %s\n", order.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "Shipping:  %s\n", order.ShippingFee.StringFixed(2))
	if order.DiscountAmount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s\n", order.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total:     %s VND\n\n", order.FinalAmount.StringFixed(2))
	b.WriteString("We'll let you know when your order ships.\n")

	return &Email{
		To:      to,
		Subject: fmt.Sprintf("Order %s confirmed", order.TrackingNumber),
		Text:    b.String(),
	}
}
