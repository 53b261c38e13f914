package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vietshopapp/vietshop/internal/models"
	"github.com/vietshopapp/vietshop/internal/services"
)

type checkoutItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type checkoutRequest struct {
	Items               []checkoutItemRequest `json:"items"`
	ShippingAddress     string                `json:"shipping_address"`
	Region              string                `json:"region"`
	Note                string                `json:"note"`
	PaymentMethod       string                `json:"payment_method"`
	PriceVoucherCode    string                `json:"price_voucher_code"`
	ShippingVoucherCode string                `json:"shipping_voucher_code"`
	CustomerEmail       string                `json:"customer_email"`
}

type checkoutResponse struct {
	Order      *models.Order `json:"order"`
	PaymentURL string        `json:"payment_url,omitempty"`
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	var req checkoutRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	result, err := h.checkoutService.Checkout(ctx, services.CheckoutInput{
		UserID:              principal.UserID,
		CustomerEmail:       req.CustomerEmail,
		ShippingAddress:     req.ShippingAddress,
		Region:              req.Region,
		Note:                req.Note,
		PaymentMethod:       models.PaymentMethod(req.PaymentMethod),
		Items:               items,
		PriceVoucherCode:    req.PriceVoucherCode,
		ShippingVoucherCode: req.ShippingVoucherCode,
		ClientIP:            clientIP(r),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusCreated, checkoutResponse{
		Order:      result.Order,
		PaymentURL: result.PaymentURL,
	})
}
