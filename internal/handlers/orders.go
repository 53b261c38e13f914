package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/vietshopapp/vietshop/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func orderIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid order id")
	}
	return id, nil
}

// ListOrders returns the caller's own orders. Listing also sweeps lapsed
// prepaid orders, so customers never see a stale pending order that can no
// longer be paid.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	if _, err := h.paymentService.ExpirePending(ctx); err != nil {
		h.loggerFromContext(ctx).Warn("pending order sweep failed", "error", err)
	}

	limit, offset := pagination(r)
	orders, err := h.orderStore.ListByUser(ctx, principal.UserID, limit, offset)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	// Customers only see their own orders; a foreign id reads as missing.
	if principal.Role == services.RoleCustomer && order.UserID != principal.UserID {
		h.writeError(ctx, w, pgx.ErrNoRows)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, order)
}

// CancelOrder lets a customer cancel their own order while it is still
// unpaid. Stock and voucher uses come back with it.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	byUser := &principal.UserID
	if principal.Role == services.RoleAdmin {
		byUser = nil
	}

	cancelled, err := h.assembler.CancelOrder(ctx, orderID, byUser)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !cancelled {
		h.writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "order is not cancellable"})
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

// RequestReturn opens a return on a delivered order. Images arrive as a
// multipart form alongside the reason.
func (h *Handlers) RequestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(ctx, w, badRequest("invalid multipart form"))
		return
	}
	note := r.FormValue("note")
	if note == "" {
		h.writeError(ctx, w, badRequest("a reason for the return is required"))
		return
	}

	var images []string
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			stored, err := h.saveUpload(header)
			if err != nil {
				h.writeError(ctx, w, err)
				return
			}
			images = append(images, stored)
		}
	}

	if err := h.returnService.Request(ctx, orderID, principal.UserID, note, images); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}
