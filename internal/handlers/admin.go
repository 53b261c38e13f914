package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

// AdminListOrders pages through all orders, newest first. The listing also
// sweeps lapsed prepaid orders so the board reflects reality.
func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.paymentService.ExpirePending(ctx); err != nil {
		h.loggerFromContext(ctx).Warn("pending order sweep failed", "error", err)
	}

	limit, offset := pagination(r)
	orders, err := h.orderStore.List(ctx, limit, offset)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"orders": orders})
}

// AdminShipOrder hands a processing order over to delivery.
func (h *Handlers) AdminShipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	delivery, err := h.deliveryService.MarkReadyToShip(ctx, orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, delivery)
}

func (h *Handlers) AdminApproveReturn(w http.ResponseWriter, r *http.Request) {
	h.decideReturn(w, r, true)
}

func (h *Handlers) AdminRejectReturn(w http.ResponseWriter, r *http.Request) {
	h.decideReturn(w, r, false)
}

func (h *Handlers) decideReturn(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	if approve {
		err = h.returnService.Approve(ctx, orderID)
	} else {
		err = h.returnService.Reject(ctx, orderID)
	}
	if err != nil {
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

type completeReturnRequest struct {
	// Lines maps order line id to the returned quantity. Empty means the
	// whole order comes back.
	Lines map[uuid.UUID]int `json:"lines"`
}

// AdminCompleteReturn closes an approved return and restocks the returned
// units.
func (h *Handlers) AdminCompleteReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req completeReturnRequest
	if r.ContentLength > 0 {
		if err := h.decodeJSON(w, r, &req); err != nil {
			h.writeError(ctx, w, err)
			return
		}
	}

	if err := h.returnService.Complete(ctx, orderID, req.Lines); err != nil {
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

// AdminExpirePending runs the lapsed prepaid order sweep on demand.
func (h *Handlers) AdminExpirePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cancelled, err := h.paymentService.ExpirePending(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]int{"cancelled": cancelled})
}
