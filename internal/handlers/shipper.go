package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vietshopapp/vietshop/internal/models"
)

func trackingFromRequest(r *http.Request) string {
	return mux.Vars(r)["tracking"]
}

// ShipperQueue lists deliveries awaiting pickup or in transit. The status
// query parameter selects the queue; the default is the unassigned pool.
func (h *Handlers) ShipperQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := models.DeliveryCreated
	switch r.URL.Query().Get("status") {
	case "", string(models.DeliveryCreated):
	case string(models.DeliveryDelivering):
		status = models.DeliveryDelivering
	case string(models.DeliveryDelivered):
		status = models.DeliveryDelivered
	default:
		h.writeError(ctx, w, badRequest("unknown delivery status"))
		return
	}

	limit, offset := pagination(r)
	deliveries, err := h.deliveryService.Queue(ctx, status, limit, offset)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

func (h *Handlers) ShipperDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	delivery, err := h.deliveryService.Get(ctx, trackingFromRequest(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, delivery)
}

// ShipperClaim assigns the calling shipper to an unassigned delivery.
func (h *Handlers) ShipperClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	tracking := trackingFromRequest(r)
	if err := h.deliveryService.Assign(ctx, tracking, principal.UserID); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	delivery, err := h.deliveryService.Get(ctx, tracking)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, delivery)
}

// ShipperReceive records physical pickup by the assigned shipper.
func (h *Handlers) ShipperReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	tracking := trackingFromRequest(r)
	if err := h.deliveryService.MarkReceived(ctx, tracking, principal.UserID); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	delivery, err := h.deliveryService.Get(ctx, tracking)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, delivery)
}

// ShipperComplete records drop-off. Proof of delivery arrives as a multipart
// image upload and is mandatory.
func (h *Handlers) ShipperComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		h.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(ctx, w, badRequest("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		h.writeError(ctx, w, badRequest("a proof of delivery image is required"))
		return
	}
	file.Close()

	stored, err := h.saveUpload(header)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	tracking := trackingFromRequest(r)
	if err := h.deliveryService.Complete(ctx, tracking, principal.UserID, stored); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	delivery, err := h.deliveryService.Get(ctx, tracking)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, delivery)
}
