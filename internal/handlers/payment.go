package handlers

import (
	"net/http"
)

type paymentReturnResponse struct {
	TrackingNumber string `json:"tracking_number"`
	Success        bool   `json:"success"`
	FailureReason  string `json:"failure_reason,omitempty"`
	Replayed       bool   `json:"replayed,omitempty"`
}

// VNPayReturn receives the gateway's redirect after a payment attempt. The
// gateway may deliver the same result more than once; the service collapses
// redeliveries, so this endpoint always answers the same way for the same
// callback.
func (h *Handlers) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	outcome, err := h.paymentService.HandleCallback(ctx, r.URL.Query())
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, paymentReturnResponse{
		TrackingNumber: outcome.Order.TrackingNumber,
		Success:        outcome.Success,
		FailureReason:  outcome.FailureReason,
		Replayed:       outcome.Replayed,
	})
}
