package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/vietshopapp/vietshop/internal/db"
	"github.com/vietshopapp/vietshop/internal/services"
	"github.com/vietshopapp/vietshop/internal/vnpay"
	"github.com/vietshopapp/vietshop/internal/voucher"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.loggerFromContext(ctx).Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Sentinels from the stores
// and services carry enough classification; everything unrecognized is a 500
// with the detail kept out of the response body.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, services.ErrUnknownTransaction):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, services.ErrEmptyOrder),
		errors.Is(err, services.ErrProductUnavailable),
		errors.Is(err, services.ErrVoucherNotFound),
		errors.Is(err, voucher.ErrIneligible):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, db.ErrInsufficientStock),
		errors.Is(err, db.ErrVoucherExhausted),
		errors.Is(err, db.ErrInvalidStatusTransition):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, vnpay.ErrSignatureInvalid),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		h.loggerFromContext(ctx).Error("request failed", "error", err)
	}
	h.writeJSON(ctx, w, status, errorResponse{Error: message})
}

// errBadRequest wraps client input errors detected in handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(message string) error {
	return &badRequestError{message: message}
}

type badRequestError struct {
	message string
}

func (e *badRequestError) Error() string {
	return e.message
}

func (e *badRequestError) Is(target error) bool {
	return target == errBadRequest
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
