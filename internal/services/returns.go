package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/vietshopapp/vietshop/internal/logging"
	"github.com/vietshopapp/vietshop/internal/observability"
)

type returnOrderStore interface {
	RequestReturn(ctx context.Context, orderID, userID uuid.UUID, note string, images []string) error
	ApproveReturn(ctx context.Context, orderID uuid.UUID) error
	RejectReturn(ctx context.Context, orderID uuid.UUID) error
}

type returnAssembler interface {
	CompleteReturn(ctx context.Context, orderID uuid.UUID, lineQuantities map[uuid.UUID]int) error
}

type ReturnService struct {
	orders    returnOrderStore
	assembler returnAssembler
	logger    *slog.Logger
}

func NewReturnService(orders returnOrderStore, assembler returnAssembler, logger *slog.Logger) *ReturnService {
	return &ReturnService{
		orders:    orders,
		assembler: assembler,
		logger:    logger,
	}
}

func (s *ReturnService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Request opens a return on a delivered order. The caller must own the order;
// ownership and state are enforced by the store guard, not here.
func (s *ReturnService) Request(ctx context.Context, orderID, userID uuid.UUID, note string, images []string) error {
	if note == "" {
		return fmt.Errorf("%w: a reason for the return is required", ErrInvalidInput)
	}

	if err := s.orders.RequestReturn(ctx, orderID, userID, note, images); err != nil {
		return err
	}
	observability.MeterFromContext(ctx).Count("return.requested", 1)
	s.loggerFromContext(ctx).Info("return requested", "order_id", orderID, "user_id", userID)
	return nil
}

func (s *ReturnService) Approve(ctx context.Context, orderID uuid.UUID) error {
	return s.decide(ctx, orderID, "approved", s.orders.ApproveReturn)
}

func (s *ReturnService) Reject(ctx context.Context, orderID uuid.UUID) error {
	return s.decide(ctx, orderID, "rejected", s.orders.RejectReturn)
}

func (s *ReturnService) decide(ctx context.Context, orderID uuid.UUID, decision string, apply func(context.Context, uuid.UUID) error) error {
	if err := apply(ctx, orderID); err != nil {
		return err
	}
	observability.MeterFromContext(ctx).Count("return.decided", 1, sentry.WithAttributes(
		attribute.String("decision", decision),
	))
	s.loggerFromContext(ctx).Info("return decided", "order_id", orderID, "decision", decision)
	return nil
}

// Complete closes an approved return, recording returned units per line and
// restocking them atomically. An empty lineQuantities returns every line in
// full.
func (s *ReturnService) Complete(ctx context.Context, orderID uuid.UUID, lineQuantities map[uuid.UUID]int) error {
	span := sentry.StartSpan(
		ctx,
		"service.return.complete",
		sentry.WithOpName("service.return"),
		sentry.WithDescription("Complete"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if err := s.assembler.CompleteReturn(ctx, orderID, lineQuantities); err != nil {
		return err
	}
	observability.MeterFromContext(ctx).Count("return.completed", 1)
	s.loggerFromContext(ctx).Info("return completed", "order_id", orderID)
	return nil
}
