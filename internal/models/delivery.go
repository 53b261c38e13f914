package models

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryCreated    DeliveryStatus = "created"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliveryDelivered  DeliveryStatus = "delivered"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryCreated:    {DeliveryDelivering},
	DeliveryDelivering: {DeliveryDelivered},
}

// CanTransitionDelivery reports whether a delivery order may move from one
// status to another. No transition skips a state.
func CanTransitionDelivery(from, to DeliveryStatus) bool {
	return containsStatus(deliveryTransitions[from], to)
}

type DeliveryOrder struct {
	ID             uuid.UUID      `json:"id"`
	OrderID        uuid.UUID      `json:"order_id"`
	TrackingNumber string         `json:"tracking_number"`
	ShipperID      *uuid.UUID     `json:"shipper_id,omitempty"`
	Status         DeliveryStatus `json:"status"`
	ProofImage     string         `json:"proof_image,omitempty"`
	Note           string         `json:"note,omitempty"`
	AssignedAt     time.Time      `json:"assigned_at"`
	ReceivedAt     time.Time      `json:"received_at"`
	DeliveredAt    time.Time      `json:"delivered_at"`
	CreatedAt      time.Time      `json:"created_at"`
}
