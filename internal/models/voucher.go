package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type VoucherKind string

const (
	KindPercentage VoucherKind = "percentage"
	KindFixed      VoucherKind = "fixed"
)

type VoucherScope string

const (
	ScopePrice    VoucherScope = "price"
	ScopeShipping VoucherScope = "shipping"
)

type Voucher struct {
	ID       uuid.UUID    `json:"id"`
	Code     string       `json:"code"`
	Kind     VoucherKind  `json:"kind"`
	Scope    VoucherScope `json:"scope"`
	// DiscountAmount is a percentage rate for percentage vouchers and a
	// currency amount for fixed ones.
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	MinOrderAmount    decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount decimal.Decimal `json:"max_discount_amount"`
	UsageLimit        int             `json:"usage_limit"`
	UsedCount         int             `json:"used_count"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	IsActive          bool            `json:"is_active"`
	IsPublic          bool            `json:"is_public"`
	// UserID binds a private voucher to a single customer.
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	NewUserOnly bool       `json:"new_user_only"`
	CreatedAt   time.Time  `json:"created_at"`
}
