package voucher

// Package voucher computes voucher eligibility and discounts. Evaluation is
// pure: usage counters are only committed by the checkout transaction.

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietshopapp/vietshop/internal/models"
)

// ErrIneligible is the sentinel all ineligibility failures match with
// errors.Is. The concrete *IneligibleError carries the stable reason code.
var ErrIneligible = errors.New("voucher ineligible")

type Reason string

const (
	ReasonExpired       Reason = "expired"
	ReasonNotYetStarted Reason = "not_yet_started"
	ReasonExhausted     Reason = "exhausted"
	ReasonScopeMismatch Reason = "scope_mismatch"
	ReasonBelowMinimum  Reason = "below_minimum"
	ReasonNotAuthorized Reason = "not_authorized"
)

type IneligibleError struct {
	Code   string
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("voucher %s ineligible: %s", e.Code, e.Reason)
}

func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

func ineligible(code string, reason Reason) error {
	return &IneligibleError{Code: code, Reason: reason}
}

// Input describes one candidate voucher application. Now is passed explicitly
// so evaluation does not depend on the wall clock.
type Input struct {
	Voucher   models.Voucher
	Scope     models.VoucherScope
	Subtotal  decimal.Decimal
	Shipping  decimal.Decimal
	UserID    uuid.UUID
	IsNewUser bool
	Now       time.Time
}

type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate validates eligibility and returns the discount the voucher grants.
// It never partially applies: any failed check returns a zero discount and an
// *IneligibleError.
func (e *Evaluator) Evaluate(in Input) (decimal.Decimal, error) {
	v := in.Voucher
	zero := decimal.Zero

	if v.Scope != in.Scope {
		return zero, ineligible(v.Code, ReasonScopeMismatch)
	}
	if !v.IsActive {
		return zero, ineligible(v.Code, ReasonNotAuthorized)
	}
	if in.Now.Before(v.StartDate) {
		return zero, ineligible(v.Code, ReasonNotYetStarted)
	}
	if in.Now.After(v.EndDate) {
		return zero, ineligible(v.Code, ReasonExpired)
	}
	if v.UsedCount >= v.UsageLimit {
		return zero, ineligible(v.Code, ReasonExhausted)
	}
	if !v.IsPublic && (v.UserID == nil || *v.UserID != in.UserID) {
		return zero, ineligible(v.Code, ReasonNotAuthorized)
	}
	if v.NewUserOnly && !in.IsNewUser {
		return zero, ineligible(v.Code, ReasonNotAuthorized)
	}

	// The minimum applies to the base the voucher discounts: subtotal for
	// price vouchers, shipping fee for shipping vouchers.
	base := in.Subtotal
	if in.Scope == models.ScopeShipping {
		base = in.Shipping
	}
	if base.LessThan(v.MinOrderAmount) {
		return zero, ineligible(v.Code, ReasonBelowMinimum)
	}

	return clampDiscount(v, base), nil
}

func clampDiscount(v models.Voucher, base decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch v.Kind {
	case models.KindPercentage:
		discount = base.Mul(v.DiscountAmount).Div(decimal.NewFromInt(100))
	default:
		discount = v.DiscountAmount
	}

	// Fixed vouchers mirror discount_amount into max_discount_amount, so the
	// cap is a no-op for them unless seeded otherwise.
	if v.MaxDiscountAmount.IsPositive() && discount.GreaterThan(v.MaxDiscountAmount) {
		discount = v.MaxDiscountAmount
	}
	// A voucher can never discount more than its base; a shipping voucher
	// cannot exceed the shipping fee itself.
	if discount.GreaterThan(base) {
		discount = base
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount.Round(2)
}

// NormalizeCode canonicalizes user-supplied voucher codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
