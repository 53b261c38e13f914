package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vietshopapp/vietshop/internal/models"
)

type VoucherStore struct {
	pool *pgxpool.Pool
}

func NewVoucherStore(pool *pgxpool.Pool) *VoucherStore {
	return &VoucherStore{pool: pool}
}

func (s *VoucherStore) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, kind, scope, discount_amount, min_order_amount, max_discount_amount,
		       usage_limit, used_count, start_date, end_date,
		       is_active, is_public, user_id, new_user_only, created_at
		FROM vouchers
		WHERE code = $1`, code)

	var (
		v              models.Voucher
		kind           string
		scope          string
		discountAmount pgtype.Numeric
		minOrder       pgtype.Numeric
		maxDiscount    pgtype.Numeric
		startDate      pgtype.Timestamptz
		endDate        pgtype.Timestamptz
		userID         uuid.NullUUID
		createdAt      pgtype.Timestamptz
	)
	err := row.Scan(
		&v.ID, &v.Code, &kind, &scope, &discountAmount, &minOrder, &maxDiscount,
		&v.UsageLimit, &v.UsedCount, &startDate, &endDate,
		&v.IsActive, &v.IsPublic, &userID, &v.NewUserOnly, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	v.Kind = models.VoucherKind(kind)
	v.Scope = models.VoucherScope(scope)
	v.DiscountAmount = numericToDecimal(discountAmount)
	v.MinOrderAmount = numericToDecimal(minOrder)
	v.MaxDiscountAmount = numericToDecimal(maxDiscount)
	v.StartDate = startDate.Time
	v.EndDate = endDate.Time
	if userID.Valid {
		id := userID.UUID
		v.UserID = &id
	}
	v.CreatedAt = createdAt.Time

	return &v, nil
}

// IncrementUsage commits one use. The usage_limit guard lives inside the
// statement so concurrent checkouts cannot push used_count past the cap.
func (s *VoucherStore) IncrementUsage(ctx context.Context, q Querier, voucherID uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE vouchers
		SET used_count = used_count + 1
		WHERE id = $1 AND used_count < usage_limit`,
		voucherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVoucherExhausted
	}
	return nil
}

// DecrementUsage releases one use when an order is cancelled before payment.
func (s *VoucherStore) DecrementUsage(ctx context.Context, q Querier, voucherID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE vouchers
		SET used_count = GREATEST(used_count - 1, 0)
		WHERE id = $1`,
		voucherID)
	if err != nil {
		return fmt.Errorf("failed to release voucher use: %w", err)
	}
	return nil
}
