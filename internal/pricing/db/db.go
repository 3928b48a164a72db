package db

import (
	"context"
	"strings"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetByCode looks a coupon up case-insensitively. Codes are stored uppercase.
func (d *DB) GetByCode(code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupon).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// IncrementUsage bumps the usage counter only while it is still below the
// cap. Returns false when the coupon was exhausted by a concurrent booking.
func (d *DB) IncrementUsage(code string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("usage_count = usage_count + 1").
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Where("usage_count < max_usage").
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DecrementUsage gives a use back when the booking that consumed it is
// cancelled before confirmation. Clamped at zero.
func (d *DB) DecrementUsage(code string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("usage_count = usage_count - 1").
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Where("usage_count > 0").
		Exec(context.Background())
	return err
}

func (d *DB) Create(coupon models.Coupon) error {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	_, err := d.Bun.NewInsert().Model(&coupon).Exec(context.Background())
	return err
}

func (d *DB) Update(coupon models.Coupon) error {
	_, err := d.Bun.NewUpdate().
		Model(&coupon).
		WherePK().
		Exec(context.Background())
	return err
}

func (d *DB) List() ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := d.Bun.NewSelect().
		Model(&coupons).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (d *DB) Deactivate(id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", id).
		Exec(context.Background())
	return err
}
