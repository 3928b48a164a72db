package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed"
)

// Coupon codes are stored uppercase; lookups normalize the incoming code so
// matching is case-insensitive.
type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID               string    `bun:"id,pk" json:"id"`
	Code             string    `bun:"code,unique,notnull" json:"code"`
	Type             string    `bun:"type,notnull" json:"type"`
	Value            float64   `bun:"value,notnull" json:"value"`
	MaxDiscount      float64   `bun:"max_discount,nullzero" json:"max_discount,omitempty"`
	MinPurchase      float64   `bun:"min_purchase,nullzero" json:"min_purchase,omitempty"`
	StartDate        time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate          time.Time `bun:"end_date,notnull" json:"end_date"`
	IsActive         bool      `bun:"is_active" json:"is_active"`
	MaxUsage         int       `bun:"max_usage,notnull" json:"max_usage"`
	UsageCount       int       `bun:"usage_count" json:"usage_count"`
	ApplicableEvents []string  `bun:"applicable_events,array" json:"applicable_events,omitempty"`
	UserType         string    `bun:"user_type,nullzero" json:"user_type,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
}
