package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID       string    `bun:"booking_id,pk" json:"booking_id"`
	UserID          string    `bun:"user_id,notnull" json:"user_id"`
	EventID         string    `bun:"event_id,notnull" json:"event_id"`
	Status          string    `bun:"status,notnull" json:"status"`
	PaymentStatus   string    `bun:"payment_status,notnull" json:"payment_status"`
	PaymentID       string    `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	PaymentIntentID string    `bun:"payment_intent_id,nullzero" json:"payment_intent_id,omitempty"`
	TotalAmount     float64   `bun:"total_amount,notnull" json:"total_amount"`
	DiscountAmount  float64   `bun:"discount_amount" json:"discount_amount"`
	FinalAmount     float64   `bun:"final_amount,notnull" json:"final_amount"`
	DiscountCode    string    `bun:"discount_code,nullzero" json:"discount_code,omitempty"`
	AgentID         string    `bun:"agent_id,nullzero" json:"agent_id,omitempty"`
	AgentCommission float64   `bun:"agent_commission,nullzero" json:"agent_commission,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
	CancelledAt     time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
}

// BookingLine snapshots the unit price at creation time so later tier price
// changes never retroactively affect an open booking.
type BookingLine struct {
	bun.BaseModel `bun:"table:booking_lines"`

	ID        string  `bun:"id,pk" json:"id"`
	BookingID string  `bun:"booking_id,notnull" json:"booking_id"`
	TierID    string  `bun:"tier_id,notnull" json:"tier_id"`
	TierName  string  `bun:"tier_name,notnull" json:"tier_name"`
	Quantity  int     `bun:"quantity,notnull" json:"quantity"`
	UnitPrice float64 `bun:"unit_price,notnull" json:"unit_price"`
}

type LineRequest struct {
	TierID   string `json:"tier_id"`
	Quantity int    `json:"quantity"`
}

type BookingRequest struct {
	EventID string        `json:"event_id"`
	Lines   []LineRequest `json:"lines"`
	AgentID string        `json:"agent_id,omitempty"`
}

type BookingWithLines struct {
	Booking
	Lines []BookingLine `json:"lines"`
}

type BookingWithTickets struct {
	Booking
	Tickets []Ticket `json:"tickets"`
}

type CouponRequest struct {
	Code string `json:"code"`
}

type AdminBookingUpdate struct {
	Status         string   `json:"status,omitempty"`
	PaymentStatus  string   `json:"payment_status,omitempty"`
	DiscountAmount *float64 `json:"discount_amount,omitempty"`
}

// BookingFilter narrows booking listings. Zero values mean no status filter
// and default paging.
type BookingFilter struct {
	Status string
	Page   int
	Limit  int
}

func (f BookingFilter) Normalize() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	return f
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type BookingPage struct {
	Bookings   []Booking  `json:"bookings"`
	Pagination Pagination `json:"pagination"`
}
