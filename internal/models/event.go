package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID          string    `bun:"id,pk" json:"id"`
	OrganizerID string    `bun:"organizer_id,notnull" json:"organizer_id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Status      string    `bun:"status,notnull" json:"status"`
	StartDate   time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate     time.Time `bun:"end_date,notnull" json:"end_date"`
	SoldTickets int       `bun:"sold_tickets" json:"sold_tickets"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// TicketTier is a priced category of tickets with its own capacity and
// per-booking purchase limit. Availability is only ever mutated through the
// inventory ledger's conditional updates.
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	ID            string  `bun:"id,pk" json:"id"`
	EventID       string  `bun:"event_id,notnull" json:"event_id"`
	Name          string  `bun:"name,notnull" json:"name"`
	Type          string  `bun:"type" json:"type"`
	Price         float64 `bun:"price,notnull" json:"price"`
	Capacity      int     `bun:"capacity,notnull" json:"capacity"`
	Available     int     `bun:"available,notnull" json:"available"`
	MaxPerBooking int     `bun:"max_per_booking,notnull" json:"max_per_booking"`
}

// TierAvailability is the read-only availability probe result for one
// requested line, used by the pre-checkout availability endpoint.
type TierAvailability struct {
	TierID            string `json:"tier_id"`
	Available         bool   `json:"available"`
	AvailableQuantity int    `json:"available_quantity,omitempty"`
	MaxPerBooking     int    `json:"max_per_booking,omitempty"`
	Reason            string `json:"reason,omitempty"`
}
