package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusActive    = "active"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
	TicketStatusExpired   = "expired"
)

// Ticket is minted once per purchased seat at booking confirmation. The tier
// fields are a snapshot taken at issuance. QRCode is the opaque credential
// presented at the gate; it never changes after creation.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID   string    `bun:"ticket_id,pk" json:"ticket_id"`
	EventID    string    `bun:"event_id,notnull" json:"event_id"`
	UserID     string    `bun:"user_id,notnull" json:"user_id"`
	BookingID  string    `bun:"booking_id,notnull" json:"booking_id"`
	TierID     string    `bun:"tier_id,notnull" json:"tier_id"`
	TierName   string    `bun:"tier_name,notnull" json:"tier_name"`
	TierType   string    `bun:"tier_type" json:"tier_type"`
	TierPrice  float64   `bun:"tier_price,notnull" json:"tier_price"`
	QRCode     string    `bun:"qr_code,unique,notnull" json:"qr_code"`
	Status     string    `bun:"status,notnull" json:"status"`
	ValidUntil time.Time `bun:"valid_until,notnull" json:"valid_until"`
	IssuedAt   time.Time `bun:"issued_at,notnull" json:"issued_at"`
	UsedAt     time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
}

// ScanRecord rows form the append-only scan history of a ticket.
type ScanRecord struct {
	bun.BaseModel `bun:"table:scan_records"`

	ID        string    `bun:"id,pk" json:"id"`
	TicketID  string    `bun:"ticket_id,notnull" json:"ticket_id"`
	ScannedBy string    `bun:"scanned_by,notnull" json:"scanned_by"`
	ScannedAt time.Time `bun:"scanned_at,notnull" json:"scanned_at"`
	Location  string    `bun:"location,nullzero" json:"location,omitempty"`
}

type ScanRequest struct {
	QRCode   string `json:"qr_code"`
	EventID  string `json:"event_id"`
	Location string `json:"location,omitempty"`
}

type ScanResult struct {
	Ticket    *Ticket `json:"ticket"`
	ValidScan bool    `json:"valid_scan"`
}
