package inventory

import (
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/errs"
	invdb "ms-booking/internal/inventory/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/monitoring"
)

// Ledger owns ticket-tier availability. Every mutation goes through a
// conditional update so concurrent reservations can never oversell a tier.
type Ledger interface {
	Reserve(eventID string, lines []models.LineRequest) error
	Release(lines []models.LineRequest) error
	Commit(eventID string, quantity int) error
	ReleaseSold(eventID string, quantity int) error
	CheckAvailability(eventID string, lines []models.LineRequest) ([]models.TierAvailability, error)
	TiersByEvent(eventID string) ([]models.TicketTier, error)
}

type DBLayer interface {
	GetEvent(eventID string) (*models.Event, error)
	GetTier(tierID string) (*models.TicketTier, error)
	GetTiersByEvent(eventID string) ([]models.TicketTier, error)
	ReserveTiers(lines []models.LineRequest) error
	ReleaseTiers(lines []models.LineRequest) error
	CommitSold(eventID string, quantity int) error
	ReleaseSold(eventID string, quantity int) error
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// Reserve validates the request against the published event and per-booking
// limits, then atomically decrements every requested tier. Either all lines
// are reserved or none are.
func (s *Service) Reserve(eventID string, lines []models.LineRequest) error {
	if len(lines) == 0 {
		return errs.Validation("at least one ticket line is required")
	}

	event, err := s.DB.GetEvent(eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("event %s not found", eventID)
		}
		return errs.External("failed to load event", err)
	}
	if event.Status != models.EventStatusPublished {
		return errs.Validation("event %s is not open for booking", eventID)
	}

	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return errs.Validation("quantity for tier %s must be positive", line.TierID)
		}
		if seen[line.TierID] {
			return errs.Validation("tier %s requested more than once", line.TierID)
		}
		seen[line.TierID] = true

		tier, err := s.DB.GetTier(line.TierID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.NotFound("ticket tier %s not found", line.TierID)
			}
			return errs.External("failed to load ticket tier", err)
		}
		if tier.EventID != eventID {
			return errs.Validation("tier %s does not belong to event %s", line.TierID, eventID)
		}
		if tier.MaxPerBooking > 0 && line.Quantity > tier.MaxPerBooking {
			return errs.Validation("tier %s allows at most %d tickets per booking", line.TierID, tier.MaxPerBooking)
		}
	}

	if err := s.DB.ReserveTiers(lines); err != nil {
		if errors.Is(err, invdb.ErrTierUnavailable) {
			monitoring.InventoryRejections.Inc()
			s.Logger.LogInventory("RESERVE_REJECTED", eventID, err.Error())
			return errs.InsufficientInventory("not enough tickets available: %v", err)
		}
		return errs.External("failed to reserve tickets", err)
	}

	s.Logger.LogInventory("RESERVED", eventID, fmt.Sprintf("%d line(s) reserved", len(lines)))
	return nil
}

// Release returns reserved seats to the pool. Releasing the same lines twice
// is harmless: the capped increment makes the second call a no-op.
func (s *Service) Release(lines []models.LineRequest) error {
	if len(lines) == 0 {
		return nil
	}
	if err := s.DB.ReleaseTiers(lines); err != nil {
		return errs.External("failed to release tickets", err)
	}
	return nil
}

// Commit finalizes a reservation by bumping the event's sold counter.
func (s *Service) Commit(eventID string, quantity int) error {
	if err := s.DB.CommitSold(eventID, quantity); err != nil {
		return errs.External("failed to commit sold tickets", err)
	}
	s.Logger.LogInventory("COMMITTED", eventID, fmt.Sprintf("%d ticket(s) sold", quantity))
	return nil
}

// ReleaseSold reverses a commit when a confirmed booking is cancelled.
func (s *Service) ReleaseSold(eventID string, quantity int) error {
	if err := s.DB.ReleaseSold(eventID, quantity); err != nil {
		return errs.External("failed to release sold tickets", err)
	}
	return nil
}

// CheckAvailability is a read-only probe used before checkout. Its answer can
// be stale by the time the booking is created; Reserve remains the only
// authority.
func (s *Service) CheckAvailability(eventID string, lines []models.LineRequest) ([]models.TierAvailability, error) {
	event, err := s.DB.GetEvent(eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("event %s not found", eventID)
		}
		return nil, errs.External("failed to load event", err)
	}

	results := make([]models.TierAvailability, 0, len(lines))
	for _, line := range lines {
		tier, err := s.DB.GetTier(line.TierID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				results = append(results, models.TierAvailability{
					TierID: line.TierID, Available: false, Reason: "tier not found",
				})
				continue
			}
			return nil, errs.External("failed to load ticket tier", err)
		}

		avail := models.TierAvailability{
			TierID:            line.TierID,
			AvailableQuantity: tier.Available,
			MaxPerBooking:     tier.MaxPerBooking,
		}
		switch {
		case event.Status != models.EventStatusPublished:
			avail.Reason = "event is not open for booking"
		case tier.Available < line.Quantity:
			avail.Reason = "not enough tickets available"
		case tier.MaxPerBooking > 0 && line.Quantity > tier.MaxPerBooking:
			avail.Reason = fmt.Sprintf("maximum %d per booking", tier.MaxPerBooking)
		default:
			avail.Available = true
		}
		results = append(results, avail)
	}
	return results, nil
}

func (s *Service) TiersByEvent(eventID string) ([]models.TicketTier, error) {
	tiers, err := s.DB.GetTiersByEvent(eventID)
	if err != nil {
		return nil, errs.External("failed to list ticket tiers", err)
	}
	return tiers, nil
}
