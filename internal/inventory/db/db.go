package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// ErrTierUnavailable is returned when a conditional decrement matches no row,
// meaning the tier either does not exist or has fewer seats than requested.
var ErrTierUnavailable = errors.New("tier unavailable or insufficient seats")

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEvent(eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetTier(tierID string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("id = ?", tierID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (d *DB) GetTiersByEvent(eventID string) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := d.Bun.NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// ReserveTiers decrements availability for every requested line inside one
// transaction. Each decrement is conditional on enough seats remaining; if any
// line cannot be satisfied the transaction rolls back and no seat is held.
func (d *DB) ReserveTiers(lines []models.LineRequest) error {
	return d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, line := range lines {
			res, err := tx.NewUpdate().
				Model((*models.TicketTier)(nil)).
				Set("available = available - ?", line.Quantity).
				Where("id = ?", line.TierID).
				Where("available >= ?", line.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: %s", ErrTierUnavailable, line.TierID)
			}
		}
		return nil
	})
}

// ReleaseTiers returns previously reserved seats. The increment is capped so
// a duplicate release can never push availability past capacity.
func (d *DB) ReleaseTiers(lines []models.LineRequest) error {
	return d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, line := range lines {
			_, err := tx.NewUpdate().
				Model((*models.TicketTier)(nil)).
				Set("available = available + ?", line.Quantity).
				Where("id = ?", line.TierID).
				Where("available + ? <= capacity", line.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitSold moves reserved seats into the event's sold count on booking
// confirmation. Availability was already decremented at reserve time.
func (d *DB) CommitSold(eventID string, quantity int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("sold_tickets = sold_tickets + ?", quantity).
		Where("id = ?", eventID).
		Exec(context.Background())
	return err
}

// ReleaseSold backs sold seats out of the event counter when a confirmed
// booking is cancelled. Clamped at zero.
func (d *DB) ReleaseSold(eventID string, quantity int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("sold_tickets = sold_tickets - ?", quantity).
		Where("id = ?", eventID).
		Where("sold_tickets >= ?", quantity).
		Exec(context.Background())
	return err
}
