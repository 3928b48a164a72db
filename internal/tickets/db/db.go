package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateTickets inserts a booking's tickets in one transaction so a partial
// issuance never leaves the booking half-ticketed.
func (d *DB) CreateTickets(tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for i := range tickets {
			if _, err := tx.NewInsert().Model(&tickets[i]).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) GetTicketByID(ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByQR(qrCode string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_code = ?", qrCode).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkUsed flips an active ticket to used. The status guard means exactly one
// of several concurrent scans can succeed; the rest see false.
func (d *DB) MarkUsed(ticketID string, usedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusUsed).
		Set("used_at = ?", usedAt).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketStatusActive).
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

// AppendScanRecord logs a scan attempt. The record is append-only and written
// for rejected scans too, so gate audits see every attempt.
func (d *DB) AppendScanRecord(record models.ScanRecord) error {
	_, err := d.Bun.NewInsert().Model(&record).Exec(context.Background())
	return err
}

// CancelByBooking voids every still-active ticket of a cancelled booking.
func (d *DB) CancelByBooking(bookingID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusCancelled).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.TicketStatusActive).
		Exec(context.Background())
	return err
}

func (d *DB) GetTicketsByBooking(bookingID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("booking_id = ?", bookingID).
		Order("issued_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByUser(userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetScanRecordsByTicket(ticketID string) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("ticket_id = ?", ticketID).
		Order("scanned_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return records, nil
}
