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

// CreateBooking persists the booking and its lines together so a crash can
// never leave a booking without its price snapshot.
func (d *DB) CreateBooking(booking models.Booking, lines []models.BookingLine) error {
	return d.Bun.RunInTx(context.Background(), &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&booking).Exec(ctx); err != nil {
			return err
		}
		for i := range lines {
			if _, err := tx.NewInsert().Model(&lines[i]).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) GetBookingByID(bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", bookingID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetLinesByBooking(bookingID string) ([]models.BookingLine, error) {
	var lines []models.BookingLine
	err := d.Bun.NewSelect().
		Model(&lines).
		Where("booking_id = ?", bookingID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ConfirmBooking flips a pending booking to confirmed. The status guard makes
// confirmation idempotent under races: only the first caller sees true.
func (d *DB) ConfirmBooking(bookingID, paymentID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingStatusConfirmed).
		Set("payment_status = ?", models.PaymentStatusCompleted).
		Set("payment_id = ?", paymentID).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.BookingStatusPending).
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

// CancelFromStatus moves a booking to cancelled only when it currently holds
// the given status. The caller picks the release path from which transition
// actually won.
func (d *DB) CancelFromStatus(bookingID, fromStatus string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingStatusCancelled).
		Set("cancelled_at = ?", at).
		Where("booking_id = ?", bookingID).
		Where("status = ?", fromStatus).
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

// SetDiscount writes coupon pricing onto a booking while it is still pending.
// A booking that confirmed or cancelled in the meantime is left untouched.
func (d *DB) SetDiscount(bookingID, code string, discount, final float64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("discount_code = ?", code).
		Set("discount_amount = ?", discount).
		Set("final_amount = ?", final).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.BookingStatusPending).
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

func (d *DB) SetPaymentIntent(bookingID, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_intent_id = ?", intentID).
		Where("booking_id = ?", bookingID).
		Exec(context.Background())
	return err
}

func (d *DB) SetPaymentStatus(bookingID, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", status).
		Where("booking_id = ?", bookingID).
		Exec(context.Background())
	return err
}

func (d *DB) GetBookingByPaymentIntent(intentID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("payment_intent_id = ?", intentID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBooking writes an admin edit back. The caller recomputes derived
// amounts before saving.
func (d *DB) UpdateBooking(booking *models.Booking) error {
	_, err := d.Bun.NewUpdate().
		Model(booking).
		Column("status", "payment_status", "discount_amount", "final_amount").
		WherePK().
		Exec(context.Background())
	return err
}

func (d *DB) GetBookingsByUser(userID string, filter models.BookingFilter) ([]models.Booking, int, error) {
	return d.listBookings("user_id = ?", userID, filter)
}

func (d *DB) GetBookingsByAgent(agentID string, filter models.BookingFilter) ([]models.Booking, int, error) {
	return d.listBookings("agent_id = ?", agentID, filter)
}

func (d *DB) listBookings(where string, arg interface{}, filter models.BookingFilter) ([]models.Booking, int, error) {
	filter = filter.Normalize()
	var bookings []models.Booking
	query := d.Bun.NewSelect().
		Model(&bookings).
		Where(where, arg)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	total, err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		ScanAndCount(context.Background())
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (d *DB) GetBookingsByEvent(eventID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
