package db_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

func setupTestDB(t *testing.T) (*bookingdb.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Booking)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create bookings table: %v", err)
	}
	_, err = bunDB.NewCreateTable().Model((*models.BookingLine)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create booking_lines table: %v", err)
	}

	return &bookingdb.DB{Bun: bunDB}, bunDB
}

func seedBooking(t *testing.T, d *bookingdb.DB, status string) models.Booking {
	booking := models.Booking{
		BookingID:     uuid.New().String(),
		UserID:        "user123",
		EventID:       "event1",
		Status:        status,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   250,
		FinalAmount:   250,
		CreatedAt:     time.Now(),
	}
	lines := []models.BookingLine{
		{ID: uuid.New().String(), BookingID: booking.BookingID, TierID: "tier1", TierName: "General", Quantity: 2, UnitPrice: 50},
		{ID: uuid.New().String(), BookingID: booking.BookingID, TierID: "tier2", TierName: "VIP", Quantity: 1, UnitPrice: 150},
	}
	require.NoError(t, d.CreateBooking(booking, lines))
	return booking
}

func TestCreateAndGetBooking(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	got, err := d.GetBookingByID(booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID, got.BookingID)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	lines, err := d.GetLinesByBooking(booking.BookingID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	_, err = d.GetBookingByID("non-existent")
	assert.Error(t, err)
}

func TestConfirmBookingIsConditional(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	won, err := d.ConfirmBooking(booking.BookingID, "pay_123")
	require.NoError(t, err)
	assert.True(t, won)

	// Second confirm finds no pending row
	won, err = d.ConfirmBooking(booking.BookingID, "pay_456")
	require.NoError(t, err)
	assert.False(t, won)

	got, err := d.GetBookingByID(booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, got.Status)
	assert.Equal(t, "pay_123", got.PaymentID)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)
}

func TestConcurrentConfirmSingleWinner(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	const callers = 10
	var wg sync.WaitGroup
	wins := make([]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			won, err := d.ConfirmBooking(booking.BookingID, "pay_123")
			if err == nil {
				wins[idx] = won
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range wins {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestCancelFromStatusPicksPath(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	// Confirmed path misses a pending booking
	won, err := d.CancelFromStatus(booking.BookingID, models.BookingStatusConfirmed, time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	// Pending path wins
	won, err = d.CancelFromStatus(booking.BookingID, models.BookingStatusPending, time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	// Nothing left to cancel
	won, err = d.CancelFromStatus(booking.BookingID, models.BookingStatusPending, time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	got, err := d.GetBookingByID(booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)
	assert.False(t, got.CancelledAt.IsZero())
}

func TestSetDiscountOnlyWhilePending(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	ok, err := d.SetDiscount(booking.BookingID, "SAVE10", 25, 225)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := d.GetBookingByID(booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", got.DiscountCode)
	assert.Equal(t, 225.0, got.FinalAmount)

	// Once confirmed, the discount write misses
	_, err = d.ConfirmBooking(booking.BookingID, "pay_123")
	require.NoError(t, err)

	ok, err = d.SetDiscount(booking.BookingID, "FLAT500", 250, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPaymentIntentLookup(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)

	require.NoError(t, d.SetPaymentIntent(booking.BookingID, "pi_123"))

	got, err := d.GetBookingByPaymentIntent("pi_123")
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID, got.BookingID)

	_, err = d.GetBookingByPaymentIntent("pi_unknown")
	assert.Error(t, err)
}

func TestListBookings(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedBooking(t, d, models.BookingStatusPending)
	seedBooking(t, d, models.BookingStatusConfirmed)

	byUser, total, err := d.GetBookingsByUser("user123", models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
	assert.Equal(t, 2, total)

	byEvent, err := d.GetBookingsByEvent("event1")
	require.NoError(t, err)
	assert.Len(t, byEvent, 2)

	byUser, total, err = d.GetBookingsByUser("someone-else", models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, byUser)
	assert.Zero(t, total)
}

func TestListBookingsFiltersAndPaginates(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	for i := 0; i < 3; i++ {
		seedBooking(t, d, models.BookingStatusConfirmed)
	}
	seedBooking(t, d, models.BookingStatusPending)

	confirmed, total, err := d.GetBookingsByUser("user123", models.BookingFilter{
		Status: models.BookingStatusConfirmed,
	})
	require.NoError(t, err)
	assert.Len(t, confirmed, 3)
	assert.Equal(t, 3, total)

	// Total counts all matches, not just the returned page
	page, total, err := d.GetBookingsByUser("user123", models.BookingFilter{
		Status: models.BookingStatusConfirmed,
		Page:   2,
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, 3, total)
}

func TestListBookingsByAgent(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	seedBooking(t, d, models.BookingStatusPending)

	agentBooking := models.Booking{
		BookingID:       uuid.New().String(),
		UserID:          "customer9",
		EventID:         "event1",
		Status:          models.BookingStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		TotalAmount:     100,
		FinalAmount:     100,
		AgentID:         "agent42",
		AgentCommission: 10,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, d.CreateBooking(agentBooking, nil))

	byAgent, total, err := d.GetBookingsByAgent("agent42", models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "customer9", byAgent[0].UserID)
	assert.Equal(t, 10.0, byAgent[0].AgentCommission)
}

func TestUpdateBookingWritesEditedColumns(t *testing.T) {
	d, bunDB := setupTestDB(t)
	defer bunDB.Close()

	booking := seedBooking(t, d, models.BookingStatusPending)
	booking.PaymentStatus = models.PaymentStatusCompleted
	booking.DiscountAmount = 30
	booking.FinalAmount = 220

	require.NoError(t, d.UpdateBooking(&booking))

	got, err := d.GetBookingByID(booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, 30.0, got.DiscountAmount)
	assert.Equal(t, 220.0, got.FinalAmount)
}
