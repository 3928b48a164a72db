package booking_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/booking"
	"ms-booking/internal/errs"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateBooking(b models.Booking, lines []models.BookingLine) error {
	args := m.Called(b, lines)
	return args.Error(0)
}

func (m *MockDBLayer) GetBookingByID(bookingID string) (*models.Booking, error) {
	args := m.Called(bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockDBLayer) GetLinesByBooking(bookingID string) ([]models.BookingLine, error) {
	args := m.Called(bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingLine), args.Error(1)
}

func (m *MockDBLayer) ConfirmBooking(bookingID, paymentID string) (bool, error) {
	args := m.Called(bookingID, paymentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) CancelFromStatus(bookingID, fromStatus string, at time.Time) (bool, error) {
	args := m.Called(bookingID, fromStatus, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) SetDiscount(bookingID, code string, discount, final float64) (bool, error) {
	args := m.Called(bookingID, code, discount, final)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) SetPaymentIntent(bookingID, intentID string) error {
	args := m.Called(bookingID, intentID)
	return args.Error(0)
}

func (m *MockDBLayer) SetPaymentStatus(bookingID, status string) error {
	args := m.Called(bookingID, status)
	return args.Error(0)
}

func (m *MockDBLayer) GetBookingByPaymentIntent(intentID string) (*models.Booking, error) {
	args := m.Called(intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockDBLayer) UpdateBooking(booking *models.Booking) error {
	args := m.Called(booking)
	return args.Error(0)
}

func (m *MockDBLayer) GetBookingsByUser(userID string, filter models.BookingFilter) ([]models.Booking, int, error) {
	args := m.Called(userID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Booking), args.Int(1), args.Error(2)
}

func (m *MockDBLayer) GetBookingsByAgent(agentID string, filter models.BookingFilter) ([]models.Booking, int, error) {
	args := m.Called(agentID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Booking), args.Int(1), args.Error(2)
}

func (m *MockDBLayer) GetBookingsByEvent(eventID string) ([]models.Booking, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Reserve(eventID string, lines []models.LineRequest) error {
	args := m.Called(eventID, lines)
	return args.Error(0)
}

func (m *MockLedger) Release(lines []models.LineRequest) error {
	args := m.Called(lines)
	return args.Error(0)
}

func (m *MockLedger) Commit(eventID string, quantity int) error {
	args := m.Called(eventID, quantity)
	return args.Error(0)
}

func (m *MockLedger) ReleaseSold(eventID string, quantity int) error {
	args := m.Called(eventID, quantity)
	return args.Error(0)
}

func (m *MockLedger) TiersByEvent(eventID string) ([]models.TicketTier, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TicketTier), args.Error(1)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) GetEvent(eventID string) (*models.Event, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type MockHolds struct {
	mock.Mock
}

func (m *MockHolds) Place(bookingID string) (bool, error) {
	args := m.Called(bookingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockHolds) Clear(bookingID string) error {
	args := m.Called(bookingID)
	return args.Error(0)
}

type MockKafkaProducer struct {
	mock.Mock
}

func (m *MockKafkaProducer) PublishBookingCreated(b models.Booking) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockKafkaProducer) PublishBookingConfirmed(b models.Booking) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockKafkaProducer) PublishBookingCancelled(b models.Booking) error {
	args := m.Called(b)
	return args.Error(0)
}

type MockTicketIssuer struct {
	mock.Mock
}

func (m *MockTicketIssuer) IssueForBooking(b models.Booking, lines []models.BookingLine, event models.Event) ([]models.Ticket, error) {
	args := m.Called(b, lines, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketIssuer) TicketsForBooking(bookingID string) ([]models.Ticket, error) {
	args := m.Called(bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketIssuer) CancelForBooking(bookingID string) error {
	args := m.Called(bookingID)
	return args.Error(0)
}

type MockCoupons struct {
	mock.Mock
}

func (m *MockCoupons) Apply(code, eventID string, total float64, identity models.Identity) (*pricing.Quote, error) {
	args := m.Called(code, eventID, total, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Quote), args.Error(1)
}

func (m *MockCoupons) Revert(code string) error {
	args := m.Called(code)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateIntent(bookingID string, amount float64, currency string) (*models.PaymentIntent, error) {
	args := m.Called(bookingID, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockGateway) Refund(paymentID string, amount float64) error {
	args := m.Called(paymentID, amount)
	return args.Error(0)
}

type testFixture struct {
	db      *MockDBLayer
	ledger  *MockLedger
	events  *MockEventStore
	holds   *MockHolds
	kafka   *MockKafkaProducer
	tickets *MockTicketIssuer
	coupons *MockCoupons
	gateway *MockGateway
	svc     *booking.Service
}

func newFixture() *testFixture {
	f := &testFixture{
		db:      new(MockDBLayer),
		ledger:  new(MockLedger),
		events:  new(MockEventStore),
		holds:   new(MockHolds),
		kafka:   new(MockKafkaProducer),
		tickets: new(MockTicketIssuer),
		coupons: new(MockCoupons),
		gateway: new(MockGateway),
	}
	f.svc = booking.NewService(f.db, f.ledger, f.events, f.holds, f.kafka,
		f.tickets, f.coupons, f.gateway, nil, "usd", logger.NewLogger())
	return f
}

func owner() models.Identity {
	return models.Identity{UserID: "user123", Role: models.RoleUser}
}

func eventTiers() []models.TicketTier {
	return []models.TicketTier{
		{ID: "tier1", EventID: "event1", Name: "General", Price: 50, Capacity: 100, Available: 100, MaxPerBooking: 4},
		{ID: "tier2", EventID: "event1", Name: "VIP", Price: 150, Capacity: 20, Available: 20, MaxPerBooking: 2},
	}
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		BookingID:     "booking1",
		UserID:        "user123",
		EventID:       "event1",
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   250,
		FinalAmount:   250,
		CreatedAt:     time.Now(),
	}
}

func bookingLines() []models.BookingLine {
	return []models.BookingLine{
		{ID: "line1", BookingID: "booking1", TierID: "tier1", TierName: "General", Quantity: 2, UnitPrice: 50},
		{ID: "line2", BookingID: "booking1", TierID: "tier2", TierName: "VIP", Quantity: 1, UnitPrice: 150},
	}
}

// Tests

func TestCreateBooking(t *testing.T) {
	f := newFixture()
	req := models.BookingRequest{
		EventID: "event1",
		Lines:   []models.LineRequest{{TierID: "tier1", Quantity: 2}, {TierID: "tier2", Quantity: 1}},
	}

	f.ledger.On("TiersByEvent", "event1").Return(eventTiers(), nil)
	f.ledger.On("Reserve", "event1", req.Lines).Return(nil)
	f.db.On("CreateBooking", mock.AnythingOfType("models.Booking"), mock.AnythingOfType("[]models.BookingLine")).Return(nil)
	f.holds.On("Place", mock.AnythingOfType("string")).Return(true, nil)
	f.kafka.On("PublishBookingCreated", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Create(req, owner())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, result.Status)
	assert.Equal(t, 250.0, result.TotalAmount)
	assert.Equal(t, 250.0, result.FinalAmount)
	assert.Len(t, result.Lines, 2)
	// Lines snapshot the tier price at creation time
	assert.Equal(t, 50.0, result.Lines[0].UnitPrice)
	f.ledger.AssertExpectations(t)
	f.db.AssertExpectations(t)
}

func TestCreateBookingReleasesSeatsOnPersistFailure(t *testing.T) {
	f := newFixture()
	req := models.BookingRequest{
		EventID: "event1",
		Lines:   []models.LineRequest{{TierID: "tier1", Quantity: 2}},
	}

	f.ledger.On("TiersByEvent", "event1").Return(eventTiers(), nil)
	f.ledger.On("Reserve", "event1", req.Lines).Return(nil)
	f.db.On("CreateBooking", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.ledger.On("Release", req.Lines).Return(nil)

	_, err := f.svc.Create(req, owner())
	assert.Equal(t, errs.KindExternal, errs.KindOf(err))
	f.ledger.AssertCalled(t, "Release", req.Lines)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(models.BookingRequest{Lines: []models.LineRequest{{TierID: "tier1", Quantity: 1}}}, owner())
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.svc.Create(models.BookingRequest{EventID: "event1"}, owner())
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.coupons.On("Apply", "SAVE10", "event1", 250.0, owner()).Return(&pricing.Quote{
		Code: "SAVE10", TotalAmount: 250, DiscountAmount: 25, FinalAmount: 225,
	}, nil)
	f.db.On("SetDiscount", "booking1", "SAVE10", 25.0, 225.0).Return(true, nil)

	updated, err := f.svc.ApplyCoupon("booking1", "SAVE10", owner())
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", updated.DiscountCode)
	assert.Equal(t, 225.0, updated.FinalAmount)
	f.db.AssertExpectations(t)
}

func TestApplyCouponRevertsWhenBookingLeftPending(t *testing.T) {
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.coupons.On("Apply", "SAVE10", "event1", 250.0, owner()).Return(&pricing.Quote{
		Code: "SAVE10", TotalAmount: 250, DiscountAmount: 25, FinalAmount: 225,
	}, nil)
	// The conditional write misses: booking confirmed concurrently
	f.db.On("SetDiscount", "booking1", "SAVE10", 25.0, 225.0).Return(false, nil)
	f.coupons.On("Revert", "SAVE10").Return(nil)

	_, err := f.svc.ApplyCoupon("booking1", "SAVE10", owner())
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	f.coupons.AssertCalled(t, "Revert", "SAVE10")
}

func TestApplyCouponRejectsNonPending(t *testing.T) {
	f := newFixture()
	confirmed := pendingBooking()
	confirmed.Status = models.BookingStatusConfirmed
	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)

	_, err := f.svc.ApplyCoupon("booking1", "SAVE10", owner())
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestApplyCouponRejectsSecondCoupon(t *testing.T) {
	f := newFixture()
	discounted := pendingBooking()
	discounted.DiscountCode = "FLAT500"
	f.db.On("GetBookingByID", "booking1").Return(discounted, nil)

	_, err := f.svc.ApplyCoupon("booking1", "SAVE10", owner())
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestApplyCouponOwnership(t *testing.T) {
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)

	stranger := models.Identity{UserID: "someone-else", Role: models.RoleUser}
	_, err := f.svc.ApplyCoupon("booking1", "SAVE10", stranger)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestConfirmBooking(t *testing.T) {
	f := newFixture()
	event := &models.Event{ID: "event1", Title: "Summer Fest", EndDate: time.Now().Add(48 * time.Hour)}
	issued := []models.Ticket{{TicketID: "t1"}, {TicketID: "t2"}, {TicketID: "t3"}}

	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.db.On("ConfirmBooking", "booking1", "pay_123").Return(true, nil)
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Commit", "event1", 3).Return(nil)
	f.holds.On("Clear", "booking1").Return(nil)
	f.events.On("GetEvent", "event1").Return(event, nil)
	f.tickets.On("IssueForBooking", mock.AnythingOfType("models.Booking"), bookingLines(), *event).Return(issued, nil)
	f.kafka.On("PublishBookingConfirmed", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Confirm("booking1", "pay_123", owner())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, result.Status)
	assert.Len(t, result.Tickets, 3)
	f.ledger.AssertCalled(t, "Commit", "event1", 3)
	f.tickets.AssertExpectations(t)
}

func TestConfirmBookingOnlyOnce(t *testing.T) {
	// A second confirm loses the conditional update and gets a conflict
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.db.On("ConfirmBooking", "booking1", "pay_123").Return(false, nil)

	_, err := f.svc.Confirm("booking1", "pay_123", owner())
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestCancelPendingBooking(t *testing.T) {
	f := newFixture()
	withCoupon := pendingBooking()
	withCoupon.DiscountCode = "SAVE10"

	f.db.On("GetBookingByID", "booking1").Return(withCoupon, nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusPending, mock.AnythingOfType("time.Time")).Return(true, nil)
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Release", mock.AnythingOfType("[]models.LineRequest")).Return(nil)
	f.coupons.On("Revert", "SAVE10").Return(nil)
	f.holds.On("Clear", "booking1").Return(nil)
	f.kafka.On("PublishBookingCancelled", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Cancel("booking1", owner())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, result.Status)
	f.ledger.AssertCalled(t, "Release", mock.AnythingOfType("[]models.LineRequest"))
	f.coupons.AssertCalled(t, "Revert", "SAVE10")
	// No refund for an unpaid booking
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestCancelConfirmedBookingRefunds(t *testing.T) {
	f := newFixture()
	confirmed := pendingBooking()
	confirmed.Status = models.BookingStatusConfirmed
	confirmed.PaymentStatus = models.PaymentStatusCompleted
	confirmed.PaymentID = "pay_123"

	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusPending, mock.AnythingOfType("time.Time")).Return(false, nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusConfirmed, mock.AnythingOfType("time.Time")).Return(true, nil)
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Release", mock.AnythingOfType("[]models.LineRequest")).Return(nil)
	f.ledger.On("ReleaseSold", "event1", 3).Return(nil)
	f.tickets.On("CancelForBooking", "booking1").Return(nil)
	f.gateway.On("Refund", "pay_123", 250.0).Return(nil)
	f.db.On("SetPaymentStatus", "booking1", models.PaymentStatusRefunded).Return(nil)
	f.holds.On("Clear", "booking1").Return(nil)
	f.kafka.On("PublishBookingCancelled", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Cancel("booking1", owner())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, result.Status)
	f.gateway.AssertCalled(t, "Refund", "pay_123", 250.0)
	f.tickets.AssertCalled(t, "CancelForBooking", "booking1")
	f.ledger.AssertCalled(t, "ReleaseSold", "event1", 3)
}

func TestConfirmResumesIssuanceAfterFailure(t *testing.T) {
	// The pending-to-confirmed flip won but ticket issuance failed. A retry
	// must not be wedged on "booking is not pending"; it resumes issuance
	// without committing the sold count a second time.
	f := newFixture()
	event := &models.Event{ID: "event1", Title: "Summer Fest", EndDate: time.Now().Add(48 * time.Hour)}
	issued := []models.Ticket{{TicketID: "t1"}, {TicketID: "t2"}, {TicketID: "t3"}}
	confirmed := pendingBooking()
	confirmed.Status = models.BookingStatusConfirmed
	confirmed.PaymentStatus = models.PaymentStatusCompleted
	confirmed.PaymentID = "pay_123"

	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil).Once()
	f.db.On("ConfirmBooking", "booking1", "pay_123").Return(true, nil).Once()
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Commit", "event1", 3).Return(nil).Once()
	f.holds.On("Clear", "booking1").Return(nil)
	f.events.On("GetEvent", "event1").Return(event, nil)
	f.tickets.On("IssueForBooking", mock.AnythingOfType("models.Booking"), bookingLines(), *event).
		Return(nil, errs.External("printer on fire", errors.New("printer on fire"))).Once()

	_, err := f.svc.Confirm("booking1", "pay_123", owner())
	require.Error(t, err)

	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)
	f.db.On("ConfirmBooking", "booking1", "pay_123").Return(false, nil)
	f.tickets.On("TicketsForBooking", "booking1").Return([]models.Ticket{}, nil)
	f.tickets.On("IssueForBooking", mock.AnythingOfType("models.Booking"), bookingLines(), *event).
		Return(issued, nil)
	f.kafka.On("PublishBookingConfirmed", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Confirm("booking1", "pay_123", owner())
	require.NoError(t, err)
	assert.Len(t, result.Tickets, 3)
	f.ledger.AssertNumberOfCalls(t, "Commit", 1)
}

func TestConfirmConflictsWhenTicketsAlreadyIssued(t *testing.T) {
	f := newFixture()
	confirmed := pendingBooking()
	confirmed.Status = models.BookingStatusConfirmed

	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)
	f.db.On("ConfirmBooking", "booking1", "pay_123").Return(false, nil)
	f.tickets.On("TicketsForBooking", "booking1").Return([]models.Ticket{{TicketID: "t1"}}, nil)

	_, err := f.svc.Confirm("booking1", "pay_123", owner())
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	f.tickets.AssertNotCalled(t, "IssueForBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelRefundsWithFreshPaymentDetails(t *testing.T) {
	// The booking confirmed between our load and the cancel flip; the
	// refund must use the payment id and final amount the confirm wrote,
	// not the stale pre-payment snapshot.
	f := newFixture()
	stale := pendingBooking()
	fresh := pendingBooking()
	fresh.Status = models.BookingStatusCancelled
	fresh.PaymentStatus = models.PaymentStatusCompleted
	fresh.PaymentID = "pay_789"
	fresh.DiscountCode = "SAVE10"
	fresh.DiscountAmount = 25
	fresh.FinalAmount = 225

	f.db.On("GetBookingByID", "booking1").Return(stale, nil).Once()
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusPending, mock.AnythingOfType("time.Time")).Return(false, nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusConfirmed, mock.AnythingOfType("time.Time")).Return(true, nil)
	f.db.On("GetBookingByID", "booking1").Return(fresh, nil)
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Release", mock.AnythingOfType("[]models.LineRequest")).Return(nil)
	f.ledger.On("ReleaseSold", "event1", 3).Return(nil)
	f.tickets.On("CancelForBooking", "booking1").Return(nil)
	f.gateway.On("Refund", "pay_789", 225.0).Return(nil)
	f.db.On("SetPaymentStatus", "booking1", models.PaymentStatusRefunded).Return(nil)
	f.holds.On("Clear", "booking1").Return(nil)
	f.kafka.On("PublishBookingCancelled", mock.AnythingOfType("models.Booking")).Return(nil)

	_, err := f.svc.Cancel("booking1", owner())
	require.NoError(t, err)
	f.gateway.AssertCalled(t, "Refund", "pay_789", 225.0)
}

func TestCancelAlreadyCancelledIsNoOp(t *testing.T) {
	f := newFixture()
	cancelled := pendingBooking()
	cancelled.Status = models.BookingStatusCancelled

	f.db.On("GetBookingByID", "booking1").Return(cancelled, nil)

	result, err := f.svc.Cancel("booking1", owner())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, result.Status)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything)
}

func TestExpireHoldCancelsPending(t *testing.T) {
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusPending, mock.AnythingOfType("time.Time")).Return(true, nil)
	f.db.On("GetLinesByBooking", "booking1").Return(bookingLines(), nil)
	f.ledger.On("Release", mock.AnythingOfType("[]models.LineRequest")).Return(nil)
	f.kafka.On("PublishBookingCancelled", mock.AnythingOfType("models.Booking")).Return(nil)

	err := f.svc.ExpireHold("booking1")
	require.NoError(t, err)
	f.ledger.AssertCalled(t, "Release", mock.AnythingOfType("[]models.LineRequest"))
}

func TestExpireHoldSparesConfirmed(t *testing.T) {
	f := newFixture()
	confirmed := pendingBooking()
	confirmed.Status = models.BookingStatusConfirmed

	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)
	f.db.On("CancelFromStatus", "booking1", models.BookingStatusPending, mock.AnythingOfType("time.Time")).Return(false, nil)

	err := f.svc.ExpireHold("booking1")
	require.NoError(t, err)
	f.ledger.AssertNotCalled(t, "Release", mock.Anything)
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newFixture()
	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.gateway.On("CreateIntent", "booking1", 250.0, "usd").Return(&models.PaymentIntent{
		IntentID: "pi_123", ClientSecret: "secret", Amount: 250, Currency: "usd", Status: "requires_payment_method",
	}, nil)
	f.db.On("SetPaymentIntent", "booking1", "pi_123").Return(nil)

	intent, err := f.svc.CreatePaymentIntent("booking1", owner())
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.IntentID)
}

func TestHandlePaymentSucceededIgnoresAlreadyConfirmed(t *testing.T) {
	f := newFixture()
	confirmed := pendingBooking()
	confirmed.PaymentIntentID = "pi_123"

	f.db.On("GetBookingByPaymentIntent", "pi_123").Return(confirmed, nil)
	f.db.On("GetBookingByID", "booking1").Return(confirmed, nil)
	f.db.On("ConfirmBooking", "booking1", "pi_123").Return(false, nil)

	err := f.svc.HandlePaymentSucceeded("pi_123")
	assert.NoError(t, err)
}

func TestListByEventRequiresAdmin(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ListByEvent("event1", owner())
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	f.db.On("GetBookingsByEvent", "event1").Return([]models.Booking{}, nil)
	_, err = f.svc.ListByEvent("event1", models.Identity{UserID: "admin1", Role: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestCreateBookingAttachesAgentCommission(t *testing.T) {
	f := newFixture()
	req := models.BookingRequest{
		EventID: "event1",
		Lines:   []models.LineRequest{{TierID: "tier1", Quantity: 1}},
		AgentID: "agent42",
	}

	f.ledger.On("TiersByEvent", "event1").Return(eventTiers(), nil)
	f.ledger.On("Reserve", "event1", req.Lines).Return(nil)
	f.db.On("CreateBooking", mock.AnythingOfType("models.Booking"), mock.Anything).Return(nil)
	f.holds.On("Place", mock.AnythingOfType("string")).Return(true, nil)
	f.kafka.On("PublishBookingCreated", mock.AnythingOfType("models.Booking")).Return(nil)

	result, err := f.svc.Create(req, owner())
	require.NoError(t, err)
	assert.Equal(t, "agent42", result.AgentID)
	assert.Equal(t, 10.0, result.AgentCommission)
}

func TestListByUserPaginates(t *testing.T) {
	f := newFixture()
	filter := models.BookingFilter{Status: models.BookingStatusConfirmed, Page: 2, Limit: 5}

	f.db.On("GetBookingsByUser", "user123", filter).Return([]models.Booking{*pendingBooking()}, 11, nil)

	page, err := f.svc.ListByUser("user123", filter, owner())
	require.NoError(t, err)
	assert.Len(t, page.Bookings, 1)
	assert.Equal(t, 11, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)

	_, err = f.svc.ListByUser("someone-else", filter, owner())
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestListByAgent(t *testing.T) {
	f := newFixture()
	agent := models.Identity{UserID: "agent42", Role: models.RoleAgent}

	f.db.On("GetBookingsByAgent", "agent42", models.BookingFilter{}).Return([]models.Booking{}, 0, nil)
	_, err := f.svc.ListByAgent("agent42", models.BookingFilter{}, agent)
	assert.NoError(t, err)

	_, err = f.svc.ListByAgent("agent42", models.BookingFilter{}, owner())
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestAdminUpdateRecomputesFinalAmount(t *testing.T) {
	f := newFixture()
	admin := models.Identity{UserID: "admin1", Role: models.RoleAdmin}

	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	f.db.On("UpdateBooking", mock.AnythingOfType("*models.Booking")).Return(nil)

	discount := 30.0
	updated, err := f.svc.AdminUpdate("booking1", models.AdminBookingUpdate{
		PaymentStatus:  models.PaymentStatusCompleted,
		DiscountAmount: &discount,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, updated.PaymentStatus)
	assert.Equal(t, 30.0, updated.DiscountAmount)
	assert.Equal(t, 220.0, updated.FinalAmount)
}

func TestAdminUpdateRejectsNonAdminAndBadValues(t *testing.T) {
	f := newFixture()
	admin := models.Identity{UserID: "admin1", Role: models.RoleAdmin}

	_, err := f.svc.AdminUpdate("booking1", models.AdminBookingUpdate{}, owner())
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	f.db.On("GetBookingByID", "booking1").Return(pendingBooking(), nil)
	_, err = f.svc.AdminUpdate("booking1", models.AdminBookingUpdate{Status: "teleported"}, admin)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	tooBig := 999.0
	_, err = f.svc.AdminUpdate("booking1", models.AdminBookingUpdate{DiscountAmount: &tooBig}, admin)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}
