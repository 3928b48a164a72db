package inventory_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ms-booking/internal/errs"
	"ms-booking/internal/inventory"
	invdb "ms-booking/internal/inventory/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetEvent(eventID string) (*models.Event, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) GetTier(tierID string) (*models.TicketTier, error) {
	args := m.Called(tierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TicketTier), args.Error(1)
}

func (m *MockDBLayer) GetTiersByEvent(eventID string) ([]models.TicketTier, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TicketTier), args.Error(1)
}

func (m *MockDBLayer) ReserveTiers(lines []models.LineRequest) error {
	args := m.Called(lines)
	return args.Error(0)
}

func (m *MockDBLayer) ReleaseTiers(lines []models.LineRequest) error {
	args := m.Called(lines)
	return args.Error(0)
}

func (m *MockDBLayer) CommitSold(eventID string, quantity int) error {
	args := m.Called(eventID, quantity)
	return args.Error(0)
}

func (m *MockDBLayer) ReleaseSold(eventID string, quantity int) error {
	args := m.Called(eventID, quantity)
	return args.Error(0)
}

func publishedEvent() *models.Event {
	return &models.Event{
		ID:        "event1",
		Title:     "Summer Fest",
		Status:    models.EventStatusPublished,
		StartDate: time.Now().Add(24 * time.Hour),
		EndDate:   time.Now().Add(48 * time.Hour),
	}
}

func generalTier() *models.TicketTier {
	return &models.TicketTier{
		ID:            "tier1",
		EventID:       "event1",
		Name:          "General",
		Price:         50.0,
		Capacity:      100,
		Available:     100,
		MaxPerBooking: 4,
	}
}

func TestReserveValidatesRequest(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	// Empty line list
	err := svc.Reserve("event1", nil)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	// Unknown event
	mockDB.On("GetEvent", "missing").Return(nil, sql.ErrNoRows)
	err = svc.Reserve("missing", []models.LineRequest{{TierID: "tier1", Quantity: 1}})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	// Draft event is not bookable
	draft := publishedEvent()
	draft.Status = models.EventStatusDraft
	mockDB.On("GetEvent", "event1").Return(draft, nil)
	err = svc.Reserve("event1", []models.LineRequest{{TierID: "tier1", Quantity: 1}})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	mockDB.AssertExpectations(t)
}

func TestReserveRejectsBadQuantities(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	mockDB.On("GetEvent", "event1").Return(publishedEvent(), nil)
	mockDB.On("GetTier", "tier1").Return(generalTier(), nil)

	// Zero quantity
	err := svc.Reserve("event1", []models.LineRequest{{TierID: "tier1", Quantity: 0}})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	// Duplicate tier in one request
	err = svc.Reserve("event1", []models.LineRequest{
		{TierID: "tier1", Quantity: 1},
		{TierID: "tier1", Quantity: 1},
	})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	// Over the per-booking cap
	err = svc.Reserve("event1", []models.LineRequest{{TierID: "tier1", Quantity: 5}})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestReserveMapsUnavailabilityToInsufficientInventory(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	lines := []models.LineRequest{{TierID: "tier1", Quantity: 2}}
	mockDB.On("GetEvent", "event1").Return(publishedEvent(), nil)
	mockDB.On("GetTier", "tier1").Return(generalTier(), nil)
	mockDB.On("ReserveTiers", lines).Return(invdb.ErrTierUnavailable)

	err := svc.Reserve("event1", lines)
	assert.Equal(t, errs.KindInsufficientInventory, errs.KindOf(err))
	mockDB.AssertExpectations(t)
}

func TestReserveRejectsTierFromOtherEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	foreign := generalTier()
	foreign.EventID = "event2"
	mockDB.On("GetEvent", "event1").Return(publishedEvent(), nil)
	mockDB.On("GetTier", "tier1").Return(foreign, nil)

	err := svc.Reserve("event1", []models.LineRequest{{TierID: "tier1", Quantity: 1}})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestReleaseIgnoresEmptyLines(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	// No DB call expected
	assert.NoError(t, svc.Release(nil))
	mockDB.AssertExpectations(t)
}

func TestCheckAvailability(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := inventory.NewService(mockDB, logger.NewLogger())

	tier := generalTier()
	tier.Available = 2
	mockDB.On("GetEvent", "event1").Return(publishedEvent(), nil)
	mockDB.On("GetTier", "tier1").Return(tier, nil)
	mockDB.On("GetTier", "missing").Return(nil, sql.ErrNoRows)

	results, err := svc.CheckAvailability("event1", []models.LineRequest{
		{TierID: "tier1", Quantity: 2},
		{TierID: "missing", Quantity: 1},
	})
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.True(t, results[0].Available)
	assert.Equal(t, 2, results[0].AvailableQuantity)
	assert.False(t, results[1].Available)
	assert.Equal(t, "tier not found", results[1].Reason)

	// Asking for more than remains is reported, not an error
	results, err = svc.CheckAvailability("event1", []models.LineRequest{{TierID: "tier1", Quantity: 3}})
	assert.NoError(t, err)
	assert.False(t, results[0].Available)
}
