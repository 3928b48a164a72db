package booking

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/errs"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/monitoring"
	"ms-booking/internal/notify"
	"ms-booking/internal/pricing"
)

type DBLayer interface {
	CreateBooking(booking models.Booking, lines []models.BookingLine) error
	GetBookingByID(bookingID string) (*models.Booking, error)
	GetLinesByBooking(bookingID string) ([]models.BookingLine, error)
	ConfirmBooking(bookingID, paymentID string) (bool, error)
	CancelFromStatus(bookingID, fromStatus string, at time.Time) (bool, error)
	SetDiscount(bookingID, code string, discount, final float64) (bool, error)
	SetPaymentIntent(bookingID, intentID string) error
	SetPaymentStatus(bookingID, status string) error
	GetBookingByPaymentIntent(intentID string) (*models.Booking, error)
	UpdateBooking(booking *models.Booking) error
	GetBookingsByUser(userID string, filter models.BookingFilter) ([]models.Booking, int, error)
	GetBookingsByAgent(agentID string, filter models.BookingFilter) ([]models.Booking, int, error)
	GetBookingsByEvent(eventID string) ([]models.Booking, error)
}

// Flat commission credited to an agent on bookings they place.
const agentCommissionPercent = 10

// Ledger is the inventory side of a booking: seats move out on reserve and
// back in on release, always through conditional updates.
type Ledger interface {
	Reserve(eventID string, lines []models.LineRequest) error
	Release(lines []models.LineRequest) error
	Commit(eventID string, quantity int) error
	ReleaseSold(eventID string, quantity int) error
	TiersByEvent(eventID string) ([]models.TicketTier, error)
}

type Holds interface {
	Place(bookingID string) (bool, error)
	Clear(bookingID string) error
}

type KafkaPublisher interface {
	PublishBookingCreated(booking models.Booking) error
	PublishBookingConfirmed(booking models.Booking) error
	PublishBookingCancelled(booking models.Booking) error
}

// TicketIssuer mints tickets when a booking confirms and voids them when a
// confirmed booking is cancelled.
type TicketIssuer interface {
	IssueForBooking(booking models.Booking, lines []models.BookingLine, event models.Event) ([]models.Ticket, error)
	TicketsForBooking(bookingID string) ([]models.Ticket, error)
	CancelForBooking(bookingID string) error
}

// Coupons is the pricing engine surface the booking flow needs.
type Coupons interface {
	Apply(code string, eventID string, total float64, identity models.Identity) (*pricing.Quote, error)
	Revert(code string) error
}

// PaymentGateway wraps the payment provider. Implementations must be safe to
// call twice for the same booking.
type PaymentGateway interface {
	CreateIntent(bookingID string, amount float64, currency string) (*models.PaymentIntent, error)
	Refund(paymentID string, amount float64) error
}

// EventStore resolves event details the booking flow needs beyond tier
// availability.
type EventStore interface {
	GetEvent(eventID string) (*models.Event, error)
}

type Service struct {
	DB       DBLayer
	Ledger   Ledger
	Events   EventStore
	Holds    Holds
	Kafka    KafkaPublisher
	Tickets  TicketIssuer
	Coupons  Coupons
	Gateway  PaymentGateway
	Notifier notify.Notifier
	Currency string
	Logger   *logger.Logger
}

func NewService(db DBLayer, ledger Ledger, events EventStore, holds Holds, kafka KafkaPublisher,
	tickets TicketIssuer, coupons Coupons, gateway PaymentGateway, notifier notify.Notifier,
	currency string, log *logger.Logger) *Service {
	return &Service{
		DB: db, Ledger: ledger, Events: events, Holds: holds, Kafka: kafka,
		Tickets: tickets, Coupons: coupons, Gateway: gateway, Notifier: notifier,
		Currency: currency, Logger: log,
	}
}

// Create reserves inventory and opens a pending booking with a snapshot of
// the tier prices. The reservation happens first; if persisting the booking
// fails the seats are released again.
func (s *Service) Create(req models.BookingRequest, identity models.Identity) (*models.BookingWithLines, error) {
	if req.EventID == "" {
		return nil, errs.Validation("event_id is required")
	}
	if len(req.Lines) == 0 {
		return nil, errs.Validation("at least one ticket line is required")
	}

	tiers, err := s.Ledger.TiersByEvent(req.EventID)
	if err != nil {
		return nil, err
	}
	tierByID := make(map[string]models.TicketTier, len(tiers))
	for _, tier := range tiers {
		tierByID[tier.ID] = tier
	}

	if err := s.Ledger.Reserve(req.EventID, req.Lines); err != nil {
		return nil, err
	}

	bookingID := uuid.New().String()
	var lines []models.BookingLine
	var total float64
	for _, line := range req.Lines {
		tier := tierByID[line.TierID]
		lines = append(lines, models.BookingLine{
			ID:        uuid.New().String(),
			BookingID: bookingID,
			TierID:    tier.ID,
			TierName:  tier.Name,
			Quantity:  line.Quantity,
			UnitPrice: tier.Price,
		})
		total += tier.Price * float64(line.Quantity)
	}

	booking := models.Booking{
		BookingID:     bookingID,
		UserID:        identity.UserID,
		EventID:       req.EventID,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   total,
		FinalAmount:   total,
		AgentID:       req.AgentID,
		CreatedAt:     time.Now(),
	}
	if req.AgentID != "" {
		booking.AgentCommission = agentCommissionPercent
	}

	if err := s.DB.CreateBooking(booking, lines); err != nil {
		// Give the seats back; the booking never existed
		if relErr := s.Ledger.Release(req.Lines); relErr != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release seats after create failure for %s: %v", bookingID, relErr))
		}
		return nil, errs.External("failed to create booking", err)
	}

	if _, err := s.Holds.Place(bookingID); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to place hold lease for %s: %v", bookingID, err))
	}

	monitoring.BookingsCreated.Inc()
	s.Logger.LogBooking("CREATED", bookingID, fmt.Sprintf("%d line(s), total %.2f", len(lines), total))

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingCreated(booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking created event: %v", err))
		}
	}
	if s.Notifier != nil {
		_ = s.Notifier.Send(identity.UserID, "booking_created", map[string]interface{}{
			"booking_id": bookingID,
			"total":      total,
		})
	}

	return &models.BookingWithLines{Booking: booking, Lines: lines}, nil
}

// ApplyCoupon prices a coupon into a pending booking. The coupon use and the
// discount write are both conditional, so a coupon can neither be double
// spent nor land on a booking that already left pending.
func (s *Service) ApplyCoupon(bookingID, code string, identity models.Identity) (*models.Booking, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManageBooking(booking) {
		return nil, errs.Forbidden("not allowed to modify this booking")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, errs.Conflict("coupons can only be applied to pending bookings")
	}
	if booking.DiscountCode != "" {
		return nil, errs.Conflict("booking already has a coupon applied")
	}

	quote, err := s.Coupons.Apply(code, booking.EventID, booking.TotalAmount, identity)
	if err != nil {
		return nil, err
	}

	ok, err := s.DB.SetDiscount(bookingID, quote.Code, quote.DiscountAmount, quote.FinalAmount)
	if err != nil {
		if revErr := s.Coupons.Revert(quote.Code); revErr != nil {
			s.Logger.Error("COUPON", fmt.Sprintf("Failed to revert coupon %s: %v", quote.Code, revErr))
		}
		return nil, errs.External("failed to apply discount", err)
	}
	if !ok {
		// Booking confirmed or cancelled since we loaded it
		if revErr := s.Coupons.Revert(quote.Code); revErr != nil {
			s.Logger.Error("COUPON", fmt.Sprintf("Failed to revert coupon %s: %v", quote.Code, revErr))
		}
		return nil, errs.Conflict("booking is no longer pending")
	}

	booking.DiscountCode = quote.Code
	booking.DiscountAmount = quote.DiscountAmount
	booking.FinalAmount = quote.FinalAmount
	s.Logger.LogBooking("COUPON_APPLIED", bookingID, fmt.Sprintf("%s -%.2f", quote.Code, quote.DiscountAmount))
	return booking, nil
}

// CreatePaymentIntent opens a payment for the booking's final amount.
func (s *Service) CreatePaymentIntent(bookingID string, identity models.Identity) (*models.PaymentIntent, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManageBooking(booking) {
		return nil, errs.Forbidden("not allowed to pay for this booking")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, errs.Conflict("booking is not awaiting payment")
	}

	intent, err := s.Gateway.CreateIntent(bookingID, booking.FinalAmount, s.Currency)
	if err != nil {
		return nil, errs.External("failed to create payment intent", err)
	}
	if err := s.DB.SetPaymentIntent(bookingID, intent.IntentID); err != nil {
		return nil, errs.External("failed to store payment intent", err)
	}
	s.Logger.LogBooking("PAYMENT_INTENT", bookingID, intent.IntentID)
	return intent, nil
}

// Confirm finalizes a paid booking. The pending-to-confirmed flip is the
// single decision point: whoever wins it commits inventory and issues the
// tickets. Other callers get a conflict, unless the winner failed before
// issuing, in which case the retry resumes issuance on the confirmed booking.
func (s *Service) Confirm(bookingID, paymentID string, identity models.Identity) (*models.BookingWithTickets, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManageBooking(booking) {
		return nil, errs.Forbidden("not allowed to confirm this booking")
	}

	won, err := s.DB.ConfirmBooking(bookingID, paymentID)
	if err != nil {
		return nil, errs.External("failed to confirm booking", err)
	}
	resuming := false
	if !won {
		// A previous confirm may have won the flip and then failed before
		// issuing tickets. Such a booking is confirmed but empty; the retry
		// picks up where the winner stopped instead of wedging forever.
		fresh, err := s.loadBooking(bookingID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != models.BookingStatusConfirmed {
			return nil, errs.Conflict("booking is not pending")
		}
		issued, err := s.Tickets.TicketsForBooking(bookingID)
		if err != nil {
			return nil, errs.External("failed to load issued tickets", err)
		}
		if len(issued) > 0 {
			return nil, errs.Conflict("booking is not pending")
		}
		booking = fresh
		resuming = true
	} else {
		booking.Status = models.BookingStatusConfirmed
		booking.PaymentStatus = models.PaymentStatusCompleted
		booking.PaymentID = paymentID
	}

	lines, err := s.DB.GetLinesByBooking(bookingID)
	if err != nil {
		return nil, errs.External("failed to load booking lines", err)
	}

	// The sold counter was already committed by the confirm that won the
	// flip; a resumed issuance must not count the seats twice.
	if !resuming {
		if err := s.Ledger.Commit(booking.EventID, totalQuantity(lines)); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to commit sold count for %s: %v", bookingID, err))
		}
	}
	if err := s.Holds.Clear(bookingID); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to clear hold lease for %s: %v", bookingID, err))
	}

	event, err := s.Events.GetEvent(booking.EventID)
	if err != nil {
		return nil, errs.External("failed to load event for ticket issuance", err)
	}
	tickets, err := s.Tickets.IssueForBooking(*booking, lines, *event)
	if err != nil {
		return nil, err
	}

	monitoring.BookingsConfirmed.Inc()
	s.Logger.LogBooking("CONFIRMED", bookingID, fmt.Sprintf("%d ticket(s) issued", len(tickets)))

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingConfirmed(*booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking confirmed event: %v", err))
		}
	}
	if s.Notifier != nil {
		_ = s.Notifier.Send(booking.UserID, "booking_confirmed", map[string]interface{}{
			"booking_id": bookingID,
			"tickets":    len(tickets),
		})
	}

	return &models.BookingWithTickets{Booking: *booking, Tickets: tickets}, nil
}

// Cancel moves a booking to cancelled from either live state. Which
// conditional update wins decides the cleanup path: a pending booking only
// returns reserved seats, a confirmed one also backs out the sold count,
// voids tickets and refunds the payment. Cancelling an already cancelled
// booking is a no-op.
func (s *Service) Cancel(bookingID string, identity models.Identity) (*models.Booking, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManageBooking(booking) {
		return nil, errs.Forbidden("not allowed to cancel this booking")
	}
	if booking.Status == models.BookingStatusCancelled {
		return booking, nil
	}

	now := time.Now()

	if won, err := s.DB.CancelFromStatus(bookingID, models.BookingStatusPending, now); err != nil {
		return nil, errs.External("failed to cancel booking", err)
	} else if won {
		s.releaseReservation(booking)
		s.revertCoupon(booking)
		s.finishCancel(booking, now)
		return booking, nil
	}

	if won, err := s.DB.CancelFromStatus(bookingID, models.BookingStatusConfirmed, now); err != nil {
		return nil, errs.External("failed to cancel booking", err)
	} else if won {
		// The struct loaded above may predate the confirm; the refund needs
		// the payment id and final amount the confirm wrote.
		if fresh, err := s.loadBooking(bookingID); err == nil {
			booking = fresh
		}
		s.releaseReservation(booking)
		lines, err := s.DB.GetLinesByBooking(bookingID)
		if err == nil {
			if relErr := s.Ledger.ReleaseSold(booking.EventID, totalQuantity(lines)); relErr != nil {
				s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release sold count for %s: %v", bookingID, relErr))
			}
		}
		if err := s.Tickets.CancelForBooking(bookingID); err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to void tickets for %s: %v", bookingID, err))
		}
		if booking.PaymentID != "" && s.Gateway != nil {
			if err := s.Gateway.Refund(booking.PaymentID, booking.FinalAmount); err != nil {
				s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to refund booking %s: %v", bookingID, err))
			} else if err := s.DB.SetPaymentStatus(bookingID, models.PaymentStatusRefunded); err != nil {
				s.Logger.Error("BOOKING", fmt.Sprintf("Failed to mark booking %s refunded: %v", bookingID, err))
			}
		}
		s.finishCancel(booking, now)
		return booking, nil
	}

	// Lost both races to a concurrent cancel
	fresh, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// ExpireHold is invoked by the hold-expiry reaper when a booking's payment
// window lapses. Only still-pending bookings are touched.
func (s *Service) ExpireHold(bookingID string) error {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil
		}
		return err
	}

	won, err := s.DB.CancelFromStatus(bookingID, models.BookingStatusPending, time.Now())
	if err != nil {
		return errs.External("failed to expire booking", err)
	}
	if !won {
		// Confirmed or cancelled before the lease ran out
		return nil
	}

	s.releaseReservation(booking)
	s.revertCoupon(booking)
	monitoring.BookingsCancelled.Inc()
	s.Logger.LogBooking("EXPIRED", bookingID, "payment window lapsed, seats released")

	if s.Kafka != nil {
		booking.Status = models.BookingStatusCancelled
		if err := s.Kafka.PublishBookingCancelled(*booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking cancelled event: %v", err))
		}
	}
	if s.Notifier != nil {
		_ = s.Notifier.Send(booking.UserID, "booking_expired", map[string]interface{}{
			"booking_id": bookingID,
		})
	}
	return nil
}

// HandlePaymentSucceeded confirms the booking attached to a successful
// payment intent. Driven by the payment webhook.
func (s *Service) HandlePaymentSucceeded(intentID string) error {
	booking, err := s.DB.GetBookingByPaymentIntent(intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("no booking for payment intent %s", intentID)
		}
		return errs.External("failed to load booking for payment intent", err)
	}

	// Act as the booking owner; the gateway already authenticated the payment
	_, err = s.Confirm(booking.BookingID, intentID, models.Identity{UserID: booking.UserID, Role: models.RoleUser})
	if err != nil && errs.KindOf(err) == errs.KindConflict {
		// Already confirmed via the synchronous path
		return nil
	}
	return err
}

func (s *Service) Get(bookingID string, identity models.Identity) (*models.BookingWithLines, error) {
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManageBooking(booking) {
		return nil, errs.Forbidden("not allowed to view this booking")
	}
	lines, err := s.DB.GetLinesByBooking(bookingID)
	if err != nil {
		return nil, errs.External("failed to load booking lines", err)
	}
	return &models.BookingWithLines{Booking: *booking, Lines: lines}, nil
}

func (s *Service) ListByUser(userID string, filter models.BookingFilter, identity models.Identity) (*models.BookingPage, error) {
	if !identity.IsAdmin() && userID != identity.UserID {
		return nil, errs.Forbidden("not allowed to list these bookings")
	}
	bookings, total, err := s.DB.GetBookingsByUser(userID, filter)
	if err != nil {
		return nil, errs.External("failed to list bookings", err)
	}
	return bookingPage(bookings, total, filter), nil
}

// ListByAgent returns the bookings an agent placed on behalf of customers.
func (s *Service) ListByAgent(agentID string, filter models.BookingFilter, identity models.Identity) (*models.BookingPage, error) {
	if !identity.IsAdmin() && agentID != identity.UserID {
		return nil, errs.Forbidden("not allowed to list these bookings")
	}
	bookings, total, err := s.DB.GetBookingsByAgent(agentID, filter)
	if err != nil {
		return nil, errs.External("failed to list bookings", err)
	}
	return bookingPage(bookings, total, filter), nil
}

// AdminUpdate lets an admin repair a booking's status, payment status or
// discount. A discount change recomputes the final amount; inventory is not
// touched, that is what Cancel is for.
func (s *Service) AdminUpdate(bookingID string, req models.AdminBookingUpdate, identity models.Identity) (*models.Booking, error) {
	if !identity.IsAdmin() {
		return nil, errs.Forbidden("only admins may update bookings")
	}
	booking, err := s.loadBooking(bookingID)
	if err != nil {
		return nil, err
	}

	if req.Status != "" {
		switch req.Status {
		case models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled:
			booking.Status = req.Status
		default:
			return nil, errs.Validation("unknown booking status %q", req.Status)
		}
	}
	if req.PaymentStatus != "" {
		switch req.PaymentStatus {
		case models.PaymentStatusPending, models.PaymentStatusCompleted,
			models.PaymentStatusFailed, models.PaymentStatusRefunded:
			booking.PaymentStatus = req.PaymentStatus
		default:
			return nil, errs.Validation("unknown payment status %q", req.PaymentStatus)
		}
	}
	if req.DiscountAmount != nil {
		if *req.DiscountAmount < 0 || *req.DiscountAmount > booking.TotalAmount {
			return nil, errs.Validation("discount must be between 0 and the booking total")
		}
		booking.DiscountAmount = *req.DiscountAmount
		booking.FinalAmount = booking.TotalAmount - *req.DiscountAmount
	}

	if err := s.DB.UpdateBooking(booking); err != nil {
		return nil, errs.External("failed to update booking", err)
	}
	s.Logger.LogBooking("ADMIN_UPDATED", bookingID, fmt.Sprintf("status=%s payment=%s", booking.Status, booking.PaymentStatus))
	return booking, nil
}

func bookingPage(bookings []models.Booking, total int, filter models.BookingFilter) *models.BookingPage {
	filter = filter.Normalize()
	pages := (total + filter.Limit - 1) / filter.Limit
	return &models.BookingPage{
		Bookings: bookings,
		Pagination: models.Pagination{
			Page:  filter.Page,
			Limit: filter.Limit,
			Total: total,
			Pages: pages,
		},
	}
}

func (s *Service) ListByEvent(eventID string, identity models.Identity) ([]models.Booking, error) {
	if !identity.IsAdmin() {
		return nil, errs.Forbidden("only admins may list bookings by event")
	}
	bookings, err := s.DB.GetBookingsByEvent(eventID)
	if err != nil {
		return nil, errs.External("failed to list bookings", err)
	}
	return bookings, nil
}

func (s *Service) loadBooking(bookingID string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("booking %s not found", bookingID)
		}
		return nil, errs.External("failed to load booking", err)
	}
	return booking, nil
}

func (s *Service) releaseReservation(booking *models.Booking) {
	lines, err := s.DB.GetLinesByBooking(booking.BookingID)
	if err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to load lines for release of %s: %v", booking.BookingID, err))
		return
	}
	requests := make([]models.LineRequest, 0, len(lines))
	for _, line := range lines {
		requests = append(requests, models.LineRequest{TierID: line.TierID, Quantity: line.Quantity})
	}
	if err := s.Ledger.Release(requests); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to release seats for %s: %v", booking.BookingID, err))
	}
}

func (s *Service) revertCoupon(booking *models.Booking) {
	if booking.DiscountCode == "" || s.Coupons == nil {
		return
	}
	if err := s.Coupons.Revert(booking.DiscountCode); err != nil {
		s.Logger.Error("COUPON", fmt.Sprintf("Failed to revert coupon %s for %s: %v", booking.DiscountCode, booking.BookingID, err))
	}
}

func (s *Service) finishCancel(booking *models.Booking, at time.Time) {
	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = at

	if err := s.Holds.Clear(booking.BookingID); err != nil {
		s.Logger.Error("BOOKING", fmt.Sprintf("Failed to clear hold lease for %s: %v", booking.BookingID, err))
	}

	monitoring.BookingsCancelled.Inc()
	s.Logger.LogBooking("CANCELLED", booking.BookingID, "seats released")

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingCancelled(*booking); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking cancelled event: %v", err))
		}
	}
	if s.Notifier != nil {
		_ = s.Notifier.Send(booking.UserID, "booking_cancelled", map[string]interface{}{
			"booking_id": booking.BookingID,
		})
	}
}

func totalQuantity(lines []models.BookingLine) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}
