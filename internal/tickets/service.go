package tickets

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
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/tickets/template"
)

type DBLayer interface {
	CreateTickets(tickets []models.Ticket) error
	GetTicketByID(ticketID string) (*models.Ticket, error)
	GetTicketByQR(qrCode string) (*models.Ticket, error)
	MarkUsed(ticketID string, usedAt time.Time) (bool, error)
	AppendScanRecord(record models.ScanRecord) error
	CancelByBooking(bookingID string) error
	GetTicketsByBooking(bookingID string) ([]models.Ticket, error)
	GetTicketsByUser(userID string) ([]models.Ticket, error)
	GetScanRecordsByTicket(ticketID string) ([]models.ScanRecord, error)
}

type KafkaPublisher interface {
	PublishTicketScanned(ticket models.Ticket) error
}

type Service struct {
	DB     DBLayer
	QR     *qr.Generator
	PDF    *template.TicketPDFGenerator
	Kafka  KafkaPublisher
	Logger *logger.Logger
}

func NewService(db DBLayer, gen *qr.Generator, pdf *template.TicketPDFGenerator, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, QR: gen, PDF: pdf, Kafka: kafka, Logger: log}
}

// IssueForBooking mints one ticket per purchased seat of a confirmed booking.
// Every ticket gets its own encrypted credential; all of them are persisted
// in one transaction.
func (s *Service) IssueForBooking(booking models.Booking, lines []models.BookingLine, event models.Event) ([]models.Ticket, error) {
	now := time.Now()
	var tickets []models.Ticket

	for _, line := range lines {
		for i := 0; i < line.Quantity; i++ {
			ticketID := uuid.New().String()
			credential, err := s.QR.Credential(qr.Payload{
				TicketID: ticketID,
				EventID:  booking.EventID,
				IssuedAt: now,
			})
			if err != nil {
				return nil, errs.External("failed to generate ticket credential", err)
			}

			tickets = append(tickets, models.Ticket{
				TicketID:   ticketID,
				EventID:    booking.EventID,
				UserID:     booking.UserID,
				BookingID:  booking.BookingID,
				TierID:     line.TierID,
				TierName:   line.TierName,
				TierPrice:  line.UnitPrice,
				QRCode:     credential,
				Status:     models.TicketStatusActive,
				ValidUntil: event.EndDate,
				IssuedAt:   now,
			})
		}
	}

	if err := s.DB.CreateTickets(tickets); err != nil {
		return nil, errs.External("failed to persist tickets", err)
	}

	s.Logger.LogScan("ISSUED", booking.BookingID, fmt.Sprintf("%d ticket(s) issued", len(tickets)))
	return tickets, nil
}

// Scan validates a gate credential and consumes the ticket. The status flip
// is a conditional update, so when two scanners race on the same ticket only
// one sees a valid scan. Every attempt lands in the scan history.
func (s *Service) Scan(req models.ScanRequest, identity models.Identity) (*models.ScanResult, error) {
	if !identity.CanScan() {
		return nil, errs.Forbidden("only scanner accounts may scan tickets")
	}
	// A gate that does not say which event it admits for could accept
	// tickets from any event.
	if req.EventID == "" {
		return nil, errs.Validation("event_id is required")
	}

	payload, err := s.QR.Decode(req.QRCode)
	if err != nil {
		monitoring.TicketScans.WithLabelValues("invalid_credential").Inc()
		return nil, errs.Validation("invalid ticket credential")
	}

	ticket, err := s.DB.GetTicketByQR(req.QRCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			monitoring.TicketScans.WithLabelValues("unknown").Inc()
			return nil, errs.NotFound("ticket not found")
		}
		return nil, errs.External("failed to load ticket", err)
	}

	if ticket.TicketID != payload.TicketID {
		monitoring.TicketScans.WithLabelValues("invalid_credential").Inc()
		return nil, errs.Validation("invalid ticket credential")
	}

	now := time.Now()
	s.recordScan(ticket.TicketID, identity.UserID, req.Location, now)

	if ticket.EventID != req.EventID {
		monitoring.TicketScans.WithLabelValues("wrong_event").Inc()
		return nil, errs.Validation("ticket belongs to a different event")
	}

	switch ticket.Status {
	case models.TicketStatusCancelled:
		monitoring.TicketScans.WithLabelValues("cancelled").Inc()
		return nil, errs.Conflict("ticket has been cancelled")
	case models.TicketStatusUsed:
		monitoring.TicketScans.WithLabelValues("already_used").Inc()
		s.Logger.LogSecurity("DUPLICATE_SCAN", fmt.Sprintf("ticket %s scanned again by %s", ticket.TicketID, identity.UserID))
		return nil, errs.Conflict("ticket has already been used")
	case models.TicketStatusExpired:
		monitoring.TicketScans.WithLabelValues("expired").Inc()
		return nil, errs.Conflict("ticket has expired")
	}

	if !ticket.ValidUntil.IsZero() && now.After(ticket.ValidUntil) {
		monitoring.TicketScans.WithLabelValues("expired").Inc()
		return nil, errs.Conflict("ticket has expired")
	}

	won, err := s.DB.MarkUsed(ticket.TicketID, now)
	if err != nil {
		return nil, errs.External("failed to mark ticket as used", err)
	}
	if !won {
		// Another scanner consumed it between our read and the update
		monitoring.TicketScans.WithLabelValues("already_used").Inc()
		return nil, errs.Conflict("ticket has already been used")
	}

	ticket.Status = models.TicketStatusUsed
	ticket.UsedAt = now
	monitoring.TicketScans.WithLabelValues("valid").Inc()
	s.Logger.LogScan("ADMITTED", ticket.TicketID, fmt.Sprintf("scanned by %s", identity.UserID))

	if s.Kafka != nil {
		if err := s.Kafka.PublishTicketScanned(*ticket); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket scanned event: %v", err))
		}
	}

	return &models.ScanResult{Ticket: ticket, ValidScan: true}, nil
}

func (s *Service) recordScan(ticketID, scannedBy, location string, at time.Time) {
	record := models.ScanRecord{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		ScannedBy: scannedBy,
		ScannedAt: at,
		Location:  location,
	}
	if err := s.DB.AppendScanRecord(record); err != nil {
		s.Logger.Error("SCAN", fmt.Sprintf("Failed to append scan record for %s: %v", ticketID, err))
	}
}

// CancelForBooking voids the tickets of a cancelled booking.
func (s *Service) CancelForBooking(bookingID string) error {
	if err := s.DB.CancelByBooking(bookingID); err != nil {
		return errs.External("failed to cancel tickets", err)
	}
	s.Logger.LogScan("CANCELLED", bookingID, "tickets voided for booking")
	return nil
}

// RenderPDF produces the printable ticket with its QR image embedded. Only
// the ticket owner or an admin may download it.
func (s *Service) RenderPDF(ticketID string, eventTitle string, identity models.Identity) ([]byte, error) {
	ticket, err := s.DB.GetTicketByID(ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("ticket %s not found", ticketID)
		}
		return nil, errs.External("failed to load ticket", err)
	}

	if !identity.IsAdmin() && ticket.UserID != identity.UserID {
		return nil, errs.Forbidden("not allowed to download this ticket")
	}

	qrImage, err := s.QR.PNG(ticket.QRCode)
	if err != nil {
		return nil, errs.External("failed to render QR image", err)
	}

	pdfBytes, err := s.PDF.Generate(*ticket, eventTitle, qrImage)
	if err != nil {
		return nil, errs.External("failed to render ticket PDF", err)
	}
	return pdfBytes, nil
}

// TicketsForBooking lists a booking's tickets without an ownership check.
// The booking service uses it to detect a confirm that died before issuing.
func (s *Service) TicketsForBooking(bookingID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByBooking(bookingID)
}

func (s *Service) TicketsByBooking(bookingID string, identity models.Identity) ([]models.Ticket, error) {
	tickets, err := s.DB.GetTicketsByBooking(bookingID)
	if err != nil {
		return nil, errs.External("failed to list tickets", err)
	}
	if len(tickets) > 0 && !identity.IsAdmin() && tickets[0].UserID != identity.UserID {
		return nil, errs.Forbidden("not allowed to view these tickets")
	}
	return tickets, nil
}

func (s *Service) TicketsByUser(userID string, identity models.Identity) ([]models.Ticket, error) {
	if !identity.IsAdmin() && userID != identity.UserID {
		return nil, errs.Forbidden("not allowed to view these tickets")
	}
	tickets, err := s.DB.GetTicketsByUser(userID)
	if err != nil {
		return nil, errs.External("failed to list tickets", err)
	}
	return tickets, nil
}

// ScanHistory returns the append-only audit trail for one ticket.
func (s *Service) ScanHistory(ticketID string, identity models.Identity) ([]models.ScanRecord, error) {
	if !identity.CanScan() && !identity.IsAdmin() {
		return nil, errs.Forbidden("not allowed to view scan history")
	}
	records, err := s.DB.GetScanRecordsByTicket(ticketID)
	if err != nil {
		return nil, errs.External("failed to load scan history", err)
	}
	return records, nil
}
