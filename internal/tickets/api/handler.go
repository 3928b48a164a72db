package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/errs"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/tickets"
	"ms-booking/internal/utils"
)

type EventTitles interface {
	GetEvent(eventID string) (*models.Event, error)
}

type Handler struct {
	TicketService *tickets.Service
	Events        EventTitles
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.Service, events EventTitles, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: ticketService,
		Events:        events,
		Logger:        log,
	}
}

// Scan consumes a gate credential. One ticket admits exactly once.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}
	if req.QRCode == "" {
		utils.WriteError(w, errs.Validation("qr_code is required"))
		return
	}

	result, err := h.TicketService.Scan(req, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Scan: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Ticket admitted", result)
}

func (h *Handler) GetTicketPDF(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	identity := auth.IdentityFrom(r.Context())

	eventTitle := ""
	if ticket, err := h.TicketService.DB.GetTicketByID(ticketID); err == nil {
		if event, err := h.Events.GetEvent(ticket.EventID); err == nil {
			eventTitle = event.Title
		}
	}

	pdfBytes, err := h.TicketService.RenderPDF(ticketID, eventTitle, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicketPDF: %v", err))
		utils.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ticket-%s.pdf", ticketID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}

func (h *Handler) ListTicketsByBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	list, err := h.TicketService.TicketsByBooking(bookingID, identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Tickets found", list)
}

func (h *Handler) ListTicketsByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	identity := auth.IdentityFrom(r.Context())

	list, err := h.TicketService.TicketsByUser(userID, identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Tickets found", list)
}

func (h *Handler) GetScanHistory(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	identity := auth.IdentityFrom(r.Context())

	records, err := h.TicketService.ScanHistory(ticketID, identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Scan history found", records)
}
