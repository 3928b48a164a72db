package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/errs"
	"ms-booking/internal/inventory"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/utils"
)

type Handler struct {
	BookingService *booking.Service
	Ledger         inventory.Ledger
	Pricing        *pricing.Engine
	Logger         *logger.Logger
}

func NewHandler(bookingService *booking.Service, ledger inventory.Ledger, engine *pricing.Engine, log *logger.Logger) *Handler {
	return &Handler{
		BookingService: bookingService,
		Ledger:         ledger,
		Pricing:        engine,
		Logger:         log,
	}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}

	result, err := h.BookingService.Create(req, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "Booking created", result)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	result, err := h.BookingService.Get(bookingID, identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Booking found", result)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingId=%s", bookingID))

	result, err := h.BookingService.Cancel(bookingID, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelBooking: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Booking cancelled", result)
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}
	if req.PaymentID == "" {
		utils.WriteError(w, errs.Validation("payment_id is required"))
		return
	}

	result, err := h.BookingService.Confirm(bookingID, req.PaymentID, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmBooking: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Booking confirmed", result)
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	var req models.CouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}
	if req.Code == "" {
		utils.WriteError(w, errs.Validation("coupon code cannot be empty"))
		return
	}

	result, err := h.BookingService.ApplyCoupon(bookingID, req.Code, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ApplyCoupon: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Coupon applied", result)
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	intent, err := h.BookingService.CreatePaymentIntent(bookingID, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Payment intent created", intent)
}

func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	identity := auth.IdentityFrom(r.Context())

	var req models.AdminBookingUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}

	result, err := h.BookingService.AdminUpdate(bookingID, req, identity)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateBooking: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Booking updated", result)
}

func (h *Handler) ListBookingsByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	identity := auth.IdentityFrom(r.Context())

	page, err := h.BookingService.ListByUser(userID, bookingFilterFrom(r), identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Bookings found", page)
}

func (h *Handler) ListBookingsByAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	identity := auth.IdentityFrom(r.Context())

	page, err := h.BookingService.ListByAgent(agentID, bookingFilterFrom(r), identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Bookings found", page)
}

func bookingFilterFrom(r *http.Request) models.BookingFilter {
	query := r.URL.Query()
	filter := models.BookingFilter{Status: query.Get("status")}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	return filter
}

func (h *Handler) ListBookingsByEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	identity := auth.IdentityFrom(r.Context())

	bookings, err := h.BookingService.ListByEvent(eventID, identity)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Bookings found", bookings)
}

// CheckAvailability is the read-only pre-checkout probe.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var req struct {
		Lines []models.LineRequest `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}

	results, err := h.Ledger.CheckAvailability(eventID, req.Lines)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Availability checked", results)
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	tiers, err := h.Ledger.TiersByEvent(eventID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Tiers found", tiers)
}

// Coupon administration

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsAdmin() {
		utils.WriteError(w, errs.Forbidden("only admins may create coupons"))
		return
	}

	var coupon models.Coupon
	if err := json.NewDecoder(r.Body).Decode(&coupon); err != nil {
		utils.WriteError(w, errs.Validation("invalid request body"))
		return
	}

	if err := h.Pricing.CreateCoupon(coupon); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateCoupon: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "Coupon created", nil)
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsAdmin() {
		utils.WriteError(w, errs.Forbidden("only admins may list coupons"))
		return
	}

	coupons, err := h.Pricing.ListCoupons()
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Coupons found", coupons)
}

func (h *Handler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	if !identity.IsAdmin() {
		utils.WriteError(w, errs.Forbidden("only admins may deactivate coupons"))
		return
	}

	couponID := chi.URLParam(r, "couponId")
	if err := h.Pricing.DeactivateCoupon(couponID); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Coupon deactivated", nil)
}
