package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
)

const maxWebhookBodyBytes = int64(65536)

// WebhookHandler receives Stripe events. Only payment_intent.succeeded is
// acted on; everything else is acknowledged and dropped.
type WebhookHandler struct {
	BookingService *booking.Service
	SigningSecret  string
	Logger         *logger.Logger
}

func NewWebhookHandler(bookingService *booking.Service, signingSecret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		BookingService: bookingService,
		SigningSecret:  signingSecret,
		Logger:         log,
	}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.SigningSecret)
	if err != nil {
		h.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Signature verification failed: %v", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to parse payment intent: %v", err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		h.Logger.Info("WEBHOOK", fmt.Sprintf("Payment intent succeeded: %s", intent.ID))
		if err := h.BookingService.HandlePaymentSucceeded(intent.ID); err != nil {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to confirm booking for intent %s: %v", intent.ID, err))
			// 500 makes Stripe retry the delivery
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err == nil {
			h.Logger.Warn("WEBHOOK", fmt.Sprintf("Payment intent failed: %s", intent.ID))
		}

	default:
		h.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type: %s", event.Type))
	}

	w.WriteHeader(http.StatusOK)
}
