package booking

import (
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// amountInCents converts a major-unit amount to Stripe's minor units.
// Truncation would turn 19.99 into 1998 cents.
func amountInCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// StripeGateway implements PaymentGateway against the Stripe API.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		log.Error("STRIPE", "Stripe secret key not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, log: log}, nil
}

// CreateIntent opens a payment intent for the booking's final amount. The
// booking ID rides along as metadata so webhooks can be correlated.
func (g *StripeGateway) CreateIntent(bookingID string, amount float64, currency string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents(amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", bookingID)

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", bookingID, err))
		return nil, err
	}

	g.log.Info("STRIPE", fmt.Sprintf("Created payment intent %s for booking %s", intent.ID, bookingID))
	return &models.PaymentIntent{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       amount,
		Currency:     currency,
		Status:       string(intent.Status),
	}, nil
}

// Refund returns the full charged amount for a cancelled confirmed booking.
func (g *StripeGateway) Refund(paymentID string, amount float64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
		Amount:        stripe.Int64(amountInCents(amount)),
	}

	refund, err := g.client.Refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund failed for payment %s: %v", paymentID, err))
		return err
	}

	g.log.Info("STRIPE", fmt.Sprintf("Refund %s issued for payment %s", refund.ID, paymentID))
	return nil
}
