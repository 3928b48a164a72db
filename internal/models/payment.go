package models

// PaymentIntent is the gateway-neutral view of a created payment, returned to
// clients so they can complete the charge.
type PaymentIntent struct {
	IntentID     string  `json:"intent_id"`
	ClientSecret string  `json:"client_secret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}

type ConfirmRequest struct {
	PaymentID string `json:"payment_id"`
}
