package models

import "time"

// PaymentStatus is the state of a single provider payment attempt.
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentVerified PaymentStatus = "verified"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentAttempt links one provider order to a booking.
type PaymentAttempt struct {
	ID                string        `json:"paymentAttemptId"`
	BookingID         string        `json:"bookingId"`
	ProviderOrderID   string        `json:"providerOrderId"`
	ProviderPaymentID string        `json:"providerPaymentId,omitempty"`
	ProviderSignature string        `json:"-"`
	Status            PaymentStatus `json:"status"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	FailureReason     string        `json:"failureReason,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	VerifiedAt        *time.Time    `json:"verifiedAt,omitempty"`
}

// Prefill is customer data handed to the provider's checkout widget.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// ProviderOrder is the handle the client needs to complete checkout.
type ProviderOrder struct {
	BookingID        string  `json:"bookingId"`
	PaymentAttemptID string  `json:"paymentAttemptId"`
	ProviderOrderID  string  `json:"providerOrderId"`
	Amount           int64   `json:"amount"`
	Currency         string  `json:"currency"`
	KeyID            string  `json:"keyId,omitempty"`
	Prefill          Prefill `json:"prefill"`
}
