package payment

import "context"

// PaymentRequest describes an order to open at a hosted gateway.
type PaymentRequest struct {
	// HashID is the merchant-side order reference.
	HashID      string
	AmountRials int64
	CallbackURL string
}

// PaymentResult contains the result of a payment creation.
type PaymentResult struct {
	Authority  string `json:"authority"`
	PaymentURL string `json:"payment_url"`
}

// VerifyResult contains the result of a payment verification.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Status   int    `json:"status"`
	RefID    string `json:"ref_id,omitempty"`
}

// Gateway defines the interface for hosted payment gateway implementations.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// CreatePayment opens an order and returns its authority token.
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)

	// VerifyPayment asks the gateway whether the order was paid.
	// A definitive "not paid" answer is Verified=false with a nil error.
	VerifyPayment(ctx context.Context, authority string) (*VerifyResult, error)

	// PaymentLink returns the URL the payer opens for an authority.
	PaymentLink(authority string) string
}
