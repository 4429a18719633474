// Package payment adapts the external payment processor: it initializes
// payment intents and verifies their outcome after the customer returns from
// the processor's redirect flow.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the processor-side state of a payment attempt.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// Local validation sentinels, raised before any network call.
var (
	ErrInvalidAmount = errors.New("payment amount must be a positive amount")
	ErrMissingEmail  = errors.New("payer email is required")
	ErrMissingRef    = errors.New("payment reference is required")
)

// VerificationError is fatal for the current payment attempt: the order is
// marked failed and the customer must re-attempt payment. The cart is
// preserved.
type VerificationError struct {
	Reference string
	Reason    string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment %s could not be verified: %s", e.Reference, e.Reason)
}

// InitializeRequest is the input for creating a payment intent.
type InitializeRequest struct {
	OrderID string
	Amount  decimal.Decimal
	Email   string
}

// Validate performs the local checks that must pass before the processor is
// contacted.
func (r InitializeRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.Email == "" {
		return ErrMissingEmail
	}
	return nil
}

// Intent is the processor's response to a successful initialization. Its
// status is provisional: only Verify decides whether funds were captured.
type Intent struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// VerifyResult is the processor's authoritative answer for a reference.
type VerifyResult struct {
	Status  TransactionStatus
	OrderID string
	Amount  decimal.Decimal
}

// Gateway initializes payment intents and verifies their outcome. Neither
// call is ever auto-retried: blind retry of a payment-initiating call risks
// a duplicate charge, so retry is a deliberate user action.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*Intent, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}
