// Package processor defines the outbound port to the external payment
// processor. The engine only ever talks to this interface; the Stripe
// adapter is one implementation of it.
package processor

import (
	"context"
	"errors"
)

var (
	// ErrAccountNotFound is returned when the processor has no record of
	// the requested connected account. Absence of a remote account is a
	// reportable state, not a transport failure.
	ErrAccountNotFound = errors.New("connected account not found at processor")

	// ErrSessionNotFound is returned when a checkout session id is unknown
	// to the processor.
	ErrSessionNotFound = errors.New("checkout session not found at processor")
)

// SessionPaymentStatus is the processor's view of a checkout session.
type SessionPaymentStatus string

const (
	SessionPaid   SessionPaymentStatus = "paid"
	SessionUnpaid SessionPaymentStatus = "unpaid"
)

// PaymentState is the processor's view of an underlying payment record.
type PaymentState string

const (
	PaymentSucceeded             PaymentState = "succeeded"
	PaymentProcessing            PaymentState = "processing"
	PaymentCanceled              PaymentState = "canceled"
	PaymentRequiresPaymentMethod PaymentState = "requires_payment_method"
)

// OwnerMetadata describes the instructor an account is created for.
type OwnerMetadata struct {
	InstructorID string
	Email        string
	Country      string
	Currency     string
}

// AccountStatus reports a connected account's onboarding capabilities.
type AccountStatus struct {
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
	Requirements     []string
}

// SessionParams describes a checkout session to open.
type SessionParams struct {
	Amount      int64
	Currency    string
	ProductName string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// Session is a checkout session as reported by the processor.
type Session struct {
	ID            string
	URL           string
	PaymentStatus SessionPaymentStatus
	PaymentRef    string
	Metadata      map[string]string
}

// PaymentRecord is a payment correlated to a domain entity via metadata.
type PaymentRecord struct {
	Reference string
	State     PaymentState
	Amount    int64
	Currency  string
	Metadata  map[string]string
}

// Refund is the result of a refund request.
type Refund struct {
	ID     string
	Status string
}

// TransferParams describes a split-payment transfer to a connected account.
type TransferParams struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	Description        string
}

// Transfer is the result of a transfer request.
type Transfer struct {
	ID string
}

// Processor is the abstracted payment-processor capability consumed by the
// booking, payouts and reconciliation contexts.
type Processor interface {
	CreateConnectedAccount(ctx context.Context, owner OwnerMetadata) (string, error)

	// FindAccountByMetadata returns the id of an existing account carrying
	// the given metadata pair, or ErrAccountNotFound. Used to re-check the
	// remote side before issuing a second create after a lost persist.
	FindAccountByMetadata(ctx context.Context, key, value string) (string, error)

	CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
	GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error)

	CreateCheckoutSession(ctx context.Context, params SessionParams) (Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (Session, error)

	// SearchPaymentByMetadata returns the payment record correlated to the
	// given metadata pair, or nil when the processor has none.
	SearchPaymentByMetadata(ctx context.Context, key, value string) (*PaymentRecord, error)

	IssueRefund(ctx context.Context, paymentRef string, amount int64) (Refund, error)
	CreateTransfer(ctx context.Context, params TransferParams) (Transfer, error)
}
