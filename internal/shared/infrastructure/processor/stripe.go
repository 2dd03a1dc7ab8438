package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	APIKey string
	// CallTimeout bounds every outbound call. A timed-out refund or
	// transfer is an unknown outcome, not a failure; callers must not
	// blindly retry.
	CallTimeout time.Duration
}

// DefaultStripeConfig returns sensible defaults.
func DefaultStripeConfig(apiKey string) StripeConfig {
	return StripeConfig{
		APIKey:      apiKey,
		CallTimeout: 10 * time.Second,
	}
}

// StripeProcessor implements Processor using Stripe Connect.
type StripeProcessor struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProcessor creates a Stripe-backed processor.
func NewStripeProcessor(cfg StripeConfig) *StripeProcessor {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &StripeProcessor{api: api, config: cfg}
}

func (p *StripeProcessor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.config.CallTimeout)
}

// CreateConnectedAccount creates an Express account for an instructor.
func (p *StripeProcessor) CreateConnectedAccount(ctx context.Context, owner OwnerMetadata) (string, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(owner.Country),
		Email:   stripe.String(owner.Email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if owner.Currency != "" {
		params.DefaultCurrency = stripe.String(owner.Currency)
	}
	params.Context = callCtx
	params.AddMetadata("instructor_id", owner.InstructorID)

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("create connected account: %w", err)
	}
	return acct.ID, nil
}

// FindAccountByMetadata scans connected accounts for a matching metadata pair.
// Stripe has no account search API, so this pages through the account list.
func (p *StripeProcessor) FindAccountByMetadata(ctx context.Context, key, value string) (string, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.AccountListParams{}
	params.Context = callCtx
	params.Limit = stripe.Int64(100)

	iter := p.api.Accounts.List(params)
	for iter.Next() {
		acct := iter.Account()
		if acct.Metadata[key] == value {
			return acct.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list connected accounts: %w", err)
	}
	return "", ErrAccountNotFound
}

// CreateAccountLink creates an onboarding link for a connected account.
func (p *StripeProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = callCtx

	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("create account link: %w", err)
	}
	return link.URL, nil
}

// GetAccountStatus reads a connected account's onboarding capabilities.
func (p *StripeProcessor) GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.AccountParams{}
	params.Context = callCtx

	acct, err := p.api.Accounts.GetByID(accountID, params)
	if err != nil {
		if isResourceMissing(err) {
			return AccountStatus{}, ErrAccountNotFound
		}
		return AccountStatus{}, fmt.Errorf("get account status: %w", err)
	}

	status := AccountStatus{
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	if acct.Requirements != nil {
		status.Requirements = acct.Requirements.CurrentlyDue
	}
	return status, nil
}

// CreateCheckoutSession opens a hosted checkout session. The domain
// correlation reference travels in both the session metadata and the
// payment-intent metadata so that reconciliation can search for it even
// when the session id was never persisted locally.
func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, sp SessionParams) (Session, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(sp.SuccessURL),
		CancelURL:  stripe.String(sp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(sp.Currency),
					UnitAmount: stripe.Int64(sp.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(sp.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{},
	}
	params.Context = callCtx
	for k, v := range sp.Metadata {
		params.AddMetadata(k, v)
		params.PaymentIntentData.AddMetadata(k, v)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	return sessionFromStripe(sess), nil
}

// RetrieveSession fetches a checkout session by id.
func (p *StripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = callCtx
	params.AddExpand("payment_intent")

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		if isResourceMissing(err) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return sessionFromStripe(sess), nil
}

// SearchPaymentByMetadata looks up a payment intent carrying the given
// metadata pair. Returns nil when the processor has no matching record.
func (p *StripeProcessor) SearchPaymentByMetadata(ctx context.Context, key, value string) (*PaymentRecord, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", key, value),
			Context: callCtx,
		},
	}

	iter := p.api.PaymentIntents.Search(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		return &PaymentRecord{
			Reference: pi.ID,
			State:     paymentStateFromStripe(pi.Status),
			Amount:    pi.Amount,
			Currency:  string(pi.Currency),
			Metadata:  pi.Metadata,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search payment by metadata: %w", err)
	}
	return nil, nil
}

// IssueRefund refunds a payment in full when amount is zero, otherwise the
// given amount in minor units.
func (p *StripeProcessor) IssueRefund(ctx context.Context, paymentRef string, amount int64) (Refund, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = callCtx

	ref, err := p.api.Refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("issue refund: %w", err)
	}
	return Refund{ID: ref.ID, Status: string(ref.Status)}, nil
}

// CreateTransfer moves the instructor's share to their connected account.
func (p *StripeProcessor) CreateTransfer(ctx context.Context, tp TransferParams) (Transfer, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(tp.Amount),
		Currency:    stripe.String(tp.Currency),
		Destination: stripe.String(tp.DestinationAccount),
		Description: stripe.String(tp.Description),
	}
	params.Context = callCtx

	tr, err := p.api.Transfers.New(params)
	if err != nil {
		return Transfer{}, fmt.Errorf("create transfer: %w", err)
	}
	return Transfer{ID: tr.ID}, nil
}

func sessionFromStripe(sess *stripe.CheckoutSession) Session {
	out := Session{
		ID:       sess.ID,
		URL:      sess.URL,
		Metadata: sess.Metadata,
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		out.PaymentStatus = SessionPaid
	} else {
		out.PaymentStatus = SessionUnpaid
	}
	if sess.PaymentIntent != nil {
		out.PaymentRef = sess.PaymentIntent.ID
	}
	return out
}

func paymentStateFromStripe(status stripe.PaymentIntentStatus) PaymentState {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return PaymentCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return PaymentRequiresPaymentMethod
	default:
		return PaymentProcessing
	}
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
