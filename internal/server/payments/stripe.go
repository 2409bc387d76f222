// Package payments talks to Stripe: it opens hosted checkout sessions and
// verifies the signed webhook callbacks that report their completion.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// LineItem is an inline-priced checkout line. Recurring items bill monthly.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
	Recurring       bool
}

type SessionRequest struct {
	Mode          Mode
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	LineItems     []LineItem
	Metadata      map[string]string
}

type Session struct {
	ID  string
	URL string
}

// Client creates Stripe checkout sessions.
type Client struct {
	secretKey             string
	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewClient(secretKey string) *Client {
	return &Client{
		secretKey:             strings.TrimSpace(secretKey),
		createCheckoutSession: stripesession.New,
	}
}

var errNotConfigured = errors.New("stripe api key not configured")

// CreateCheckoutSession opens a hosted checkout session. Every failure,
// including a missing API key, wraps common.ErrProcessorUnavailable.
func (c *Client) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.secretKey == "" {
		return nil, fmt.Errorf("%w: %v", common.ErrProcessorUnavailable, errNotConfigured)
	}
	if len(req.LineItems) == 0 {
		return nil, fmt.Errorf("%w: no line items", common.ErrValidation)
	}

	stripe.Key = c.secretKey

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(req.Mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, lineItemParams(req.Currency, li))
	}

	s, err := c.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrProcessorUnavailable, err)
	}
	if s == nil || strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("%w: stripe returned empty checkout URL", common.ErrProcessorUnavailable)
	}
	return &Session{ID: s.ID, URL: strings.TrimSpace(s.URL)}, nil
}

func lineItemParams(currency string, li LineItem) *stripe.CheckoutSessionLineItemParams {
	qty := li.Quantity
	if qty <= 0 {
		qty = 1
	}
	pd := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(currency),
		UnitAmount: stripe.Int64(li.UnitAmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		},
	}
	if li.Recurring {
		pd.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: pd,
		Quantity:  stripe.Int64(qty),
	}
}
