package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/stripe/stripe-go/v82/webhook"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

// Payment statuses that make a completed session settleable.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// CheckoutSession is a minimal representation of a Stripe checkout.session event.
type CheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	PaymentStatus   string `json:"payment_status"`
	AmountTotal     int64  `json:"amount_total"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// Settleable reports whether the buyer has actually paid.
func (s *CheckoutSession) Settleable() bool {
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentRequired
}

// Event is a verified webhook event. Session is set only for
// checkout.session.completed.
type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

// VerifyEvent checks the Stripe-Signature header against secret and decodes
// the event. Signature problems wrap common.ErrSignatureInvalid. An empty
// secret verifies nothing and yields common.ErrWebhookNotConfigured.
func VerifyEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, common.ErrWebhookNotConfigured
	}
	if strings.TrimSpace(sigHeader) == "" {
		return nil, fmt.Errorf("%w: missing Stripe signature", common.ErrSignatureInvalid)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSignatureInvalid, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type == EventCheckoutSessionCompleted {
		if ev.Data == nil {
			return nil, fmt.Errorf("%w: event has no data", common.ErrValidation)
		}
		var s CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		out.Session = &s
	}
	return out, nil
}
