package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const posterKey = "artifacts/2024/05/01/0b7c.png"

func TestPrice(t *testing.T) {
	e := newTestEnv(t)

	t.Run("single poster with promo", func(t *testing.T) {
		b, err := e.checkout.Price(PriceRequest{Format: "a2", Quality: "Premium", PromoCode: " neoma25 "})
		require.NoError(t, err)
		assert.Equal(t, int64(7000), b.SubtotalCents)
		assert.Equal(t, "NEOMA25", b.PromoCode)
		assert.Equal(t, 25, b.PercentOff)
		assert.Equal(t, int64(5250), b.DiscountedCents)
		assert.Equal(t, int64(499), b.ShippingCents)
		assert.Equal(t, int64(5749), b.TotalCents)
		assert.Equal(t, 1, b.ItemCount)
		assert.Equal(t, e.registry.Current().Version, b.PricingVersion)
	})

	t.Run("cart charges shipping once", func(t *testing.T) {
		b, err := e.checkout.Price(PriceRequest{Items: []CheckoutItem{
			{Format: "A4", Quality: "standard", Quantity: 2},
			{Format: "A3", Quality: "superior", Quantity: 1},
		}})
		require.NoError(t, err)
		assert.Equal(t, int64(2*2500+4000), b.SubtotalCents)
		assert.Equal(t, int64(2*2500+4000+499), b.TotalCents)
		assert.Equal(t, 3, b.ItemCount)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := e.checkout.Price(PriceRequest{Format: "A2", Quality: "premium", PromoCode: "BOGUS"})
		assert.ErrorIs(t, err, common.ErrValidation)
		_, err = e.checkout.Price(PriceRequest{Format: "B5", Quality: "premium"})
		assert.ErrorIs(t, err, common.ErrValidation)
		_, err = e.checkout.Price(PriceRequest{Items: []CheckoutItem{{Format: "A4", Quality: "standard", Quantity: 0}}})
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestCreateSession_PosterWithPromo(t *testing.T) {
	e := newTestEnv(t)

	sess, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A2", Quality: "premium", PromoCode: "NEOMA25"},
		Principal:    models.Principal{VisitorID: "abc123"},
		PurchaseType: models.PurchasePoster,
		PosterRef:    posterKey,
		Email:        "Buyer@Example.com",
	})
	require.NoError(t, err)
	assert.False(t, sess.Included)
	assert.Equal(t, int64(5749), sess.AmountCents)
	assert.Equal(t, "cs_test_1", sess.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", sess.RedirectURL)

	req := e.processor.last()
	assert.Equal(t, payments.ModePayment, req.Mode)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	assert.Equal(t, "https://neoma.test/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://neoma.test/checkout/cancel", req.CancelURL)
	require.Len(t, req.LineItems, 2)
	assert.Equal(t, int64(5250), req.LineItems[0].UnitAmountCents)
	assert.Equal(t, int64(499), req.LineItems[1].UnitAmountCents)

	var total int64
	for _, li := range req.LineItems {
		total += li.UnitAmountCents * li.Quantity
	}
	assert.Equal(t, sess.AmountCents, total)

	assert.Equal(t, map[string]string{
		MetaPurchaseType:   "poster",
		MetaPayerType:      "visitor",
		MetaPayerRef:       "abc123",
		MetaPricingVersion: e.registry.Current().Version,
		MetaItemCount:      "1",
		MetaPromoCode:      "NEOMA25",
		MetaPosterRef:      posterKey,
		MetaFormat:         "A2",
		MetaQuality:        "premium",
	}, req.Metadata)
}

func TestCreateSession_PosterWithoutPromo(t *testing.T) {
	e := newTestEnv(t)

	sess, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A2", Quality: "premium"},
		Principal:    models.Principal{UserID: "u1"},
		PurchaseType: models.PurchasePoster,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7499), sess.AmountCents)
	assert.Equal(t, "user", e.processor.last().Metadata[MetaPayerType])
	assert.Equal(t, "u1", e.processor.last().Metadata[MetaPayerRef])
}

func TestCreateSession_Cart(t *testing.T) {
	e := newTestEnv(t)

	sess, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Items: []CheckoutItem{
			{Format: "A4", Quality: "standard", Quantity: 2},
			{Format: "A1", Quality: "premium", Quantity: 1},
		}, PromoCode: "WELCOME10"},
		Principal:    models.Principal{UserID: "u1"},
		PurchaseType: models.PurchaseCart,
	})
	require.NoError(t, err)

	subtotal := int64(2*2500 + 8500)
	discounted := (subtotal*90 + 50) / 100
	assert.Equal(t, discounted+499, sess.AmountCents)

	req := e.processor.last()
	assert.Equal(t, "Neoma posters (3)", req.LineItems[0].Name)
	assert.Equal(t, "3", req.Metadata[MetaItemCount])
	assert.NotContains(t, req.Metadata, MetaFormat)
}

func TestCreateSession_AnonymousPlanStashesSignup(t *testing.T) {
	e := newTestEnv(t)
	e.checkout.newSignupID = func() (string, error) { return "signup_01h455vb4pex5vsknk084sn02q", nil }

	sess, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A3", Quality: "superior"},
		Principal:    models.Principal{VisitorID: "abc123"},
		PurchaseType: models.PurchasePlan,
		Email:        "New@Example.com",
		Password:     "password1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4499), sess.AmountCents)

	req := e.processor.last()
	assert.Equal(t, payments.ModeSubscription, req.Mode)
	require.Len(t, req.LineItems, 1)
	assert.True(t, req.LineItems[0].Recurring)
	assert.Equal(t, int64(4499), req.LineItems[0].UnitAmountCents)
	assert.Equal(t, "new@example.com", req.CustomerEmail)
	assert.Equal(t, "signup_01h455vb4pex5vsknk084sn02q", req.Metadata[MetaSignupID])
	assert.Equal(t, "A3", req.Metadata[MetaPlanFormat])
	assert.Equal(t, "superior", req.Metadata[MetaPlanQuality])

	for _, v := range req.Metadata {
		assert.NotContains(t, v, "password1")
	}

	p := e.store.pending["signup_01h455vb4pex5vsknk084sn02q"]
	require.NotNil(t, p)
	assert.Equal(t, "new@example.com", p.Email)
	assert.Equal(t, "abc123", p.VisitorID)
	assert.NotContains(t, string(p.PasswordCiphertext), "password1")

	var sealed sealedSignup
	require.NoError(t, cryptox.DecryptEntry(p.PasswordCiphertext, p.Nonce, e.signupKey, &sealed))
	assert.Equal(t, "password1", sealed.Password)
}

func TestCreateSession_DefaultSignupIDIsTyped(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A3", Quality: "superior"},
		Principal:    models.Principal{VisitorID: "v"},
		PurchaseType: models.PurchasePlan,
		Email:        "a@example.com",
		Password:     "password1",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(e.processor.last().Metadata[MetaSignupID], "signup_"))
}

func TestCreateSession_AnonymousPlanErrors(t *testing.T) {
	ctx := context.Background()
	intent := func(email, password string) CheckoutIntent {
		return CheckoutIntent{
			PriceRequest: PriceRequest{Format: "A3", Quality: "superior"},
			Principal:    models.Principal{VisitorID: "v"},
			PurchaseType: models.PurchasePlan,
			Email:        email,
			Password:     password,
		}
	}

	t.Run("missing credentials", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.checkout.CreateSession(ctx, intent("", ""))
		assert.ErrorIs(t, err, common.ErrMissingCredentials)
		assert.Empty(t, e.processor.reqs)
	})

	t.Run("email already registered", func(t *testing.T) {
		e := newTestEnv(t)
		e.store.users["u1"] = &models.User{ID: "u1", Email: "taken@example.com"}
		_, err := e.checkout.CreateSession(ctx, intent("taken@example.com", "password1"))
		assert.ErrorIs(t, err, common.ErrAlreadyExists)
		assert.Empty(t, e.store.pending)
	})

	t.Run("processor failure drops pending signup", func(t *testing.T) {
		e := newTestEnv(t)
		e.processor.err = errBoom
		_, err := e.checkout.CreateSession(ctx, intent("a@example.com", "password1"))
		assert.ErrorIs(t, err, common.ErrProcessorUnavailable)
		assert.Empty(t, e.store.pending)
	})

	t.Run("pending store failure", func(t *testing.T) {
		e := newTestEnv(t)
		e.store.fail("pending.Create", errBoom)
		_, err := e.checkout.CreateSession(ctx, intent("a@example.com", "password1"))
		assert.ErrorIs(t, err, errBoom)
		assert.Empty(t, e.processor.reqs)
	})
}

func TestCreateSession_AuthenticatedPlanHasNoSignup(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A3", Quality: "superior"},
		Principal:    models.Principal{UserID: "u1", VisitorID: "v"},
		PurchaseType: models.PurchasePlan,
	})
	require.NoError(t, err)
	assert.NotContains(t, e.processor.last().Metadata, MetaSignupID)
	assert.Empty(t, e.store.pending)
}

func TestCreateSession_IncludedPoster(t *testing.T) {
	ctx := context.Background()
	subscriber := func(e *testEnv) {
		e.store.entitlements["u1"] = &models.Entitlement{
			UserID: "u1", IsPaid: true, AttemptsRemaining: 50,
			SubscriptionFormat: "A3", SubscriptionQuality: "superior",
			IncludedPosterAvailable: true, CustomerRef: "cus_1",
		}
	}
	intent := CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A3", Quality: "superior"},
		Principal:    models.Principal{UserID: "u1"},
		PurchaseType: models.PurchasePoster,
		PosterRef:    posterKey,
	}

	t.Run("redeemed once", func(t *testing.T) {
		e := newTestEnv(t)
		subscriber(e)

		sess, err := e.checkout.CreateSession(ctx, intent)
		require.NoError(t, err)
		assert.True(t, sess.Included)
		assert.Zero(t, sess.AmountCents)
		assert.Empty(t, e.processor.reqs)

		ent := e.store.entitlements["u1"]
		assert.False(t, ent.IncludedPosterAvailable)
		assert.Equal(t, posterKey, ent.IncludedPosterRef)
		require.Len(t, e.store.orders, 1)
		assert.Equal(t, int64(0), e.store.orders[0].AmountCents)
		assert.Equal(t, "cus_1", e.store.orders[0].CustomerRef)

		sess, err = e.checkout.CreateSession(ctx, intent)
		require.NoError(t, err)
		assert.False(t, sess.Included)
		assert.Equal(t, int64(4499), sess.AmountCents)
	})

	t.Run("different format pays", func(t *testing.T) {
		e := newTestEnv(t)
		subscriber(e)
		in := intent
		in.Format = "A2"

		sess, err := e.checkout.CreateSession(ctx, in)
		require.NoError(t, err)
		assert.False(t, sess.Included)
		assert.True(t, e.store.entitlements["u1"].IncludedPosterAvailable)
	})

	t.Run("no poster ref pays", func(t *testing.T) {
		e := newTestEnv(t)
		subscriber(e)
		in := intent
		in.PosterRef = ""

		sess, err := e.checkout.CreateSession(ctx, in)
		require.NoError(t, err)
		assert.False(t, sess.Included)
	})

	t.Run("entitlement read failure", func(t *testing.T) {
		e := newTestEnv(t)
		subscriber(e)
		e.store.fail("entitlements.Get", errBoom)

		_, err := e.checkout.CreateSession(ctx, intent)
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestCreateSession_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CheckoutIntent
	}{
		{"no principal", CheckoutIntent{PriceRequest: PriceRequest{Format: "A4", Quality: "standard"}, PurchaseType: models.PurchasePoster}},
		{"unknown type", CheckoutIntent{PriceRequest: PriceRequest{Format: "A4", Quality: "standard"}, Principal: models.Principal{VisitorID: "v"}, PurchaseType: "gift"}},
		{"empty cart", CheckoutIntent{Principal: models.Principal{VisitorID: "v"}, PurchaseType: models.PurchaseCart}},
		{"poster quantity", CheckoutIntent{
			PriceRequest: PriceRequest{Items: []CheckoutItem{{Format: "A4", Quality: "standard", Quantity: 2}}},
			Principal:    models.Principal{VisitorID: "v"}, PurchaseType: models.PurchasePoster,
		}},
		{"data uri poster", CheckoutIntent{
			PriceRequest: PriceRequest{Format: "A4", Quality: "standard"},
			Principal:    models.Principal{VisitorID: "v"}, PurchaseType: models.PurchasePoster,
			PosterRef: "data:image/png;base64,iVBORw0KGgo=",
		}},
		{"unknown quality", CheckoutIntent{
			PriceRequest: PriceRequest{Format: "A4", Quality: "gold"},
			Principal:    models.Principal{VisitorID: "v"}, PurchaseType: models.PurchasePoster,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.checkout.CreateSession(ctx, tt.in)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Empty(t, e.processor.reqs)
}

func TestCreateSession_ProcessorFailure(t *testing.T) {
	e := newTestEnv(t)
	e.processor.err = fmt.Errorf("%w: stripe down", common.ErrProcessorUnavailable)

	_, err := e.checkout.CreateSession(context.Background(), CheckoutIntent{
		PriceRequest: PriceRequest{Format: "A4", Quality: "standard"},
		Principal:    models.Principal{VisitorID: "v"},
		PurchaseType: models.PurchasePoster,
	})
	assert.ErrorIs(t, err, common.ErrProcessorUnavailable)
}

func TestOrders(t *testing.T) {
	e := newTestEnv(t)
	e.store.orders = []*models.Order{
		{ID: "o1", PayerUserID: "u1", AmountCents: 7499},
		{ID: "o2", PayerUserID: "u2", AmountCents: 100},
	}

	got, err := e.checkout.Orders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o1", got[0].ID)

	_, err = e.checkout.Orders(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrValidation)
}
