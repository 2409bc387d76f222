package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/pricing"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/neoma/internal/server/storage"
	"go.jetify.com/typeid/v2"
)

// Metadata keys carried on the processor session and read back at settlement.
const (
	MetaPurchaseType   = "purchase_type"
	MetaPayerType      = "payer_type"
	MetaPayerRef       = "payer_ref"
	MetaPlanFormat     = "plan_format"
	MetaPlanQuality    = "plan_quality"
	MetaFormat         = "format"
	MetaQuality        = "quality"
	MetaSignupID       = "signup_id"
	MetaPosterRef      = "poster_ref"
	MetaPromoCode      = "promo_code"
	MetaPricingVersion = "pricing_version"
	MetaItemCount      = "item_count"
)

const signupIDPrefix = "signup"

// sealedSignup is the plaintext sealed into PendingSignup.PasswordCiphertext.
type sealedSignup struct {
	Password string `json:"password"`
}

type CheckoutItem struct {
	Format   string
	Quality  string
	Quantity int
}

// PriceRequest describes what to price: either a single Format/Quality or
// a list of Items.
type PriceRequest struct {
	Format    string
	Quality   string
	Items     []CheckoutItem
	PromoCode string
}

type PriceBreakdown struct {
	PricingVersion  string
	SubtotalCents   int64 // shipping excluded
	PromoCode       string
	PercentOff      int
	DiscountedCents int64
	ShippingCents   int64
	TotalCents      int64
	ItemCount       int
}

// CheckoutIntent is a purchase request as received from the client. Any
// client-side price is deliberately absent.
type CheckoutIntent struct {
	PriceRequest
	Principal    models.Principal
	PurchaseType models.PurchaseType
	Email        string
	Password     string
	PosterRef    string
}

type CheckoutSession struct {
	SessionID      string
	RedirectURL    string
	Included       bool
	AmountCents    int64
	PricingVersion string
}

// CheckoutService prices orders and opens payment sessions for them.
type CheckoutService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	registry      *pricing.Registry
	processor     CheckoutProcessor
	signupKey     []byte
	publicBaseURL string
	logger        logging.Logger
	newSignupID   func() (string, error)
}

func NewCheckoutService(db *sql.DB, m repomanager.RepositoryManager, registry *pricing.Registry,
	processor CheckoutProcessor, signupKey []byte, publicBaseURL string, logger logging.Logger) *CheckoutService {
	return &CheckoutService{
		db:            db,
		repomanager:   m,
		registry:      registry,
		processor:     processor,
		signupKey:     signupKey,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
		newSignupID:   newSignupID,
	}
}

func newSignupID() (string, error) {
	tid, err := typeid.Generate(signupIDPrefix)
	if err != nil {
		return "", err
	}
	return tid.String(), nil
}

// Price quotes req against the current catalog.
func (s *CheckoutService) Price(req PriceRequest) (*PriceBreakdown, error) {
	q, err := s.quote(req)
	if err != nil {
		return nil, err
	}
	return breakdown(q), nil
}

func breakdown(q *pricing.Quote) *PriceBreakdown {
	return &PriceBreakdown{
		PricingVersion:  q.Version(),
		SubtotalCents:   q.SubtotalCents,
		PromoCode:       q.PromoCode,
		PercentOff:      q.PercentOff,
		DiscountedCents: q.DiscountedCents(),
		ShippingCents:   q.ShippingCents(),
		TotalCents:      q.TotalCents(),
		ItemCount:       q.ItemCount(),
	}
}

func (s *CheckoutService) quote(req PriceRequest) (*pricing.Quote, error) {
	var items []pricing.Item
	if len(req.Items) > 0 {
		for _, it := range req.Items {
			pi, err := parseItem(it.Format, it.Quality, it.Quantity)
			if err != nil {
				return nil, err
			}
			items = append(items, pi)
		}
	} else {
		pi, err := parseItem(req.Format, req.Quality, 1)
		if err != nil {
			return nil, err
		}
		items = append(items, pi)
	}

	q, err := s.registry.Current().NewQuote(items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PromoCode) != "" {
		if err := q.ApplyPromo(req.PromoCode); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
	}
	return q, nil
}

func parseItem(format, quality string, qty int) (pricing.Item, error) {
	f, err := pricing.ParseFormat(format)
	if err != nil {
		return pricing.Item{}, err
	}
	q, err := pricing.ParseQuality(quality)
	if err != nil {
		return pricing.Item{}, err
	}
	return pricing.Item{Format: f, Quality: q, Quantity: qty}, nil
}

func validateIntent(in *CheckoutIntent) error {
	if err := validatePrincipal(in.Principal); err != nil {
		return err
	}
	switch in.PurchaseType {
	case models.PurchasePoster, models.PurchasePlan:
		if len(in.Items) > 1 {
			return fmt.Errorf("%w: %s purchase takes a single item", common.ErrValidation, in.PurchaseType)
		}
		if len(in.Items) == 1 && in.Items[0].Quantity != 1 {
			return fmt.Errorf("%w: %s purchase takes quantity 1", common.ErrValidation, in.PurchaseType)
		}
	case models.PurchaseCart:
		if len(in.Items) == 0 {
			return fmt.Errorf("%w: cart is empty", common.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown purchase type %q", common.ErrValidation, in.PurchaseType)
	}
	if in.PosterRef != "" && !storage.IsArtifactKey(in.PosterRef) {
		return fmt.Errorf("%w: poster reference must be an artifact key", common.ErrValidation)
	}
	return nil
}

// CreateSession turns intent into a processor session, or redeems the
// buyer's included poster when that applies. The amount is always computed
// here from the pricing catalog.
func (s *CheckoutService) CreateSession(ctx context.Context, in CheckoutIntent) (*CheckoutSession, error) {
	sess, err := s.createSession(ctx, &in)
	outcome := "redirect"
	switch {
	case err != nil:
		outcome = "failed"
	case sess.Included:
		outcome = "included"
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(string(in.PurchaseType), outcome).Inc()
	return sess, err
}

func (s *CheckoutService) createSession(ctx context.Context, in *CheckoutIntent) (*CheckoutSession, error) {
	if err := validateIntent(in); err != nil {
		return nil, err
	}

	q, err := s.quote(in.PriceRequest)
	if err != nil {
		return nil, err
	}
	line := q.Lines[0]

	if in.PurchaseType == models.PurchasePoster && in.Principal.Authenticated() && in.PosterRef != "" {
		sess, ok, err := s.redeemIncluded(ctx, in, line.Item, q.Version())
		if err != nil {
			return nil, err
		}
		if ok {
			return sess, nil
		}
	}

	amount := q.TotalCents()
	if amount <= 0 {
		return nil, fmt.Errorf("%w: computed total %d", common.ErrInvalidAmount, amount)
	}

	meta := map[string]string{
		MetaPurchaseType:   string(in.PurchaseType),
		MetaPricingVersion: q.Version(),
		MetaItemCount:      strconv.Itoa(q.ItemCount()),
	}
	if in.Principal.Authenticated() {
		meta[MetaPayerType] = string(models.PayerUser)
		meta[MetaPayerRef] = in.Principal.UserID
	} else {
		meta[MetaPayerType] = string(models.PayerVisitor)
		meta[MetaPayerRef] = in.Principal.VisitorID
	}
	if q.PromoCode != "" {
		meta[MetaPromoCode] = q.PromoCode
	}
	if in.PosterRef != "" {
		meta[MetaPosterRef] = in.PosterRef
	}
	if in.PurchaseType != models.PurchaseCart {
		meta[MetaFormat] = string(line.Format)
		meta[MetaQuality] = string(line.Quality)
	}

	req := payments.SessionRequest{
		Currency:   common.Currency,
		SuccessURL: s.publicBaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.publicBaseURL + "/checkout/cancel",
		Metadata:   meta,
	}

	var signupID string
	if in.PurchaseType == models.PurchasePlan {
		meta[MetaPlanFormat] = string(line.Format)
		meta[MetaPlanQuality] = string(line.Quality)
		req.Mode = payments.ModeSubscription
		req.LineItems = []payments.LineItem{{
			Name:            fmt.Sprintf("Neoma plan %s %s", line.Format, line.Quality),
			UnitAmountCents: amount,
			Quantity:        1,
			Recurring:       true,
		}}

		if !in.Principal.Authenticated() {
			stash, err := s.stashSignup(ctx, in)
			if err != nil {
				return nil, err
			}
			signupID = stash.id
			meta[MetaSignupID] = stash.id
			req.CustomerEmail = stash.address
		}
	} else {
		req.Mode = payments.ModePayment
		req.LineItems = []payments.LineItem{
			{Name: fmt.Sprintf("Neoma posters (%d)", q.ItemCount()), UnitAmountCents: q.DiscountedCents(), Quantity: 1},
			{Name: "Shipping", UnitAmountCents: q.ShippingCents(), Quantity: 1},
		}
		if e := strings.ToLower(strings.TrimSpace(in.Email)); e != "" {
			req.CustomerEmail = e
		}
	}

	session, err := s.processor.CreateCheckoutSession(ctx, req)
	if err != nil {
		if signupID != "" {
			if delErr := s.repomanager.PendingSignups(s.db).Delete(context.WithoutCancel(ctx), signupID); delErr != nil {
				s.logger.Warn(ctx, "could not drop pending signup", "signup_id", signupID, "error", delErr)
			}
		}
		s.logger.Error(ctx, "checkout session creation failed", "purchase_type", in.PurchaseType, "error", err)
		if !errors.Is(err, common.ErrProcessorUnavailable) {
			err = fmt.Errorf("%w: %v", common.ErrProcessorUnavailable, err)
		}
		return nil, err
	}

	s.logger.Info(ctx, "checkout session created", "session_id", session.ID,
		"purchase_type", in.PurchaseType, "amount_cents", amount, "pricing_version", q.Version())
	return &CheckoutSession{
		SessionID:      session.ID,
		RedirectURL:    session.URL,
		AmountCents:    amount,
		PricingVersion: q.Version(),
	}, nil
}

// redeemIncluded hands out the plan's free poster when the requested poster
// matches the subscription. ok is false when the buyer must pay instead.
func (s *CheckoutService) redeemIncluded(ctx context.Context, in *CheckoutIntent, item pricing.Item, version string) (*CheckoutSession, bool, error) {
	userID := in.Principal.UserID

	e, err := s.repomanager.Entitlements(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("error reading entitlement: %w", err)
	}
	if !e.IncludedPosterAvailable ||
		e.SubscriptionFormat != string(item.Format) || e.SubscriptionQuality != string(item.Quality) {
		return nil, false, nil
	}

	var redeemed bool
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		_, redeemed, err = s.repomanager.Entitlements(tx).RedeemIncludedPoster(ctx, userID, in.PosterRef)
		if err != nil {
			return fmt.Errorf("error redeeming included poster: %w", err)
		}
		if !redeemed {
			return nil
		}
		_, err = s.repomanager.Orders(tx).Create(ctx, &models.Order{
			PurchaseType:   models.PurchasePoster,
			PayerUserID:    userID,
			AmountCents:    0,
			CustomerRef:    e.CustomerRef,
			PosterRef:      in.PosterRef,
			Format:         string(item.Format),
			Quality:        string(item.Quality),
			PricingVersion: version,
			ItemCount:      1,
		})
		if err != nil {
			return fmt.Errorf("error recording order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !redeemed {
		// lost a race with a concurrent redemption
		return nil, false, nil
	}

	s.logger.Info(ctx, "included poster redeemed", "user_id", userID, "poster_ref", in.PosterRef)
	return &CheckoutSession{Included: true, AmountCents: 0, PricingVersion: version}, true, nil
}

type stashedSignup struct {
	id      string
	address string
}

// stashSignup seals the anonymous buyer's credentials until settlement.
func (s *CheckoutService) stashSignup(ctx context.Context, in *CheckoutIntent) (*stashedSignup, error) {
	email, err := normalizeCredentials(in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	_, err = s.repomanager.Users(s.db).GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, common.ErrAlreadyExists
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error checking email: %w", err)
	}

	ct, nonce, err := cryptox.EncryptEntry(sealedSignup{Password: in.Password}, s.signupKey)
	if err != nil {
		return nil, fmt.Errorf("error sealing credentials: %w", err)
	}
	id, err := s.newSignupID()
	if err != nil {
		return nil, fmt.Errorf("error generating signup id: %w", err)
	}

	err = s.repomanager.PendingSignups(s.db).Create(ctx, &models.PendingSignup{
		ID:                 id,
		Email:              email,
		PasswordCiphertext: ct,
		Nonce:              nonce,
		VisitorID:          in.Principal.VisitorID,
	})
	if err != nil {
		return nil, fmt.Errorf("error storing pending signup: %w", err)
	}
	return &stashedSignup{id: id, address: email}, nil
}

// Orders lists userID's settled purchases and redemptions, newest first.
func (s *CheckoutService) Orders(ctx context.Context, userID string) ([]*models.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no user id", common.ErrValidation)
	}
	orders, err := s.repomanager.Orders(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	return orders, nil
}
