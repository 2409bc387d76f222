package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/pricing"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
	"go.jetify.com/typeid/v2"
)

type SettlementStatus string

const (
	SettlementProcessed SettlementStatus = "processed"
	SettlementDuplicate SettlementStatus = "duplicate"
	SettlementIgnored   SettlementStatus = "ignored"
)

// SettlementService applies verified payment events. Each event is applied
// at most once: the processed-event marker, account provisioning, the
// entitlement grant and the order row commit together or not at all.
type SettlementService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	registry    *pricing.Registry
	identity    *IdentityService
	signupKey   []byte
	logger      logging.Logger
}

func NewSettlementService(db *sql.DB, m repomanager.RepositoryManager, registry *pricing.Registry,
	identity *IdentityService, signupKey []byte, logger logging.Logger) *SettlementService {
	return &SettlementService{
		db:          db,
		repomanager: m,
		registry:    registry,
		identity:    identity,
		signupKey:   signupKey,
		logger:      logger,
	}
}

// purchase is the checkout intent recovered from session metadata.
type purchase struct {
	purchaseType   models.PurchaseType
	payerType      models.PayerType
	payerRef       string
	signupID       string
	format         string
	quality        string
	posterRef      string
	promoCode      string
	pricingVersion string
	itemCount      int
}

func parsePurchase(meta map[string]string) (*purchase, error) {
	p := &purchase{
		purchaseType:   models.PurchaseType(meta[MetaPurchaseType]),
		payerType:      models.PayerType(meta[MetaPayerType]),
		payerRef:       meta[MetaPayerRef],
		signupID:       meta[MetaSignupID],
		format:         meta[MetaFormat],
		quality:        meta[MetaQuality],
		posterRef:      meta[MetaPosterRef],
		promoCode:      meta[MetaPromoCode],
		pricingVersion: meta[MetaPricingVersion],
		itemCount:      1,
	}

	switch p.purchaseType {
	case models.PurchasePoster, models.PurchaseCart:
	case models.PurchasePlan:
		f, err := pricing.ParseFormat(meta[MetaPlanFormat])
		if err != nil {
			return nil, err
		}
		q, err := pricing.ParseQuality(meta[MetaPlanQuality])
		if err != nil {
			return nil, err
		}
		p.format, p.quality = string(f), string(q)
	default:
		return nil, fmt.Errorf("%w: unknown purchase type %q", common.ErrValidation, p.purchaseType)
	}

	switch p.payerType {
	case models.PayerUser, models.PayerVisitor:
	default:
		return nil, fmt.Errorf("%w: unknown payer type %q", common.ErrValidation, p.payerType)
	}
	if p.payerRef == "" {
		return nil, fmt.Errorf("%w: missing payer reference", common.ErrValidation)
	}

	if v := meta[MetaItemCount]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad item count %q", common.ErrValidation, v)
		}
		p.itemCount = n
	}
	return p, nil
}

// Settle applies ev. Events other than a paid checkout.session.completed are
// acknowledged as ignored; a replayed event is acknowledged as a duplicate
// without touching any state.
func (s *SettlementService) Settle(ctx context.Context, ev *payments.Event) (SettlementStatus, error) {
	status, err := s.settle(ctx, ev)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return "", err
	}
	metrics.SettlementsTotal.WithLabelValues(string(status)).Inc()
	return status, nil
}

func (s *SettlementService) settle(ctx context.Context, ev *payments.Event) (SettlementStatus, error) {
	if ev.Type != payments.EventCheckoutSessionCompleted || ev.Session == nil {
		s.logger.Info(ctx, "stripe event ignored", "event_id", ev.ID, "type", ev.Type)
		return SettlementIgnored, nil
	}
	sess := ev.Session
	if !sess.Settleable() {
		s.logger.Info(ctx, "checkout session not paid", "event_id", ev.ID, "session_id", sess.ID, "payment_status", sess.PaymentStatus)
		return SettlementIgnored, nil
	}

	p, err := parsePurchase(sess.Metadata)
	if err != nil {
		return "", fmt.Errorf("error reading session metadata: %w", err)
	}

	catalog := s.registry.Current()
	if c, ok := s.registry.Get(p.pricingVersion); ok {
		catalog = c
	} else if p.pricingVersion != "" {
		s.logger.Warn(ctx, "unknown pricing version, using current", "event_id", ev.ID, "pricing_version", p.pricingVersion)
	}

	var (
		duplicate    bool
		userID       string
		claimVisitor string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		fresh, err := s.repomanager.Events(tx).MarkProcessed(ctx, ev.ID, ev.Type)
		if err != nil {
			return fmt.Errorf("error recording event: %w", err)
		}
		if !fresh {
			duplicate = true
			return nil
		}

		userID, claimVisitor, err = s.resolveAccount(ctx, tx, p)
		if err != nil {
			return err
		}

		if userID != "" {
			grant := models.EntitlementGrant{
				UserID:      userID,
				Attempts:    catalog.PaidAttempts,
				CustomerRef: sess.Customer,
			}
			if p.purchaseType == models.PurchasePlan {
				grant.SubscriptionFormat = p.format
				grant.SubscriptionQuality = p.quality
				grant.GrantIncludedPoster = true
			}
			if err := s.repomanager.Entitlements(tx).Grant(ctx, grant); err != nil {
				return fmt.Errorf("error granting entitlement: %w", err)
			}
		}

		order := &models.Order{
			EventID:        ev.ID,
			SessionRef:     sess.ID,
			PurchaseType:   p.purchaseType,
			PayerUserID:    userID,
			AmountCents:    sess.AmountTotal,
			CustomerRef:    sess.Customer,
			PosterRef:      p.posterRef,
			Format:         p.format,
			Quality:        p.quality,
			PricingVersion: catalog.Version,
			PromoCode:      p.promoCode,
			ItemCount:      p.itemCount,
		}
		if p.payerType == models.PayerVisitor {
			order.PayerVisitorID = p.payerRef
		}
		if _, err := s.repomanager.Orders(tx).Create(ctx, order); err != nil {
			return fmt.Errorf("error recording order: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "settlement failed", "event_id", ev.ID, "session_id", sess.ID, "error", err)
		return "", err
	}
	if duplicate {
		s.logger.Info(ctx, "stripe event already processed", "event_id", ev.ID)
		return SettlementDuplicate, nil
	}

	s.identity.claimBestEffort(ctx, claimVisitor, userID)
	s.logger.Info(ctx, "checkout settled", "event_id", ev.ID, "session_id", sess.ID,
		"purchase_type", p.purchaseType, "user_id", userID, "amount_cents", sess.AmountTotal)
	return SettlementProcessed, nil
}

// resolveAccount finds or provisions the user a purchase belongs to. It
// returns an empty userID for anonymous one-off purchases, and the visitor
// to claim once the transaction commits.
func (s *SettlementService) resolveAccount(ctx context.Context, tx dbx.DBTX, p *purchase) (userID, claimVisitor string, err error) {
	if p.payerType == models.PayerUser {
		ok, err := s.repomanager.Users(tx).Exists(ctx, p.payerRef)
		if err != nil {
			return "", "", fmt.Errorf("error looking up payer: %w", err)
		}
		if !ok {
			return "", "", fmt.Errorf("%w: user %s does not exist", common.ErrAccountResolutionFailed, p.payerRef)
		}
		return p.payerRef, "", nil
	}

	if p.signupID == "" {
		return "", "", nil
	}

	tid, err := typeid.Parse(p.signupID)
	if err != nil || tid.Prefix() != signupIDPrefix {
		return "", "", fmt.Errorf("%w: malformed signup id", common.ErrAccountResolutionFailed)
	}

	pending, err := s.repomanager.PendingSignups(tx).Get(ctx, p.signupID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", "", fmt.Errorf("%w: pending signup %s not found", common.ErrAccountResolutionFailed, p.signupID)
		}
		return "", "", fmt.Errorf("error loading pending signup: %w", err)
	}

	var sealed sealedSignup
	if err := cryptox.DecryptEntry(pending.PasswordCiphertext, pending.Nonce, s.signupKey, &sealed); err != nil {
		return "", "", fmt.Errorf("%w: cannot open pending signup", common.ErrAccountResolutionFailed)
	}

	users := s.repomanager.Users(tx)
	existing, err := users.GetByEmail(ctx, pending.Email)
	switch {
	case err == nil:
		// someone registered this email between checkout and payment
		s.logger.Warn(ctx, "pending signup email already registered, attaching purchase",
			"signup_id", pending.ID, "user_id", existing.ID)
		userID = existing.ID
	case errors.Is(err, common.ErrorNotFound):
		salt, verifier, err := cryptox.HashPassword(sealed.Password)
		if err != nil {
			return "", "", fmt.Errorf("error hashing password: %w", err)
		}
		u, err := users.Create(ctx, &models.User{Email: pending.Email, Salt: salt, Verifier: verifier})
		if err != nil {
			return "", "", fmt.Errorf("error creating user: %w", err)
		}
		userID = u.ID
		s.logger.Info(ctx, "account provisioned from pending signup", "signup_id", pending.ID, "user_id", userID)
	default:
		return "", "", fmt.Errorf("error looking up email: %w", err)
	}

	if err := s.repomanager.PendingSignups(tx).Delete(ctx, pending.ID); err != nil {
		return "", "", fmt.Errorf("error deleting pending signup: %w", err)
	}

	claimVisitor = pending.VisitorID
	if claimVisitor == "" {
		claimVisitor = p.payerRef
	}
	return userID, claimVisitor, nil
}
