// Package services contains server-side business logic: the attempt quota,
// identity unification, accounts, generation, checkout and settlement.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
)

// Reservation is the outcome of CheckAndReserve. A denied reservation is not
// an error.
type Reservation struct {
	Allowed   bool
	Remaining int
}

type Attempts struct {
	Remaining int
	IsPaid    bool
}

// QuotaService enforces attempt limits for users (a counted balance) and
// anonymous visitors (one attempt per device).
type QuotaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewQuotaService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *QuotaService {
	return &QuotaService{db: db, repomanager: m, logger: logger}
}

func principalKind(p models.Principal) string {
	if p.Authenticated() {
		return "user"
	}
	return "visitor"
}

func validatePrincipal(p models.Principal) error {
	if p.UserID == "" && p.VisitorID == "" {
		return fmt.Errorf("%w: no user or visitor id", common.ErrValidation)
	}
	return nil
}

// CheckAndReserve atomically takes one attempt for p if one is available.
func (s *QuotaService) CheckAndReserve(ctx context.Context, p models.Principal) (*Reservation, error) {
	if err := validatePrincipal(p); err != nil {
		return nil, err
	}

	var res Reservation
	if p.Authenticated() {
		remaining, ok, err := s.repomanager.Entitlements(s.db).Decrement(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("error reserving attempt: %w", err)
		}
		res = Reservation{Allowed: ok, Remaining: remaining}
	} else {
		ok, err := s.repomanager.Visitors(s.db).Consume(ctx, p.VisitorID)
		if err != nil {
			return nil, fmt.Errorf("error reserving attempt: %w", err)
		}
		res = Reservation{Allowed: ok}
	}

	result := "allowed"
	if !res.Allowed {
		result = "denied"
		s.logger.Info(ctx, "generation limit reached", "principal", principalKind(p), "ref", p.Ref())
	}
	metrics.ReservationsTotal.WithLabelValues(principalKind(p), result).Inc()
	return &res, nil
}

// Check reports whether p could reserve an attempt, without taking one.
func (s *QuotaService) Check(ctx context.Context, p models.Principal) (*Reservation, error) {
	a, err := s.attempts(ctx, p, false)
	if err != nil {
		return nil, err
	}
	return &Reservation{Allowed: a.Remaining > 0, Remaining: a.Remaining}, nil
}

// GetAttempts returns the remaining balance. Anonymous reads register the
// visitor as a side effect.
func (s *QuotaService) GetAttempts(ctx context.Context, p models.Principal) (*Attempts, error) {
	return s.attempts(ctx, p, true)
}

func (s *QuotaService) attempts(ctx context.Context, p models.Principal, touch bool) (*Attempts, error) {
	if err := validatePrincipal(p); err != nil {
		return nil, err
	}

	if p.Authenticated() {
		e, err := s.repomanager.Entitlements(s.db).Get(ctx, p.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return &Attempts{}, nil
			}
			return nil, fmt.Errorf("error reading entitlement: %w", err)
		}
		return &Attempts{Remaining: e.AttemptsRemaining, IsPaid: e.IsPaid}, nil
	}

	repo := s.repomanager.Visitors(s.db)
	if touch {
		if err := repo.Touch(ctx, p.VisitorID); err != nil {
			return nil, fmt.Errorf("error registering visitor: %w", err)
		}
	}
	st, err := repo.Get(ctx, p.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("error reading visitor: %w", err)
	}
	if st.Kind == models.VisitorUnclaimed {
		return &Attempts{Remaining: 1}, nil
	}
	return &Attempts{}, nil
}

// Refund gives back an attempt reserved for a generation that failed.
func (s *QuotaService) Refund(ctx context.Context, p models.Principal) error {
	if err := validatePrincipal(p); err != nil {
		return err
	}

	var err error
	if p.Authenticated() {
		err = s.repomanager.Entitlements(s.db).Increment(ctx, p.UserID)
	} else {
		err = s.repomanager.Visitors(s.db).Release(ctx, p.VisitorID)
	}
	if err != nil {
		return fmt.Errorf("error refunding attempt: %w", err)
	}
	metrics.RefundsTotal.WithLabelValues(principalKind(p)).Inc()
	return nil
}
