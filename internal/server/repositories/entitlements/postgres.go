package entitlements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID string, attempts int) error {
	query := `
		INSERT INTO entitlements (user_id, attempts_remaining)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID, attempts); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	query := `
		SELECT user_id, is_paid, attempts_remaining, subscription_format, subscription_quality,
		       customer_ref, included_poster_available, included_poster_ref, updated_at
		FROM entitlements
		WHERE user_id = $1`

	e, err := scanEntitlement(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) Decrement(ctx context.Context, userID string) (int, bool, error) {
	query := `
		UPDATE entitlements
		SET attempts_remaining = attempts_remaining - 1, updated_at = now()
		WHERE user_id = $1 AND attempts_remaining > 0
		RETURNING attempts_remaining`

	var remaining int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return remaining, true, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, userID string) error {
	query := `
		UPDATE entitlements
		SET attempts_remaining = attempts_remaining + 1, updated_at = now()
		WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Grant(ctx context.Context, g models.EntitlementGrant) error {
	query := `
		INSERT INTO entitlements (user_id, is_paid, attempts_remaining, subscription_format,
		                          subscription_quality, customer_ref, included_poster_available)
		VALUES ($1, true, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			is_paid = true,
			attempts_remaining = GREATEST(entitlements.attempts_remaining, EXCLUDED.attempts_remaining),
			subscription_format = COALESCE(EXCLUDED.subscription_format, entitlements.subscription_format),
			subscription_quality = COALESCE(EXCLUDED.subscription_quality, entitlements.subscription_quality),
			customer_ref = COALESCE(EXCLUDED.customer_ref, entitlements.customer_ref),
			included_poster_available = entitlements.included_poster_available OR EXCLUDED.included_poster_available,
			updated_at = now()`

	_, err := r.db.ExecContext(ctx, query,
		g.UserID,
		g.Attempts,
		dbx.NullString(g.SubscriptionFormat),
		dbx.NullString(g.SubscriptionQuality),
		dbx.NullString(g.CustomerRef),
		g.GrantIncludedPoster,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RedeemIncludedPoster(ctx context.Context, userID, posterRef string) (*models.Entitlement, bool, error) {
	query := `
		UPDATE entitlements
		SET included_poster_available = false, included_poster_ref = $2, updated_at = now()
		WHERE user_id = $1 AND included_poster_available AND subscription_format IS NOT NULL
		RETURNING user_id, is_paid, attempts_remaining, subscription_format, subscription_quality,
		          customer_ref, included_poster_available, included_poster_ref, updated_at`

	e, err := scanEntitlement(r.db.QueryRowContext(ctx, query, userID, posterRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return e, true, nil
}

func scanEntitlement(row *sql.Row) (*models.Entitlement, error) {
	var (
		e                    models.Entitlement
		format, quality, cus sql.NullString
		posterRef            sql.NullString
	)
	err := row.Scan(&e.UserID, &e.IsPaid, &e.AttemptsRemaining, &format, &quality,
		&cus, &e.IncludedPosterAvailable, &posterRef, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.SubscriptionFormat = format.String
	e.SubscriptionQuality = quality.String
	e.CustomerRef = cus.String
	e.IncludedPosterRef = posterRef.String
	return &e, nil
}
