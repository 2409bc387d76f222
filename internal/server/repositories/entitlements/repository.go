// Package entitlements persists per-user attempt balances and paid-tier
// state. Every mutation is a single conditional statement so concurrent
// requests cannot overspend or double-grant.
package entitlements

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	// Create inserts a free entitlement unless one already exists.
	Create(ctx context.Context, userID string, attempts int) error
	Get(ctx context.Context, userID string) (*models.Entitlement, error)

	// Decrement takes one attempt if any remain. ok is false when the
	// balance was already zero (or no entitlement exists).
	Decrement(ctx context.Context, userID string) (remaining int, ok bool, err error)
	Increment(ctx context.Context, userID string) error

	// Grant applies a settled purchase in one upsert.
	Grant(ctx context.Context, g models.EntitlementGrant) error

	// RedeemIncludedPoster consumes the plan's free poster and records
	// posterRef. ok is false when nothing was available.
	RedeemIncludedPoster(ctx context.Context, userID, posterRef string) (e *models.Entitlement, ok bool, err error)
}
