// Package visitors persists the explicit per-device state machine
// (unclaimed, exhausted, claimed) backing anonymous quota and identity
// unification.
package visitors

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	// Touch registers a visitor as unclaimed if it has never been seen.
	Touch(ctx context.Context, visitorID string) error

	// Get returns the visitor's state; unknown visitors read as unclaimed.
	Get(ctx context.Context, visitorID string) (*models.VisitorState, error)

	// Consume atomically moves an unclaimed (or unknown) visitor to
	// exhausted. It reports false when the attempt was already used or the
	// visitor is claimed.
	Consume(ctx context.Context, visitorID string) (bool, error)

	// Release undoes Consume for a visitor still in the exhausted state.
	Release(ctx context.Context, visitorID string) error

	// Claim links the visitor to userID unless it is already linked, and
	// returns the user the visitor belongs to afterwards.
	Claim(ctx context.Context, visitorID, userID string) (string, error)
}
