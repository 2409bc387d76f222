// Package pendingsignups stores sealed credentials for accounts that are
// created only after payment settles.
package pendingsignups

import (
	"context"
	"time"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.PendingSignup) error
	Get(ctx context.Context, id string) (*models.PendingSignup, error)
	Delete(ctx context.Context, id string) error
	// DeleteOlderThan prunes abandoned signups created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
