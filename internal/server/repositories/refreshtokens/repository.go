// Package refreshtokens stores long-lived refresh tokens for Neoma accounts.
// Only a SHA-256 digest of each token reaches the database.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, expiring after validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Consume deletes the token and returns what it granted. A token can be
	// consumed once; a second call yields common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
