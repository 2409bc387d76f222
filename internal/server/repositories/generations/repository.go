// Package generations stores the record of every successful image
// generation and answers ownership queries over them.
package generations

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.Generation) (*models.Generation, error)

	// TransferVisitor assigns unowned generations of visitorID to userID.
	TransferVisitor(ctx context.Context, visitorID, userID string) (int64, error)

	// ListVisible returns generations owned by userID, generations of
	// visitors linked to userID, and not-yet-owned generations of
	// currentVisitorID, newest first. Either id may be empty.
	ListVisible(ctx context.Context, userID, currentVisitorID string) ([]*models.Generation, error)
}
