// Package orders keeps the fulfilment trace of settled purchases.
package orders

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
}
