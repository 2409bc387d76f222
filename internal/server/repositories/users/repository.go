package users

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type Repository interface {
	// Create inserts the user; an email already in use yields common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}
