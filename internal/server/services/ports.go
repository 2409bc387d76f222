package services

import (
	"context"

	"github.com/dmitrijs2005/neoma/internal/server/generator"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
)

// ArtifactStore persists generated images and hands out temporary links.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// ImageProvider turns a prompt into an image.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string) (*generator.Image, error)
}

// CheckoutProcessor opens hosted payment sessions.
type CheckoutProcessor interface {
	CreateCheckoutSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error)
}
