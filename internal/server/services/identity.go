package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
)

// IdentityService links anonymous visitors to users and answers "what has
// this person generated" across both identities.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ArtifactStore
	logger      logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, store ArtifactStore, logger logging.Logger) *IdentityService {
	return &IdentityService{db: db, repomanager: m, store: store, logger: logger}
}

// Claim links visitorID to userID and moves the visitor's unowned
// generations to the user. The first claim wins: claiming a visitor that
// belongs to someone else returns common.ErrAlreadyClaimed and changes
// nothing. Repeating a successful claim is a no-op. A visitor that never
// spent its anonymous attempt has no history and is not linked.
func (s *IdentityService) Claim(ctx context.Context, visitorID, userID string) error {
	if visitorID == "" || userID == "" {
		return fmt.Errorf("%w: claim needs visitor and user", common.ErrValidation)
	}

	var owner string
	var moved int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		owner, err = s.repomanager.Visitors(tx).Claim(ctx, visitorID, userID)
		if err != nil {
			return fmt.Errorf("error claiming visitor: %w", err)
		}
		if owner == "" {
			return nil
		}
		if owner != userID {
			return common.ErrAlreadyClaimed
		}
		moved, err = s.repomanager.Generations(tx).TransferVisitor(ctx, visitorID, userID)
		if err != nil {
			return fmt.Errorf("error transferring generations: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyClaimed) {
			s.logger.Warn(ctx, "visitor already claimed", "visitor_id", visitorID, "user_id", userID, "owner_id", owner)
		}
		return err
	}

	if moved > 0 {
		s.logger.Info(ctx, "visitor claimed", "visitor_id", visitorID, "user_id", userID, "generations", moved)
	}
	return nil
}

// claimBestEffort claims and logs instead of failing; used where the
// surrounding operation already succeeded.
func (s *IdentityService) claimBestEffort(ctx context.Context, visitorID, userID string) {
	if visitorID == "" || userID == "" {
		return
	}
	if err := s.Claim(ctx, visitorID, userID); err != nil && !errors.Is(err, common.ErrAlreadyClaimed) {
		s.logger.Error(ctx, "claim failed", "visitor_id", visitorID, "user_id", userID, "error", err)
	}
}

// ListAllArtifacts returns everything userID may see: their own artifacts,
// those of visitors linked to them, and unowned artifacts of the current
// visitor. Results are deduplicated by reference, newest first, each with a
// presigned URL.
func (s *IdentityService) ListAllArtifacts(ctx context.Context, userID, currentVisitorID string) ([]*models.Artifact, error) {
	if userID == "" && currentVisitorID == "" {
		return nil, fmt.Errorf("%w: no user or visitor id", common.ErrValidation)
	}

	gens, err := s.repomanager.Generations(s.db).ListVisible(ctx, userID, currentVisitorID)
	if err != nil {
		return nil, fmt.Errorf("error listing generations: %w", err)
	}

	seen := make(map[string]struct{}, len(gens))
	out := make([]*models.Artifact, 0, len(gens))
	for _, g := range gens {
		if _, ok := seen[g.ArtifactRef]; ok {
			continue
		}
		seen[g.ArtifactRef] = struct{}{}

		url, err := s.store.PresignGet(ctx, g.ArtifactRef)
		if err != nil {
			return nil, fmt.Errorf("error presigning artifact: %w", err)
		}
		out = append(out, &models.Artifact{
			Ref:       g.ArtifactRef,
			URL:       url,
			Prompt:    g.Prompt,
			CreatedAt: g.CreatedAt,
		})
	}
	return out, nil
}
