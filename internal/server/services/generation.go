package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/metrics"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/neoma/internal/server/storage"
)

const maxPromptLength = 1000

type GenerationResult struct {
	ArtifactRef string
	URL         string
	Remaining   int
}

// GenerationService runs one generation end to end: reserve an attempt,
// call the provider, store the image and record who owns it. The attempt is
// refunded when the provider or storage fails.
type GenerationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	quota       *QuotaService
	provider    ImageProvider
	store       ArtifactStore
	logger      logging.Logger
	newKey      func() string
}

func NewGenerationService(db *sql.DB, m repomanager.RepositoryManager, quota *QuotaService,
	provider ImageProvider, store ArtifactStore, logger logging.Logger) *GenerationService {
	return &GenerationService{
		db:          db,
		repomanager: m,
		quota:       quota,
		provider:    provider,
		store:       store,
		logger:      logger,
		newKey:      storage.NewArtifactKey,
	}
}

func (s *GenerationService) Generate(ctx context.Context, p models.Principal, prompt string) (*GenerationResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", common.ErrValidation)
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return nil, fmt.Errorf("%w: prompt longer than %d characters", common.ErrValidation, maxPromptLength)
	}

	res, err := s.quota.CheckAndReserve(ctx, p)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		metrics.GenerationsTotal.WithLabelValues("limit_reached").Inc()
		return nil, common.ErrLimitReached
	}

	img, err := s.provider.Generate(ctx, prompt)
	if err != nil {
		s.refund(ctx, p)
		metrics.GenerationsTotal.WithLabelValues("provider_failed").Inc()
		return nil, fmt.Errorf("error generating image: %w", err)
	}

	key := s.newKey()
	if err := s.store.Put(ctx, key, img.Data, img.ContentType); err != nil {
		s.refund(ctx, p)
		metrics.GenerationsTotal.WithLabelValues("storage_failed").Inc()
		return nil, fmt.Errorf("error storing image: %w", err)
	}

	g := &models.Generation{ArtifactRef: key, Prompt: prompt}
	if p.Authenticated() {
		g.OwnerUserID = p.UserID
	} else {
		g.OwnerVisitorID = p.VisitorID
	}
	if _, err := s.repomanager.Generations(s.db).Create(ctx, g); err != nil {
		s.refund(ctx, p)
		metrics.GenerationsTotal.WithLabelValues("record_failed").Inc()
		return nil, fmt.Errorf("error recording generation: %w", err)
	}
	metrics.GenerationsTotal.WithLabelValues("ok").Inc()

	out := &GenerationResult{ArtifactRef: key, Remaining: res.Remaining}
	url, err := s.store.PresignGet(ctx, key)
	if err != nil {
		// the artifact is stored and listed; the client can fetch a link later
		s.logger.Warn(ctx, "presign after generation failed", "artifact_ref", key, "error", err)
		return out, nil
	}
	out.URL = url
	return out, nil
}

func (s *GenerationService) refund(ctx context.Context, p models.Principal) {
	if err := s.quota.Refund(context.WithoutCancel(ctx), p); err != nil {
		s.logger.Error(ctx, "refund failed", "ref", p.Ref(), "error", err)
	}
}
