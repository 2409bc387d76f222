package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/auth"
	"github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/repomanager"
)

const (
	minPasswordLength = 8
	maxEmailLength    = 254
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService handles registration, login and token refresh. Both
// registration and login claim the caller's visitor id, so anonymous
// history follows the person into their account.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	identity                     *IdentityService
	logger                       logging.Logger
	freeAttempts                 int
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, identity *IdentityService, cfg *config.Config, freeAttempts int, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		identity:                     identity,
		logger:                       logger,
		freeAttempts:                 freeAttempts,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// normalizeCredentials lower-cases and checks email, and enforces the
// password policy.
func normalizeCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", common.ErrMissingCredentials
	}
	if len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email too long", common.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, minPasswordLength)
	}
	return email, nil
}

// Register creates the account with the free attempt allowance and returns
// tokens. An email already in use yields common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, email, password, visitorID string) (*TokenPair, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, err
	}

	salt, verifier, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	var pair *TokenPair
	var userID string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.repomanager.Users(tx).Create(ctx, &models.User{Email: email, Salt: salt, Verifier: verifier})
		if err != nil {
			if errors.Is(err, common.ErrAlreadyExists) {
				return err
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		userID = u.ID
		if err := s.repomanager.Entitlements(tx).Create(ctx, u.ID, s.freeAttempts); err != nil {
			return fmt.Errorf("error creating entitlement: %w", err)
		}
		pair, err = s.generateTokenPair(ctx, u.ID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", userID)
	s.identity.claimBestEffort(ctx, visitorID, userID)
	return pair, nil
}

// Login verifies the password and returns tokens. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password, visitorID string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, common.ErrMissingCredentials
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	candidate := cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), user.Salt))
	if !s.checkVerifier(user.Verifier, candidate) {
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, err
	}

	s.identity.claimBestEffort(ctx, visitorID, user.ID)
	return pair, nil
}

// RefreshToken consumes a refresh token and returns a fresh TokenPair.
// Each refresh token works once.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}
		if token.Expires.Before(time.Now()) {
			return common.ErrTokenExpired
		}
		pair, err = s.generateTokenPair(ctx, token.UserID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// --- helpers below ---

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
