package visitors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Touch(ctx context.Context, visitorID string) error {
	query := `
		INSERT INTO visitor_links (visitor_id)
		VALUES ($1)
		ON CONFLICT (visitor_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, visitorID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, visitorID string) (*models.VisitorState, error) {
	query := `
		SELECT state, user_id, consumed_at, claimed_at
		FROM visitor_links
		WHERE visitor_id = $1`

	var (
		kind      string
		userID    sql.NullString
		consumed  sql.NullTime
		claimedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, visitorID).Scan(&kind, &userID, &consumed, &claimedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.VisitorState{VisitorID: visitorID, Kind: models.VisitorUnclaimed}, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	st := &models.VisitorState{
		VisitorID: visitorID,
		Kind:      models.VisitorStateKind(kind),
		UserID:    userID.String,
	}
	if consumed.Valid {
		st.ConsumedAt = &consumed.Time
	}
	if claimedAt.Valid {
		st.ClaimedAt = &claimedAt.Time
	}
	return st, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, visitorID string) (bool, error) {
	query := `
		INSERT INTO visitor_links (visitor_id, state, consumed_at)
		VALUES ($1, 'exhausted', now())
		ON CONFLICT (visitor_id) DO UPDATE
		SET state = 'exhausted', consumed_at = now()
		WHERE visitor_links.state = 'unclaimed'
		RETURNING visitor_id`

	var id string
	err := r.db.QueryRowContext(ctx, query, visitorID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		// two first-ever requests racing on the insert
		if dbx.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) Release(ctx context.Context, visitorID string) error {
	query := `
		UPDATE visitor_links
		SET state = 'unclaimed', consumed_at = NULL
		WHERE visitor_id = $1 AND state = 'exhausted'`

	if _, err := r.db.ExecContext(ctx, query, visitorID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Claim links an exhausted visitor to userID unless it is linked already,
// and returns the visitor's owner afterwards. A visitor that is absent or
// still holds its anonymous attempt is left alone and yields "".
func (r *PostgresRepository) Claim(ctx context.Context, visitorID, userID string) (string, error) {
	claim := `
		UPDATE visitor_links
		SET state = 'claimed', user_id = $2, claimed_at = now()
		WHERE visitor_id = $1 AND state = 'exhausted' AND user_id IS NULL`

	if _, err := r.db.ExecContext(ctx, claim, visitorID, userID); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	owner := `SELECT user_id FROM visitor_links WHERE visitor_id = $1`

	var current sql.NullString
	if err := r.db.QueryRowContext(ctx, owner, visitorID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return current.String, nil
}
