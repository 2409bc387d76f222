package pendingsignups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.PendingSignup) error {
	query := `
		INSERT INTO pending_signups (id, email, password_ciphertext, nonce, visitor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, p.ID, p.Email, p.PasswordCiphertext, p.Nonce, p.VisitorID).
		Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.PendingSignup, error) {
	query := `
		SELECT id, email, password_ciphertext, nonce, visitor_id, created_at
		FROM pending_signups
		WHERE id = $1`

	p := &models.PendingSignup{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Email, &p.PasswordCiphertext, &p.Nonce, &p.VisitorID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_signups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_signups WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
