package generations

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Create(ctx context.Context, g *models.Generation) (*models.Generation, error) {
	query := `
		INSERT INTO generations (owner_visitor_id, owner_user_id, artifact_ref, prompt)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		dbx.NullString(g.OwnerVisitorID), dbx.NullString(g.OwnerUserID), g.ArtifactRef, g.Prompt).
		Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) TransferVisitor(ctx context.Context, visitorID, userID string) (int64, error) {
	query := `
		UPDATE generations
		SET owner_user_id = $2
		WHERE owner_visitor_id = $1 AND owner_user_id IS NULL`

	res, err := r.db.ExecContext(ctx, query, visitorID, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ListVisible(ctx context.Context, userID, currentVisitorID string) ([]*models.Generation, error) {
	query := `
		SELECT g.id, g.owner_visitor_id, g.owner_user_id, g.artifact_ref, g.prompt, g.created_at
		FROM generations g
		WHERE g.owner_user_id = $1
		   OR g.owner_visitor_id IN (SELECT visitor_id FROM visitor_links WHERE user_id = $1)
		   OR (g.owner_visitor_id = $2 AND g.owner_user_id IS NULL)
		ORDER BY g.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, dbx.NullString(userID), dbx.NullString(currentVisitorID))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Generation
	for rows.Next() {
		var (
			g         models.Generation
			visitorID sql.NullString
			ownerID   sql.NullString
		)
		if err := rows.Scan(&g.ID, &visitorID, &ownerID, &g.ArtifactRef, &g.Prompt, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		g.OwnerVisitorID = visitorID.String
		g.OwnerUserID = ownerID.String
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
