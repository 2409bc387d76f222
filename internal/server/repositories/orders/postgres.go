package orders

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

func (r *PostgresRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	query := `
		INSERT INTO orders (event_id, session_ref, purchase_type, payer_user_id, payer_visitor_id,
		                    amount_cents, customer_ref, poster_ref, format, quality,
		                    pricing_version, promo_code, item_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		dbx.NullString(o.EventID),
		dbx.NullString(o.SessionRef),
		string(o.PurchaseType),
		dbx.NullString(o.PayerUserID),
		dbx.NullString(o.PayerVisitorID),
		o.AmountCents,
		dbx.NullString(o.CustomerRef),
		dbx.NullString(o.PosterRef),
		dbx.NullString(o.Format),
		dbx.NullString(o.Quality),
		o.PricingVersion,
		dbx.NullString(o.PromoCode),
		o.ItemCount,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `
		SELECT id, purchase_type, amount_cents, poster_ref, format, quality,
		       pricing_version, promo_code, item_count, created_at
		FROM orders
		WHERE payer_user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		var (
			o                              models.Order
			purchaseType                   string
			posterRef, format, quality, pc sql.NullString
		)
		if err := rows.Scan(&o.ID, &purchaseType, &o.AmountCents, &posterRef, &format, &quality,
			&o.PricingVersion, &pc, &o.ItemCount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		o.PurchaseType = models.PurchaseType(purchaseType)
		o.PayerUserID = userID
		o.PosterRef = posterRef.String
		o.Format = format.String
		o.Quality = quality.String
		o.PromoCode = pc.String
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
