package repository

import (
	"context"
	"fmt"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads the slice of the catalog checkout and shipping need. The
// catalog tables themselves are owned by the admin side.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(p *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: p}
}

func (r *CatalogRepository) ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price_cents, stock, published, image,
		       COALESCE(weight_grams, 0), COALESCE(width_cm, 0), COALESCE(height_cm, 0), COALESCE(length_cm, 0)
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Published, &p.Image,
			&p.Dimensions.WeightGrams, &p.Dimensions.WidthCm, &p.Dimensions.HeightCm, &p.Dimensions.LengthCm); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, product_id, name, stock, price_cents
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Stock, &v.Price); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		p, ok := out[v.ProductID]
		if !ok {
			continue
		}
		p.Variants = append(p.Variants, v)
		out[v.ProductID] = p
	}
	return out, rows.Err()
}
