package repository

import (
	"context"
	"fmt"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ShippingRuleRepository struct {
	pool *pgxpool.Pool
}

func NewShippingRuleRepository(p *pgxpool.Pool) *ShippingRuleRepository {
	return &ShippingRuleRepository{pool: p}
}

func (r *ShippingRuleRepository) ActiveRules(ctx context.Context) ([]domain.LocalShippingRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, cost_cents, min_amount_cents, max_amount_cents,
		       COALESCE(provinces, '{}'), is_active, estimated_delivery
		FROM local_shipping_rules
		WHERE is_active
		ORDER BY cost_cents, id`)
	if err != nil {
		return nil, fmt.Errorf("query shipping rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.LocalShippingRule
	for rows.Next() {
		var rule domain.LocalShippingRule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Cost, &rule.MinAmount, &rule.MaxAmount,
			&rule.Provinces, &rule.IsActive, &rule.EstimatedDelivery); err != nil {
			return nil, fmt.Errorf("scan shipping rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
