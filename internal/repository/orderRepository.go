package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewOrderRepository(p *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: p, now: time.Now}
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o *domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders
			(id, status, currency, subtotal_cents, shipping_cost_cents, discount_cents, total_amount_cents,
			 buyer_email, user_id, shipping_address, billing_address, customer_data,
			 payment_reference_id, payment_transaction_id, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7,
			 $8, $9, $10, $11, $12,
			 $13, $14, $15, $16)
	`,
		o.ID,
		string(o.Status),
		o.Currency,
		o.Subtotal,
		o.ShippingCost,
		o.Discount,
		o.TotalAmount,
		o.BuyerEmail,
		o.UserID,
		jsonbArg(o.ShippingAddress),
		jsonbArg(o.BillingAddress),
		jsonbArg(o.CustomerData),
		o.PaymentReferenceID,
		o.PaymentTransactionID,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		logger.Warn("insert order failed", "order_id", o.ID, "err", err)
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items
				(id, order_id, product_id, variant_id, name, unit_price_cents, quantity, image)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			it.ID,
			o.ID,
			it.ProductID,
			it.VariantID,
			it.Name,
			it.UnitPrice,
			it.Quantity,
			it.Image,
		)
	}
	for _, e := range o.Timeline {
		queueTimeline(batch, o.ID, e)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		logger.Warn("insert order items failed", "order_id", o.ID, "err", err)
		return fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return loadOrder(ctx, r.pool, id, false)
}

func (r *OrderRepository) SetPaymentReference(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_reference_id = $2, updated_at = $3 WHERE id = $1`,
		id, ref, r.now().UTC())
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) Transition(ctx context.Context, id uuid.UUID, decide DecideFunc) (TransitionResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransitionResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// row lock: concurrent reconciliations of the same order queue up here
	current, err := loadOrder(ctx, tx, id, true)
	if err != nil {
		return TransitionResult{}, err
	}

	t, reason := decide(current)
	if reason != domain.ReasonApplied {
		return TransitionResult{Order: current, Reason: reason}, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_transaction_id = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, string(t.To), t.PaymentTransactionID, t.At, string(current.Status))
	if err != nil {
		return TransitionResult{}, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return TransitionResult{}, fmt.Errorf("update order status: %d rows changed", tag.RowsAffected())
	}

	batch := &pgx.Batch{}
	queueTimeline(batch, id, t.Entry())
	if t.DecrementStock {
		for _, d := range StockDecrements(current.Items) {
			queueDecrement(batch, d)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return TransitionResult{}, fmt.Errorf("apply transition side effects: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return TransitionResult{}, fmt.Errorf("commit transition: %w", err)
	}

	current.Status = t.To
	current.PaymentTransactionID = t.PaymentTransactionID
	current.UpdatedAt = t.At
	current.Timeline = append(current.Timeline, t.Entry())
	return TransitionResult{Order: current, Transition: t, Reason: reason}, nil
}

func queueTimeline(b *pgx.Batch, orderID uuid.UUID, e domain.TimelineEntry) {
	b.Queue(`
		INSERT INTO order_timeline (order_id, status, note, payment_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, string(e.Status), e.Note, e.PaymentTransactionID, e.Timestamp)
}

func queueDecrement(b *pgx.Batch, d domain.StockDecrement) {
	if d.VariantID != nil {
		b.Queue(`UPDATE product_variants SET stock = stock - $3 WHERE id = $1 AND product_id = $2`,
			*d.VariantID, d.ProductID, d.Quantity)
		return
	}
	b.Queue(`UPDATE products SET stock = stock - $2 WHERE id = $1`, d.ProductID, d.Quantity)
}

func loadOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Order, error) {
	sql := `
		SELECT id, status, currency, subtotal_cents, shipping_cost_cents, discount_cents, total_amount_cents,
		       buyer_email, user_id, shipping_address, billing_address, customer_data,
		       payment_reference_id, payment_transaction_id, created_at, updated_at
		FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		o                         domain.Order
		status                    string
		shipping, billing, custom []byte
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&o.ID, &status, &o.Currency, &o.Subtotal, &o.ShippingCost, &o.Discount, &o.TotalAmount,
		&o.BuyerEmail, &o.UserID, &shipping, &billing, &custom,
		&o.PaymentReferenceID, &o.PaymentTransactionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			logger.Warn("load order failed", "order_id", id, "code", pgErr.Code)
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	o.Status = domain.Status(status)
	o.ShippingAddress = domain.Blob(shipping)
	o.BillingAddress = domain.Blob(billing)
	o.CustomerData = domain.Blob(custom)

	rows, err := q.Query(ctx, `
		SELECT id, product_id, variant_id, name, unit_price_cents, quantity, image
		FROM order_items WHERE order_id = $1 ORDER BY product_id, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	for rows.Next() {
		it := domain.OrderItem{OrderID: id}
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Name, &it.UnitPrice, &it.Quantity, &it.Image); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT status, note, payment_transaction_id, created_at
		FROM order_timeline WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load order timeline: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e  domain.TimelineEntry
			st string
		)
		if err := rows.Scan(&st, &e.Note, &e.PaymentTransactionID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Status = domain.Status(st)
		o.Timeline = append(o.Timeline, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load order timeline: %w", err)
	}
	return &o, nil
}

// jsonbArg keeps empty blobs as SQL NULL instead of an invalid empty document.
func jsonbArg(b domain.Blob) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
