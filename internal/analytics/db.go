package analytics

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-sales/internal/models"
)

// DB reads sales aggregates straight from the order, ticket, payment and
// ledger tables.
type DB struct {
	Bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{Bun: db}
}

func applyRange(q *bun.SelectQuery, column string, rng Range) *bun.SelectQuery {
	if rng.From != nil {
		q = q.Where(column+" >= ?", *rng.From)
	}
	if rng.To != nil {
		q = q.Where(column+" < ?", *rng.To)
	}
	return q
}

// OrdersBetween returns the orders created inside the range, oldest first.
func (d *DB) OrdersBetween(ctx context.Context, rng Range) ([]models.Order, error) {
	var orders []models.Order
	q := d.Bun.NewSelect().Model(&orders).OrderExpr("o.created_at ASC, o.id ASC")
	if err := applyRange(q, "o.created_at", rng).Scan(ctx); err != nil {
		return nil, fmt.Errorf("orders between: %w", err)
	}
	return orders, nil
}

// SalesByCategory counts sold tickets and their revenue per category.
func (d *DB) SalesByCategory(ctx context.Context, rng Range) ([]CategorySalesMetrics, error) {
	var rows []CategorySalesMetrics
	q := d.Bun.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("tt.category AS category").
		ColumnExpr("COUNT(t.id) AS tickets_sold").
		ColumnExpr("COALESCE(SUM(t.sold_price), 0.0) AS revenue").
		Join("JOIN orders AS o ON o.id = t.order_id").
		Join("JOIN ticket_types AS tt ON tt.id = t.ticket_type_id").
		Where("t.status = ?", models.TicketSold).
		GroupExpr("tt.category").
		OrderExpr("tt.category ASC")
	if err := applyRange(q, "o.created_at", rng).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sales by category: %w", err)
	}
	return rows, nil
}

// PaymentsByMethod sums payment rows per method, internal CREDIT rows
// included.
func (d *DB) PaymentsByMethod(ctx context.Context, rng Range) ([]MethodTotal, error) {
	var rows []MethodTotal
	q := d.Bun.NewSelect().
		TableExpr("payments AS p").
		ColumnExpr("p.method AS method").
		ColumnExpr("COUNT(p.id) AS payments").
		ColumnExpr("COALESCE(SUM(p.amount), 0.0) AS amount").
		Join("JOIN orders AS o ON o.id = p.order_id").
		GroupExpr("p.method").
		OrderExpr("p.method ASC")
	if err := applyRange(q, "o.created_at", rng).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("payments by method: %w", err)
	}
	return rows, nil
}

// CreditUsageByAccount sums ticket_sale ledger rows per account. Amounts are
// reported as positive usage.
func (d *DB) CreditUsageByAccount(ctx context.Context, rng Range) ([]AccountUsage, error) {
	var rows []AccountUsage
	q := d.Bun.NewSelect().
		TableExpr("credit_transactions AS ct").
		ColumnExpr("ca.id AS credit_account_id").
		ColumnExpr("ca.name AS account_name").
		ColumnExpr("COUNT(ct.id) AS sales").
		ColumnExpr("COALESCE(-SUM(ct.amount), 0.0) AS credit_used").
		Join("JOIN credit_accounts AS ca ON ca.id = ct.credit_account_id").
		Where("ct.transaction_type = ?", models.CreditTicketSale).
		GroupExpr("ca.id, ca.name").
		OrderExpr("ca.id ASC")
	if err := applyRange(q, "ct.created_at", rng).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("credit usage by account: %w", err)
	}
	return rows, nil
}
