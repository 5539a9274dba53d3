package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-sales/internal/logger"
	"ms-sales/internal/models"
)

type PostgreSQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

func NewPostgreSQLStore(db *bun.DB, log *logger.Logger) *PostgreSQLStore {
	return &PostgreSQLStore{db: db, log: log}
}

// InsertPayments writes every row in one statement and fills in the ids.
func (s *PostgreSQLStore) InsertPayments(ctx context.Context, idb bun.IDB, payments []models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	for i, p := range payments {
		if p.OrderID == 0 {
			return fmt.Errorf("payment %d has no order", i)
		}
		if p.Amount < 0 {
			return fmt.Errorf("payment %d has negative amount %.2f", i, p.Amount)
		}
	}

	if _, err := idb.NewInsert().Model(&payments).Exec(ctx); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payments for order %d: %s", payments[0].OrderID, err.Error()))
		return fmt.Errorf("failed to save payments: %w", err)
	}

	s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("Saved %d payments for order %d", len(payments), payments[0].OrderID))
	return nil
}

type methodTotal struct {
	Method models.PaymentMethod `bun:"method"`
	Total  float64              `bun:"total"`
}

// SumByOrder totals the recorded amounts per method.
func (s *PostgreSQLStore) SumByOrder(ctx context.Context, idb bun.IDB, orderID int64) (map[models.PaymentMethod]float64, error) {
	var rows []methodTotal
	err := idb.NewSelect().
		Model((*models.Payment)(nil)).
		Column("method").
		ColumnExpr("COALESCE(SUM(amount), 0.0) AS total").
		Where("order_id = ?", orderID).
		Group("method").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	out := make(map[models.PaymentMethod]float64, len(rows))
	for _, r := range rows {
		out[r.Method] = r.Total
	}
	return out, nil
}

func (s *PostgreSQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
