package storage

import (
	"context"

	"github.com/uptrace/bun"

	"ms-sales/internal/models"
)

// Store records the payment instruments applied to orders. Writes take the
// caller's transaction so they commit or roll back with the sale.
type Store interface {
	InsertPayments(ctx context.Context, idb bun.IDB, payments []models.Payment) error
	SumByOrder(ctx context.Context, idb bun.IDB, orderID int64) (map[models.PaymentMethod]float64, error)

	HealthCheck(ctx context.Context) error
}
