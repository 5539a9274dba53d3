package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-sales/internal/database/testdb"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/payment/storage"
)

func TestInsertAndSumPayments(t *testing.T) {
	bunDB := testdb.New(t)
	store := storage.NewPostgreSQLStore(bunDB, logger.Discard())
	ctx := context.Background()

	order := models.Order{UserID: 1, GrossTotal: 120, TotalAmount: 120}
	_, err := bunDB.NewInsert().Model(&order).Exec(ctx)
	require.NoError(t, err)

	err = bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return store.InsertPayments(ctx, tx, []models.Payment{
			{OrderID: order.ID, Method: models.PaymentCash, Amount: 60},
			{OrderID: order.ID, Method: models.PaymentCash, Amount: 40},
			{OrderID: order.ID, Method: models.PaymentDiscount, Amount: 20},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 3, testdb.Count(t, bunDB, (*models.Payment)(nil)))

	sums, err := store.SumByOrder(ctx, bunDB, order.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100, sums[models.PaymentCash], 0.001)
	assert.InDelta(t, 20, sums[models.PaymentDiscount], 0.001)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestInsertPaymentsRejectsBadRows(t *testing.T) {
	bunDB := testdb.New(t)
	store := storage.NewPostgreSQLStore(bunDB, logger.Discard())
	ctx := context.Background()

	assert.Error(t, store.InsertPayments(ctx, bunDB, []models.Payment{{Method: models.PaymentCash, Amount: 1}}))
	assert.Error(t, store.InsertPayments(ctx, bunDB, []models.Payment{{OrderID: 1, Method: models.PaymentCash, Amount: -1}}))
	assert.NoError(t, store.InsertPayments(ctx, bunDB, nil))
	assert.Equal(t, 0, testdb.Count(t, bunDB, (*models.Payment)(nil)))
}
