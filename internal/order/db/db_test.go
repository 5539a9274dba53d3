package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/database/testdb"
	"ms-sales/internal/models"
	"ms-sales/internal/order/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	bunDB := testdb.New(t)
	return &db.DB{Bun: bunDB}, bunDB
}

func TestInsertAndGetOrderDetails(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	meal := testdb.Meal(t, bunDB, "Pizza", 35)

	order := &models.Order{UserID: 4, Description: "walk-in", GrossTotal: 85, TotalAmount: 85}
	require.NoError(t, store.InsertOrder(ctx, bunDB, order))
	require.NotZero(t, order.ID)

	require.NoError(t, store.InsertOrderMeals(ctx, bunDB, []models.OrderMeal{
		{OrderID: order.ID, MealID: meal.ID, Quantity: 1, PriceAtOrder: 35},
	}))
	require.NoError(t, store.InsertOrderMeals(ctx, bunDB, nil))

	sold := 50.0
	ticket := models.Ticket{Status: models.TicketSold, Valid: true, OrderID: &order.ID, SoldPrice: &sold}
	_, err := bunDB.NewInsert().Model(&ticket).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewInsert().Model(&models.Payment{OrderID: order.ID, Method: models.PaymentCash, Amount: 85}).Exec(ctx)
	require.NoError(t, err)

	details, err := store.GetOrderDetails(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), details.Order.UserID)
	assert.Equal(t, 85.0, details.Order.GrossTotal)
	require.Len(t, details.Tickets, 1)
	assert.Equal(t, ticket.ID, details.Tickets[0].ID)
	require.Len(t, details.Payments, 1)
	assert.Equal(t, models.PaymentCash, details.Payments[0].Method)
	require.Len(t, details.Meals, 1)
	assert.Equal(t, 35.0, details.Meals[0].PriceAtOrder)
}

func TestGetOrderDetailsNotFound(t *testing.T) {
	store, _ := setupTestDB(t)

	_, err := store.GetOrderDetails(context.Background(), 404)
	var nf *apperr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestGetOrderDetailsEmptyCollections(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()

	order := &models.Order{UserID: 1, GrossTotal: 0, TotalAmount: 0}
	require.NoError(t, store.InsertOrder(ctx, bunDB, order))

	details, err := store.GetOrderDetails(ctx, order.ID)
	require.NoError(t, err)
	assert.NotNil(t, details.Tickets)
	assert.NotNil(t, details.Payments)
	assert.NotNil(t, details.Meals)
}

func TestMealsByID(t *testing.T) {
	store, bunDB := setupTestDB(t)
	ctx := context.Background()
	burger := testdb.Meal(t, bunDB, "Burger", 20)
	fries := testdb.Meal(t, bunDB, "Fries", 8.5)

	meals, err := store.MealsByID(ctx, bunDB, []int64{burger.ID, fries.ID, 999})
	require.NoError(t, err)
	assert.Len(t, meals, 2)
	assert.Equal(t, 8.5, meals[fries.ID].Price)
	_, ok := meals[999]
	assert.False(t, ok)

	meals, err = store.MealsByID(ctx, bunDB, nil)
	require.NoError(t, err)
	assert.Empty(t, meals)
}
