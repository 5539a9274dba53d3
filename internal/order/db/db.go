package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// InsertOrder writes the order row and fills in its id.
func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	if _, err := idb.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (d *DB) InsertOrderMeals(ctx context.Context, idb bun.IDB, meals []models.OrderMeal) error {
	if len(meals) == 0 {
		return nil
	}
	if _, err := idb.NewInsert().Model(&meals).Exec(ctx); err != nil {
		return fmt.Errorf("insert order meals: %w", err)
	}
	return nil
}

// GetOrderDetails loads an order with its tickets, payments and meals.
func (d *DB) GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error) {
	details := &models.OrderDetails{
		Tickets:  []models.Ticket{},
		Payments: []models.Payment{},
		Meals:    []models.OrderMeal{},
	}
	err := d.Bun.NewSelect().Model(&details.Order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	if err := d.Bun.NewSelect().Model(&details.Tickets).Where("order_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("tickets for order %d: %w", id, err)
	}
	if err := d.Bun.NewSelect().Model(&details.Payments).Where("order_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("payments for order %d: %w", id, err)
	}
	if err := d.Bun.NewSelect().Model(&details.Meals).Where("order_id = ?", id).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("meals for order %d: %w", id, err)
	}
	return details, nil
}

// ---------------- MEAL CATALOG ----------------

// MealsByID looks up catalog prices. Unknown ids are simply absent from the
// result.
func (d *DB) MealsByID(ctx context.Context, idb bun.IDB, ids []int64) (map[int64]models.Meal, error) {
	out := make(map[int64]models.Meal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var meals []models.Meal
	if err := idb.NewSelect().Model(&meals).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("meal lookup: %w", err)
	}
	for _, m := range meals {
		out[m.ID] = m
	}
	return out, nil
}
