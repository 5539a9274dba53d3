// Package testdb builds throwaway in-memory SQLite databases with the sales
// schema for package tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-sales/internal/models"
)

var tables = []interface{}{
	(*models.User)(nil),
	(*models.TicketType)(nil),
	(*models.Ticket)(nil),
	(*models.CreditAccount)(nil),
	(*models.CreditTransaction)(nil),
	(*models.CategoryCreditLink)(nil),
	(*models.Order)(nil),
	(*models.Payment)(nil),
	(*models.Meal)(nil),
	(*models.OrderMeal)(nil),
}

// SQLite has no fixed-point type and hands whole NUMERIC values back as
// integers, which do not scan into float64 money fields.
var numericColumn = regexp.MustCompile(`(?i)\bnumeric\(\d+,\s*\d+\)`)

// New returns a fresh database. A single connection is kept open so that
// concurrent transactions serialize the way row locks would in Postgres.
func New(t testing.TB) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range tables {
		ddl := db.NewCreateTable().Model(model).IfNotExists().String()
		_, err := db.ExecContext(ctx, numericColumn.ReplaceAllString(ddl, "REAL"))
		require.NoError(t, err)
	}
	return db
}

func TicketType(t testing.TB, db bun.IDB, category, subcategory string, price float64) models.TicketType {
	t.Helper()
	tt := models.TicketType{Category: category, Subcategory: subcategory, Price: price}
	_, err := db.NewInsert().Model(&tt).Exec(context.Background())
	require.NoError(t, err)
	return tt
}

// Tickets inserts n available, valid tickets. A nil type leaves them
// unassigned.
func Tickets(t testing.TB, db bun.IDB, typeID *int64, n int) []models.Ticket {
	t.Helper()
	rows := make([]models.Ticket, n)
	for i := range rows {
		rows[i] = models.Ticket{TicketTypeID: typeID, Status: models.TicketAvailable, Valid: true}
	}
	_, err := db.NewInsert().Model(&rows).Exec(context.Background())
	require.NoError(t, err)
	return rows
}

// Account inserts a credit account together with its initial_balance row.
func Account(t testing.TB, db bun.IDB, name string, balance float64) models.CreditAccount {
	t.Helper()
	ctx := context.Background()
	acc := models.CreditAccount{Name: name, Balance: balance}
	_, err := db.NewInsert().Model(&acc).Exec(ctx)
	require.NoError(t, err)
	if balance != 0 {
		_, err = db.NewInsert().Model(&models.CreditTransaction{
			CreditAccountID: acc.ID,
			Amount:          balance,
			TransactionType: models.CreditInitialBalance,
		}).Exec(ctx)
		require.NoError(t, err)
	}
	return acc
}

func Link(t testing.TB, db bun.IDB, category string, accountID int64) {
	t.Helper()
	_, err := db.NewInsert().
		Model(&models.CategoryCreditLink{CategoryName: category, CreditAccountID: accountID}).
		Exec(context.Background())
	require.NoError(t, err)
}

func Meal(t testing.TB, db bun.IDB, name string, price float64) models.Meal {
	t.Helper()
	m := models.Meal{Name: name, Price: price}
	_, err := db.NewInsert().Model(&m).Exec(context.Background())
	require.NoError(t, err)
	return m
}

func User(t testing.TB, db bun.IDB, name string) models.User {
	t.Helper()
	u := models.User{Name: name}
	_, err := db.NewInsert().Model(&u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

// Count returns the number of rows in the table behind model.
func Count(t testing.TB, db bun.IDB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

// Snapshot counts every sale-related table, for before/after comparisons.
func Snapshot(t testing.TB, db bun.IDB) map[string]int {
	t.Helper()
	sold, err := db.NewSelect().Model((*models.Ticket)(nil)).
		Where("status = ?", models.TicketSold).Count(context.Background())
	require.NoError(t, err)
	return map[string]int{
		"orders":              Count(t, db, (*models.Order)(nil)),
		"payments":            Count(t, db, (*models.Payment)(nil)),
		"credit_transactions": Count(t, db, (*models.CreditTransaction)(nil)),
		"order_meals":         Count(t, db, (*models.OrderMeal)(nil)),
		"tickets":             Count(t, db, (*models.Ticket)(nil)),
		"sold_tickets":        sold,
	}
}

func Int64(v int64) *int64 { return &v }
