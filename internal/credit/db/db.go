package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
)

const uniqueViolation = "23505"

type DB struct {
	Bun *bun.DB
}

// conn falls back to the pool when no transaction is given.
func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, nil, fn)
}

// InsertAccount creates an account with a zero balance. The balance only
// moves through AppendTransaction.
func (d *DB) InsertAccount(ctx context.Context, idb bun.IDB, acc *models.CreditAccount) error {
	taken, err := idb.NewSelect().Model((*models.CreditAccount)(nil)).Where("name = ?", acc.Name).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check account name: %w", err)
	}
	if taken {
		return apperr.Conflict("credit account %q already exists", acc.Name)
	}

	acc.Balance = 0
	if _, err := idb.NewInsert().Model(acc).Exec(ctx); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperr.Conflict("credit account %q already exists", acc.Name)
		}
		return fmt.Errorf("insert credit account: %w", err)
	}
	return nil
}

func (d *DB) GetAccount(ctx context.Context, idb bun.IDB, id int64) (*models.CreditAccount, error) {
	var acc models.CreditAccount
	err := d.conn(idb).NewSelect().Model(&acc).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("credit account", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credit account %d: %w", id, err)
	}
	return &acc, nil
}

func (d *DB) ListAccounts(ctx context.Context) ([]models.CreditAccount, error) {
	accounts := []models.CreditAccount{}
	if err := d.Bun.NewSelect().Model(&accounts).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list credit accounts: %w", err)
	}
	return accounts, nil
}

// AppendTransaction inserts one ledger row and applies its amount to the
// cached balance with an in-database increment. It returns the balance after
// the row. Must run inside the caller's transaction.
func (d *DB) AppendTransaction(ctx context.Context, idb bun.IDB, tx *models.CreditTransaction) (float64, error) {
	res, err := idb.NewUpdate().
		Model((*models.CreditAccount)(nil)).
		Set("balance = balance + ?", tx.Amount).
		Where("id = ?", tx.CreditAccountID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, apperr.NotFound("credit account", tx.CreditAccountID)
	}

	if _, err := idb.NewInsert().Model(tx).Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert credit transaction: %w", err)
	}

	var balance float64
	err = idb.NewSelect().
		Model((*models.CreditAccount)(nil)).
		Column("balance").
		Where("id = ?", tx.CreditAccountID).
		Scan(ctx, &balance)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Transactions returns one page of an account's ledger, newest first, and
// the total row count.
func (d *DB) Transactions(ctx context.Context, accountID int64, limit, offset int) ([]models.CreditTransaction, int, error) {
	rows := []models.CreditTransaction{}
	total, err := d.Bun.NewSelect().
		Model(&rows).
		Where("credit_account_id = ?", accountID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list credit transactions: %w", err)
	}
	return rows, total, nil
}

func (d *DB) TransactionsByOrder(ctx context.Context, idb bun.IDB, orderID int64) ([]models.CreditTransaction, error) {
	rows := []models.CreditTransaction{}
	err := d.conn(idb).NewSelect().
		Model(&rows).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credit transactions for order %d: %w", orderID, err)
	}
	return rows, nil
}

// LedgerSum adds up every ledger row of the account.
func (d *DB) LedgerSum(ctx context.Context, idb bun.IDB, accountID int64) (float64, error) {
	var sum float64
	err := d.conn(idb).NewSelect().
		Model((*models.CreditTransaction)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0.0)").
		Where("credit_account_id = ?", accountID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger for account %d: %w", accountID, err)
	}
	return sum, nil
}

// InsertLink adds a category link, ignoring duplicates. It reports whether a
// row was written.
func (d *DB) InsertLink(ctx context.Context, idb bun.IDB, link *models.CategoryCreditLink) (bool, error) {
	res, err := idb.NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("link category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *DB) DeleteLink(ctx context.Context, idb bun.IDB, category string, accountID int64) (bool, error) {
	res, err := d.conn(idb).NewDelete().
		Model((*models.CategoryCreditLink)(nil)).
		Where("category_name = ?", category).
		Where("credit_account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("unlink category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
