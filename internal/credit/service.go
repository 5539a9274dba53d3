// Package credit is the append-only credit ledger. Every balance change is a
// CreditTransaction row applied to the account's cached balance in the same
// database transaction.
package credit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/money"
)

type LedgerStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	InsertAccount(ctx context.Context, idb bun.IDB, acc *models.CreditAccount) error
	GetAccount(ctx context.Context, idb bun.IDB, id int64) (*models.CreditAccount, error)
	ListAccounts(ctx context.Context) ([]models.CreditAccount, error)
	AppendTransaction(ctx context.Context, idb bun.IDB, tx *models.CreditTransaction) (float64, error)
	Transactions(ctx context.Context, accountID int64, limit, offset int) ([]models.CreditTransaction, int, error)
	LedgerSum(ctx context.Context, idb bun.IDB, accountID int64) (float64, error)
	InsertLink(ctx context.Context, idb bun.IDB, link *models.CategoryCreditLink) (bool, error)
	DeleteLink(ctx context.Context, idb bun.IDB, category string, accountID int64) (bool, error)
}

type CategoryCatalog interface {
	CategoryExists(ctx context.Context, idb bun.IDB, category string) (bool, error)
}

type PaymentRecorder interface {
	InsertPayments(ctx context.Context, idb bun.IDB, payments []models.Payment) error
}

type StatusCache interface {
	Invalidate(ctx context.Context) error
}

type EventPublisher interface {
	PublishCreditTransaction(ctx context.Context, event models.CreditTransactionEvent) error
}

type Service struct {
	Store           LedgerStore
	Catalog         CategoryCatalog
	Payments        PaymentRecorder
	Cache           StatusCache
	Events          EventPublisher
	Logger          *logger.Logger
	AllowCreditDebt bool
}

// SaleLine is the credit-relevant part of one sold ticket line.
type SaleLine struct {
	CreditAccountID int64
	AccountName     string
	Subtotal        decimal.Decimal
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

var adjustableTypes = map[models.CreditTransactionType]bool{
	models.CreditManualAdjustment: true,
	models.CreditRefund:           true,
	models.CreditPayment:          true,
}

func (s *Service) CreateAccount(ctx context.Context, req models.CreateCreditAccountRequest) (*models.CreditAccount, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name", "is required")
	}

	acc := &models.CreditAccount{Name: name, Description: req.Description}
	var initial *models.CreditTransaction
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := s.Store.InsertAccount(ctx, tx, acc); err != nil {
			return err
		}
		if money.From(req.InitialBalance).IsZero() {
			return nil
		}
		initial = &models.CreditTransaction{
			CreditAccountID: acc.ID,
			Amount:          money.Float(money.From(req.InitialBalance)),
			TransactionType: models.CreditInitialBalance,
			Description:     "Initial balance",
		}
		balance, err := s.Store.AppendTransaction(ctx, tx, initial)
		if err != nil {
			return err
		}
		acc.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogLedger("CREATE", acc.ID, fmt.Sprintf("account %q opened with balance %.2f", acc.Name, acc.Balance))
	if initial != nil {
		s.publish(ctx, *initial, acc.Balance)
	}
	return acc, nil
}

// AdjustCredit appends one ledger row and reports the balance on either side
// of it.
func (s *Service) AdjustCredit(ctx context.Context, accountID int64, req models.AdjustCreditRequest) (*models.AdjustCreditResult, error) {
	if req.TransactionType == "" {
		req.TransactionType = models.CreditManualAdjustment
	}
	if !adjustableTypes[req.TransactionType] {
		return nil, apperr.Validation("transaction_type", "must be one of manual_adjustment, refund, payment")
	}
	amount := money.From(req.Amount)
	if amount.IsZero() {
		return nil, apperr.Validation("amount", "must not be zero")
	}

	row := &models.CreditTransaction{
		CreditAccountID: accountID,
		Amount:          money.Float(amount),
		TransactionType: req.TransactionType,
		Description:     req.Description,
	}
	var after float64
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		after, err = s.Store.AppendTransaction(ctx, tx, row)
		if err != nil {
			return err
		}
		if !s.AllowCreditDebt && after < 0 && amount.IsNegative() {
			acc, err := s.Store.GetAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			return &apperr.InsufficientCreditError{
				CreditAccountID: accountID,
				AccountName:     acc.Name,
				Balance:         money.Float(money.From(after).Sub(amount)),
				Requested:       money.Float(amount.Neg()),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	before := money.Float(money.From(after).Sub(amount))
	s.Logger.LogLedger("ADJUST", accountID, fmt.Sprintf("%s %.2f: %.2f -> %.2f", row.TransactionType, row.Amount, before, after))
	s.publish(ctx, *row, after)
	return &models.AdjustCreditResult{Transaction: *row, BalanceBefore: before, BalanceAfter: after}, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID int64) (*models.CreditAccount, error) {
	return s.Store.GetAccount(ctx, nil, accountID)
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.CreditAccount, error) {
	return s.Store.ListAccounts(ctx)
}

// Transactions pages through an account's ledger, newest first. page starts
// at 1.
func (s *Service) Transactions(ctx context.Context, accountID int64, page, limit int) (*models.CreditTransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if _, err := s.Store.GetAccount(ctx, nil, accountID); err != nil {
		return nil, err
	}
	rows, total, err := s.Store.Transactions(ctx, accountID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &models.CreditTransactionPage{Transactions: rows, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) LinkCategory(ctx context.Context, req models.CategoryLinkRequest) error {
	category := strings.TrimSpace(req.CategoryName)
	if category == "" {
		return apperr.Validation("category_name", "is required")
	}
	if req.CreditAccountID <= 0 {
		return apperr.Validation("credit_account_id", "must be a positive integer")
	}

	var inserted bool
	err := s.Store.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := s.Catalog.CategoryExists(ctx, tx, category)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.Validation("category_name", "unknown category %q", category)
		}
		if _, err := s.Store.GetAccount(ctx, tx, req.CreditAccountID); err != nil {
			return err
		}
		inserted, err = s.Store.InsertLink(ctx, tx, &models.CategoryCreditLink{
			CategoryName:    category,
			CreditAccountID: req.CreditAccountID,
		})
		return err
	})
	if err != nil {
		return err
	}

	if inserted {
		s.Logger.LogLedger("LINK", req.CreditAccountID, fmt.Sprintf("category %q linked", category))
		s.invalidate(ctx)
	}
	return nil
}

func (s *Service) UnlinkCategory(ctx context.Context, req models.CategoryLinkRequest) error {
	category := strings.TrimSpace(req.CategoryName)
	if category == "" {
		return apperr.Validation("category_name", "is required")
	}
	deleted, err := s.Store.DeleteLink(ctx, nil, category, req.CreditAccountID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("category link", fmt.Sprintf("%s/%d", category, req.CreditAccountID))
	}
	s.Logger.LogLedger("UNLINK", req.CreditAccountID, fmt.Sprintf("category %q unlinked", category))
	s.invalidate(ctx)
	return nil
}

// Reconcile compares the cached balance with the sum of the ledger.
func (s *Service) Reconcile(ctx context.Context, accountID int64) (*models.ReconcileResult, error) {
	acc, err := s.Store.GetAccount(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	sum, err := s.Store.LedgerSum(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	result := &models.ReconcileResult{
		CreditAccountID: accountID,
		CachedBalance:   acc.Balance,
		LedgerBalance:   money.Float(money.From(sum)),
		Consistent:      money.From(acc.Balance).Equal(money.From(sum)),
	}
	if !result.Consistent {
		s.Logger.Error("LEDGER", fmt.Sprintf("account %d drifted: cached %.2f, ledger %.2f",
			accountID, result.CachedBalance, result.LedgerBalance))
	}
	return result, nil
}

// ProcessTicketSaleCredit books a credit sale inside the caller's
// transaction. Lines are grouped per account and each account gets one
// ticket_sale row of minus its subtotal, mirrored by an internal CREDIT
// payment row. The whole meal total is charged to the lowest account id.
func (s *Service) ProcessTicketSaleCredit(ctx context.Context, idb bun.IDB, orderID int64, lines []SaleLine, mealTotal decimal.Decimal) ([]models.CreditUsage, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("tickets", "credit sale without credit-linked tickets")
	}

	totals := map[int64]decimal.Decimal{}
	names := map[int64]string{}
	for _, line := range lines {
		totals[line.CreditAccountID] = totals[line.CreditAccountID].Add(line.Subtotal)
		names[line.CreditAccountID] = line.AccountName
	}
	accountIDs := make([]int64, 0, len(totals))
	for id := range totals {
		accountIDs = append(accountIDs, id)
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })
	totals[accountIDs[0]] = totals[accountIDs[0]].Add(mealTotal)

	usages := make([]models.CreditUsage, 0, len(accountIDs))
	payments := make([]models.Payment, 0, len(accountIDs))
	for _, id := range accountIDs {
		used := totals[id].Round(money.Places)
		row := &models.CreditTransaction{
			CreditAccountID: id,
			Amount:          money.Float(used.Neg()),
			TransactionType: models.CreditTicketSale,
			Description:     fmt.Sprintf("Ticket sale for order #%d", orderID),
			OrderID:         &orderID,
		}
		after, err := s.Store.AppendTransaction(ctx, idb, row)
		if err != nil {
			return nil, err
		}
		if !s.AllowCreditDebt && after < 0 {
			return nil, &apperr.InsufficientCreditError{
				CreditAccountID: id,
				AccountName:     names[id],
				Balance:         money.Float(money.From(after).Add(used)),
				Requested:       money.Float(used),
			}
		}

		usages = append(usages, models.CreditUsage{
			Transaction:  *row,
			AccountName:  names[id],
			CreditUsed:   money.Float(used),
			NewBalance:   after,
			WentIntoDebt: after < 0,
		})
		payments = append(payments, models.Payment{
			OrderID:   orderID,
			Method:    models.PaymentCredit,
			Amount:    money.Float(used),
			Reference: fmt.Sprintf("credit_transaction:%d", row.ID),
		})
	}

	if err := s.Payments.InsertPayments(ctx, idb, payments); err != nil {
		return nil, err
	}
	return usages, nil
}

// PublishUsage emits ledger events for a committed sale.
func (s *Service) PublishUsage(ctx context.Context, usages []models.CreditUsage) {
	for _, u := range usages {
		s.publish(ctx, u.Transaction, u.NewBalance)
	}
}

func (s *Service) publish(ctx context.Context, tx models.CreditTransaction, balance float64) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishCreditTransaction(ctx, models.NewCreditTransactionEvent(tx, balance)); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish credit transaction %d: %v", tx.ID, err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to invalidate credit status cache: %v", err))
	}
}
