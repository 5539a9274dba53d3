package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CreditTransactionType string

const (
	CreditInitialBalance   CreditTransactionType = "initial_balance"
	CreditManualAdjustment CreditTransactionType = "manual_adjustment"
	CreditTicketSale       CreditTransactionType = "ticket_sale"
	CreditRefund           CreditTransactionType = "refund"
	CreditPayment          CreditTransactionType = "payment"
)

type CreditAccount struct {
	bun.BaseModel `bun:"table:credit_accounts,alias:ca"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Balance     float64   `bun:"balance,notnull,type:numeric(14,2)" json:"balance"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// CreditTransaction is an append-only ledger entry. Negative amounts are
// deductions.
type CreditTransaction struct {
	bun.BaseModel `bun:"table:credit_transactions,alias:ct"`

	ID              int64                 `bun:"id,pk,autoincrement" json:"id"`
	CreditAccountID int64                 `bun:"credit_account_id,notnull" json:"credit_account_id"`
	Amount          float64               `bun:"amount,notnull,type:numeric(14,2)" json:"amount"`
	TransactionType CreditTransactionType `bun:"transaction_type,notnull" json:"transaction_type"`
	Description     string                `bun:"description" json:"description"`
	OrderID         *int64                `bun:"order_id" json:"order_id"`
	CreatedAt       time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type CategoryCreditLink struct {
	bun.BaseModel `bun:"table:category_credit_links,alias:ccl"`

	CategoryName    string `bun:"category_name,pk" json:"category_name"`
	CreditAccountID int64  `bun:"credit_account_id,pk" json:"credit_account_id"`
}

type CreateCreditAccountRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	InitialBalance float64 `json:"initial_balance"`
}

type AdjustCreditRequest struct {
	Amount          float64               `json:"amount"`
	Description     string                `json:"description"`
	TransactionType CreditTransactionType `json:"transaction_type"`
}

type AdjustCreditResult struct {
	Transaction   CreditTransaction `json:"transaction"`
	BalanceBefore float64           `json:"balance_before"`
	BalanceAfter  float64           `json:"balance_after"`
}

type CategoryLinkRequest struct {
	CategoryName    string `json:"category_name"`
	CreditAccountID int64  `json:"credit_account_id"`
}

// CreditUsage describes the ledger effect of one sale on one account.
type CreditUsage struct {
	Transaction  CreditTransaction `json:"transaction"`
	AccountName  string            `json:"account_name"`
	CreditUsed   float64           `json:"credit_used"`
	NewBalance   float64           `json:"new_balance"`
	WentIntoDebt bool              `json:"went_into_debt"`
}

type CreditTransactionPage struct {
	Transactions []CreditTransaction `json:"transactions"`
	Total        int                 `json:"total"`
	Page         int                 `json:"page"`
	Limit        int                 `json:"limit"`
}

type ReconcileResult struct {
	CreditAccountID int64   `json:"credit_account_id"`
	CachedBalance   float64 `json:"cached_balance"`
	LedgerBalance   float64 `json:"ledger_balance"`
	Consistent      bool    `json:"consistent"`
}
