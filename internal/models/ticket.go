package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketSold      TicketStatus = "sold"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID           int64        `bun:"id,pk,autoincrement" json:"id"`
	TicketTypeID *int64       `bun:"ticket_type_id" json:"ticket_type_id"`
	Status       TicketStatus `bun:"status,notnull" json:"status"`
	Valid        bool         `bun:"valid,notnull" json:"valid"`
	OrderID      *int64       `bun:"order_id" json:"order_id"`
	SoldAt       *time.Time   `bun:"sold_at" json:"sold_at"`
	SoldPrice    *float64     `bun:"sold_price,type:numeric(12,2)" json:"sold_price"`
	CreatedAt    time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID          int64   `bun:"id,pk,autoincrement" json:"id"`
	Category    string  `bun:"category,notnull" json:"category"`
	Subcategory string  `bun:"subcategory,notnull" json:"subcategory"`
	Price       float64 `bun:"price,notnull,type:numeric(12,2)" json:"price"`
	Description string  `bun:"description" json:"description"`
	Archived    bool    `bun:"archived,notnull" json:"archived"`
}

// TicketDetails is a ticket joined with its type and, for sold tickets, the
// user who sold it.
type TicketDetails struct {
	ID           int64        `bun:"id" json:"id"`
	TicketTypeID *int64       `bun:"ticket_type_id" json:"ticket_type_id"`
	Status       TicketStatus `bun:"status" json:"status"`
	Valid        bool         `bun:"valid" json:"valid"`
	OrderID      *int64       `bun:"order_id" json:"order_id"`
	SoldAt       *time.Time   `bun:"sold_at" json:"sold_at"`
	SoldPrice    *float64     `bun:"sold_price" json:"sold_price"`
	Category     *string      `bun:"category" json:"category"`
	Subcategory  *string      `bun:"subcategory" json:"subcategory"`
	Price        *float64     `bun:"price" json:"price"`
	Description  *string      `bun:"description" json:"description"`
	SoldByID     *int64       `bun:"sold_by_id" json:"sold_by_id,omitempty"`
	SoldByName   *string      `bun:"sold_by_name" json:"sold_by_name,omitempty"`
}

// TicketTypeCredit is one catalog row resolved together with its credit
// linkage. A category linked to several accounts yields one row per link.
type TicketTypeCredit struct {
	TicketTypeID      int64    `bun:"ticket_type_id" json:"ticketTypeId"`
	Category          string   `bun:"category" json:"category"`
	Subcategory       string   `bun:"subcategory" json:"subcategory"`
	Price             float64  `bun:"price" json:"price"`
	Archived          bool     `bun:"archived" json:"-"`
	CreditAccountID   *int64   `bun:"credit_account_id" json:"creditAccountId"`
	CreditAccountName *string  `bun:"credit_account_name" json:"creditAccountName"`
	CreditBalance     *float64 `bun:"credit_balance" json:"-"`
}

// HasCredit reports whether the row carries a credit account link.
func (t TicketTypeCredit) HasCredit() bool {
	return t.CreditAccountID != nil
}

// SaleTicket is an existing ticket row resolved for checkout. Catalog
// columns are nil for unassigned tickets.
type SaleTicket struct {
	TicketID          int64        `bun:"ticket_id"`
	Status            TicketStatus `bun:"status"`
	Valid             bool         `bun:"valid"`
	TicketTypeID      *int64       `bun:"ticket_type_id"`
	Category          *string      `bun:"category"`
	Subcategory       *string      `bun:"subcategory"`
	Price             *float64     `bun:"price"`
	Archived          *bool        `bun:"archived"`
	CreditAccountID   *int64       `bun:"credit_account_id"`
	CreditAccountName *string      `bun:"credit_account_name"`
}

// TypeCredit returns the catalog part of an assigned ticket.
func (s SaleTicket) TypeCredit() TicketTypeCredit {
	tc := TicketTypeCredit{
		CreditAccountID:   s.CreditAccountID,
		CreditAccountName: s.CreditAccountName,
	}
	if s.TicketTypeID != nil {
		tc.TicketTypeID = *s.TicketTypeID
	}
	if s.Category != nil {
		tc.Category = *s.Category
	}
	if s.Subcategory != nil {
		tc.Subcategory = *s.Subcategory
	}
	if s.Price != nil {
		tc.Price = *s.Price
	}
	if s.Archived != nil {
		tc.Archived = *s.Archived
	}
	return tc
}

type TicketLine struct {
	TicketTypeID int64 `json:"ticket_type_id"`
	Quantity     int   `json:"quantity"`
}

type TicketAssignment struct {
	TicketID     int64  `json:"ticket_id"`
	TicketTypeID *int64 `json:"ticket_type_id"`
}

type AssignResult struct {
	Assigned   int `json:"assigned"`
	Unassigned int `json:"unassigned"`
	Unchanged  int `json:"unchanged"`
}

type GenerateLine struct {
	TicketTypeID *int64 `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}
