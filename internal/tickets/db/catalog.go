package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
)

// ResolveTicketTypes returns the requested types with their credit linkage.
// A category linked to several accounts yields one row per account.
func (d *DB) ResolveTicketTypes(ctx context.Context, idb bun.IDB, ids []int64) ([]models.TicketTypeCredit, error) {
	var rows []models.TicketTypeCredit
	if len(ids) == 0 {
		return rows, nil
	}
	err := idb.NewSelect().
		TableExpr("ticket_types AS tt").
		ColumnExpr("tt.id AS ticket_type_id, tt.category, tt.subcategory, tt.price, tt.archived").
		ColumnExpr("ca.id AS credit_account_id, ca.name AS credit_account_name, ca.balance AS credit_balance").
		Join("LEFT JOIN category_credit_links AS ccl ON ccl.category_name = tt.category").
		Join("LEFT JOIN credit_accounts AS ca ON ca.id = ccl.credit_account_id").
		Where("tt.id IN (?)", bun.In(ids)).
		OrderExpr("tt.id ASC, ca.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("resolve ticket types: %w", err)
	}
	return rows, nil
}

// ResolveTicketsForSale loads existing tickets with their type and credit
// linkage. Unassigned tickets come back with nil catalog columns.
func (d *DB) ResolveTicketsForSale(ctx context.Context, idb bun.IDB, ids []int64) ([]models.SaleTicket, error) {
	var rows []models.SaleTicket
	if len(ids) == 0 {
		return rows, nil
	}
	err := idb.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.id AS ticket_id, t.status, t.valid, t.ticket_type_id").
		ColumnExpr("tt.category, tt.subcategory, tt.price, tt.archived").
		ColumnExpr("ca.id AS credit_account_id, ca.name AS credit_account_name").
		Join("LEFT JOIN ticket_types AS tt ON tt.id = t.ticket_type_id").
		Join("LEFT JOIN category_credit_links AS ccl ON ccl.category_name = tt.category").
		Join("LEFT JOIN credit_accounts AS ca ON ca.id = ccl.credit_account_id").
		Where("t.id IN (?)", bun.In(ids)).
		OrderExpr("t.id ASC, ca.id ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("resolve tickets for sale: %w", err)
	}
	return rows, nil
}

// CollapseTypes reduces catalog rows to one entry per ticket type. A type
// whose category reaches more than one credit account is ambiguous.
func CollapseTypes(rows []models.TicketTypeCredit) (map[int64]models.TicketTypeCredit, error) {
	out := make(map[int64]models.TicketTypeCredit, len(rows))
	accounts := map[int64][]int64{}
	for _, row := range rows {
		if _, seen := out[row.TicketTypeID]; !seen {
			out[row.TicketTypeID] = row
		}
		if row.CreditAccountID != nil {
			accounts[row.TicketTypeID] = append(accounts[row.TicketTypeID], *row.CreditAccountID)
		}
	}
	for typeID, ids := range accounts {
		if len(ids) > 1 {
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			return nil, &apperr.AmbiguousCreditLinkError{Category: out[typeID].Category, AccountIDs: ids}
		}
	}
	return out, nil
}

// CollapseSaleTickets is CollapseTypes for existing tickets.
func CollapseSaleTickets(rows []models.SaleTicket) (map[int64]models.SaleTicket, error) {
	out := make(map[int64]models.SaleTicket, len(rows))
	accounts := map[int64][]int64{}
	for _, row := range rows {
		if _, seen := out[row.TicketID]; !seen {
			out[row.TicketID] = row
		}
		if row.CreditAccountID != nil {
			accounts[row.TicketID] = append(accounts[row.TicketID], *row.CreditAccountID)
		}
	}
	for ticketID, ids := range accounts {
		if len(ids) > 1 {
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			category := ""
			if c := out[ticketID].Category; c != nil {
				category = *c
			}
			return nil, &apperr.AmbiguousCreditLinkError{Category: category, AccountIDs: ids}
		}
	}
	return out, nil
}

// CategoryExists reports whether any ticket type carries the category.
func (d *DB) CategoryExists(ctx context.Context, idb bun.IDB, category string) (bool, error) {
	exists, err := idb.NewSelect().
		Model((*models.TicketType)(nil)).
		Where("category = ?", category).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("category lookup: %w", err)
	}
	return exists, nil
}
