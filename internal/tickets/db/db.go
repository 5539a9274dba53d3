package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetTicketDetails loads a ticket with its type and, once sold, the user who
// sold it.
func (d *DB) GetTicketDetails(ctx context.Context, id int64) (*models.TicketDetails, error) {
	var details models.TicketDetails
	err := d.Bun.NewSelect().
		TableExpr("tickets AS t").
		ColumnExpr("t.id, t.ticket_type_id, t.status, t.valid, t.order_id, t.sold_at, t.sold_price").
		ColumnExpr("tt.category, tt.subcategory, tt.price, tt.description").
		ColumnExpr("u.id AS sold_by_id, u.name AS sold_by_name").
		Join("LEFT JOIN ticket_types AS tt ON tt.id = t.ticket_type_id").
		Join("LEFT JOIN orders AS o ON o.id = t.order_id").
		Join("LEFT JOIN users AS u ON u.id = o.user_id").
		Where("t.id = ?", id).
		Limit(1).
		Scan(ctx, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ticket", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return &details, nil
}

// GenerateTickets inserts available stock for each line and returns the new
// ids in insertion order.
func (d *DB) GenerateTickets(ctx context.Context, lines []models.GenerateLine) ([]int64, error) {
	var ids []int64
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var typeIDs []int64
		for _, line := range lines {
			if line.TicketTypeID != nil {
				typeIDs = append(typeIDs, *line.TicketTypeID)
			}
		}
		if err := requireActiveTypes(ctx, tx, typeIDs); err != nil {
			return err
		}

		var rows []models.Ticket
		for _, line := range lines {
			for i := 0; i < line.Quantity; i++ {
				rows = append(rows, models.Ticket{
					TicketTypeID: line.TicketTypeID,
					Status:       models.TicketAvailable,
					Valid:        true,
				})
			}
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return nil
	})
	return ids, err
}

// InsertSoldTickets creates tickets that are sold on creation. The rows get
// their ids filled in.
func (d *DB) InsertSoldTickets(ctx context.Context, idb bun.IDB, rows []models.Ticket) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if rows[i].Status != models.TicketSold || rows[i].OrderID == nil || rows[i].SoldPrice == nil {
			return fmt.Errorf("ticket row %d is not a complete sold row", i)
		}
	}
	if _, err := idb.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert sold tickets: %w", err)
	}
	return nil
}

// MarkTicketsSold moves available tickets to sold in one conditional update.
// If any ticket was claimed by someone else in the meantime the update
// touches fewer rows than requested and a TicketUnavailableError comes back;
// the caller must roll back.
func (d *DB) MarkTicketsSold(ctx context.Context, idb bun.IDB, orderID int64, prices map[int64]float64, soldAt time.Time) error {
	if len(prices) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var expr strings.Builder
	args := make([]interface{}, 0, len(ids)*2)
	expr.WriteString("sold_price = CASE id")
	for _, id := range ids {
		expr.WriteString(" WHEN ? THEN CAST(? AS NUMERIC)")
		args = append(args, id, prices[id])
	}
	expr.WriteString(" END")

	res, err := idb.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketSold).
		Set("order_id = ?", orderID).
		Set("sold_at = ?", soldAt).
		Set(expr.String(), args...).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", models.TicketAvailable).
		Where("valid = ?", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark tickets sold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark tickets sold: %w", err)
	}
	if int(affected) == len(ids) {
		return nil
	}

	// Report which ones were lost.
	var claimed []int64
	err = idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Column("id").
		Where("id IN (?)", bun.In(ids)).
		Where("order_id IS NULL OR order_id <> ?", orderID).
		Scan(ctx, &claimed)
	if err != nil {
		return fmt.Errorf("mark tickets sold: %w", err)
	}
	unavailable := &apperr.TicketUnavailableError{Unavailable: claimed}
	if unavailable.Empty() {
		unavailable.Unavailable = ids
	}
	return unavailable
}

// RefundTicket puts a sold ticket back on sale. Payments and ledger rows of
// the original order stay as they are.
func (d *DB) RefundTicket(ctx context.Context, id int64) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", models.TicketAvailable).
			Set("order_id = NULL").
			Set("sold_price = NULL").
			Set("sold_at = NULL").
			Where("id = ?", id).
			Where("status = ?", models.TicketSold).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("refund ticket %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}

		exists, err := tx.NewSelect().Model((*models.Ticket)(nil)).Where("id = ?", id).Exists(ctx)
		if err != nil {
			return fmt.Errorf("refund ticket %d: %w", id, err)
		}
		if !exists {
			return apperr.NotFound("ticket", id)
		}
		return &apperr.TicketUnavailableError{Unavailable: []int64{id}}
	})
}

// AssignTicketTypes sets or clears ticket_type_id for a batch of unsold
// tickets with a single UPDATE ... CASE statement.
func (d *DB) AssignTicketTypes(ctx context.Context, assignments []models.TicketAssignment) (models.AssignResult, error) {
	var result models.AssignResult
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result = models.AssignResult{}

		ids := make([]int64, 0, len(assignments))
		var typeIDs []int64
		for _, a := range assignments {
			ids = append(ids, a.TicketID)
			if a.TicketTypeID != nil {
				typeIDs = append(typeIDs, *a.TicketTypeID)
			}
		}

		var current []models.Ticket
		if err := tx.NewSelect().Model(&current).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
			return fmt.Errorf("load tickets: %w", err)
		}
		byID := make(map[int64]models.Ticket, len(current))
		for _, t := range current {
			byID[t.ID] = t
		}

		var missing, sold []int64
		for _, id := range ids {
			t, ok := byID[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case t.Status == models.TicketSold:
				sold = append(sold, id)
			}
		}
		if len(missing) > 0 {
			return apperr.Validation("ticket_id", "unknown tickets %v", missing)
		}
		if len(sold) > 0 {
			return &apperr.TicketUnavailableError{Unavailable: sold}
		}
		if err := requireActiveTypes(ctx, tx, typeIDs); err != nil {
			return err
		}

		var changed []models.TicketAssignment
		for _, a := range assignments {
			prev := byID[a.TicketID].TicketTypeID
			switch {
			case sameType(prev, a.TicketTypeID):
				result.Unchanged++
			case a.TicketTypeID == nil:
				result.Unassigned++
				changed = append(changed, a)
			default:
				result.Assigned++
				changed = append(changed, a)
			}
		}
		if len(changed) == 0 {
			return nil
		}

		var expr strings.Builder
		args := make([]interface{}, 0, len(changed)*2)
		changedIDs := make([]int64, 0, len(changed))
		expr.WriteString("ticket_type_id = CASE id")
		for _, a := range changed {
			expr.WriteString(" WHEN ? THEN CAST(? AS BIGINT)")
			args = append(args, a.TicketID, a.TicketTypeID)
			changedIDs = append(changedIDs, a.TicketID)
		}
		expr.WriteString(" END")

		res, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set(expr.String(), args...).
			Where("id IN (?)", bun.In(changedIDs)).
			Where("status = ?", models.TicketAvailable).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("assign ticket types: %w", err)
		}
		if n, _ := res.RowsAffected(); int(n) != len(changedIDs) {
			return &apperr.TicketUnavailableError{Unavailable: changedIDs}
		}
		return nil
	})
	return result, err
}

func sameType(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// requireActiveTypes rejects unknown or archived ticket types.
func requireActiveTypes(ctx context.Context, idb bun.IDB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var types []models.TicketType
	if err := idb.NewSelect().Model(&types).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return fmt.Errorf("load ticket types: %w", err)
	}
	known := make(map[int64]models.TicketType, len(types))
	for _, tt := range types {
		known[tt.ID] = tt
	}
	for _, id := range ids {
		tt, ok := known[id]
		if !ok {
			return apperr.Validation("ticket_type_id", "unknown ticket type %d", id)
		}
		if tt.Archived {
			return apperr.Validation("ticket_type_id", "ticket type %d is archived", id)
		}
	}
	return nil
}
