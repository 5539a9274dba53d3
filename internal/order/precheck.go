package order

import (
	"context"
	"fmt"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
	ticket_db "ms-sales/internal/tickets/db"
)

// CheckCreditStatus reports the credit linkage of each ticket type and the
// payment mode a checkout of them would need. It never writes to the
// database. A mixed set is reported, not returned as an error.
func (s *OrderService) CheckCreditStatus(ctx context.Context, ticketTypeIDs []int64) (*models.CreditStatusResult, error) {
	if len(ticketTypeIDs) == 0 {
		return nil, apperr.Validation("ticketTypeIds", "at least one ticket type is required")
	}
	ids := make([]int64, 0, len(ticketTypeIDs))
	seen := map[int64]bool{}
	for i, id := range ticketTypeIDs {
		if id <= 0 {
			return nil, apperr.Validation(fmt.Sprintf("ticketTypeIds[%d]", i), "must be a positive integer")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	known, err := s.lookupTypes(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &models.CreditStatusResult{TicketTypes: make([]models.TicketTypeCredit, 0, len(ids))}
	links := make([]CategoryLink, 0, len(ids))
	for _, id := range ids {
		tc := known[id]
		result.TicketTypes = append(result.TicketTypes, tc)
		links = append(links, CategoryLink{Category: tc.Category, CreditLinked: tc.HasCredit()})
	}
	c := Classify(links)
	result.PaymentMode = string(c.Mode)
	result.CreditCategories = c.CreditCategories
	result.NonCreditCategories = c.NonCreditCategories
	return result, nil
}

// lookupTypes serves ticket types from the cache and loads the rest.
func (s *OrderService) lookupTypes(ctx context.Context, ids []int64) (map[int64]models.TicketTypeCredit, error) {
	known := map[int64]models.TicketTypeCredit{}
	misses := ids
	cached := false
	var generation int64
	if s.Cache != nil {
		hits, rest, gen, err := s.Cache.GetMany(ctx, ids)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Credit status cache unavailable: %v", err))
		} else {
			known, misses, generation, cached = hits, rest, gen, true
		}
	}
	if len(misses) == 0 {
		return known, nil
	}

	rows, err := s.Inventory.ResolveTicketTypes(ctx, s.DB, misses)
	if err != nil {
		return nil, err
	}
	resolved, err := ticket_db.CollapseTypes(rows)
	if err != nil {
		return nil, err
	}
	for _, id := range misses {
		tc, ok := resolved[id]
		if !ok {
			return nil, apperr.NotFound("ticket type", id)
		}
		known[id] = tc
	}

	if cached {
		if err := s.Cache.SetMany(ctx, generation, resolved); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to cache credit status: %v", err))
		}
	}
	return known, nil
}
