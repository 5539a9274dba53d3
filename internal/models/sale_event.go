package models

import (
	"time"

	"github.com/google/uuid"
)

// SaleCompletedEvent is published after a checkout commits.
type SaleCompletedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	OrderID     int64     `json:"order_id"`
	UserID      int64     `json:"user_id"`
	PaymentMode string    `json:"payment_mode"`
	TicketIDs   []int64   `json:"ticket_ids"`
	GrossTotal  float64   `json:"gross_total"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewSaleCompletedEvent builds the event for a committed sale.
func NewSaleCompletedEvent(result SaleResult) SaleCompletedEvent {
	return SaleCompletedEvent{
		EventID:     uuid.New(),
		OrderID:     result.Order.ID,
		UserID:      result.Order.UserID,
		PaymentMode: result.PaymentMode,
		TicketIDs:   result.TicketIDs,
		GrossTotal:  result.GrossTotal,
		OccurredAt:  time.Now().UTC(),
	}
}

// CreditTransactionEvent is published for every committed ledger row. The
// ledger reconciler consumes it.
type CreditTransactionEvent struct {
	EventID     uuid.UUID         `json:"event_id"`
	Transaction CreditTransaction `json:"transaction"`
	NewBalance  float64           `json:"new_balance"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func NewCreditTransactionEvent(tx CreditTransaction, newBalance float64) CreditTransactionEvent {
	return CreditTransactionEvent{
		EventID:     uuid.New(),
		Transaction: tx,
		NewBalance:  newBalance,
		OccurredAt:  time.Now().UTC(),
	}
}
