package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentVisa         PaymentMethod = "visa"
	PaymentVodafoneCash PaymentMethod = "vodafone_cash"
	PaymentPostponed    PaymentMethod = "postponed"
	PaymentDiscount     PaymentMethod = "discount"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentBankMisr     PaymentMethod = "bank_misr"
	PaymentBankAhly     PaymentMethod = "bank_ahly"
	PaymentCIB          PaymentMethod = "cib"
	PaymentOther        PaymentMethod = "OTHER"

	// PaymentCredit marks ledger-backed payment rows. Clients never send it.
	PaymentCredit PaymentMethod = "CREDIT"
)

var clientPaymentMethods = map[PaymentMethod]bool{
	PaymentCash:         true,
	PaymentVisa:         true,
	PaymentVodafoneCash: true,
	PaymentPostponed:    true,
	PaymentDiscount:     true,
	PaymentBankTransfer: true,
	PaymentBankMisr:     true,
	PaymentBankAhly:     true,
	PaymentCIB:          true,
	PaymentOther:        true,
}

// IsClientMethod reports whether a caller may submit payments of this method.
func (m PaymentMethod) IsClientMethod() bool {
	return clientPaymentMethods[m]
}

type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID        int64         `bun:"id,pk,autoincrement" json:"id"`
	OrderID   int64         `bun:"order_id,notnull" json:"order_id"`
	Method    PaymentMethod `bun:"method,notnull" json:"method"`
	Amount    float64       `bun:"amount,notnull,type:numeric(12,2)" json:"amount"`
	Reference string        `bun:"reference" json:"reference,omitempty"`
	CreatedAt time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type PaymentInput struct {
	Method    PaymentMethod `json:"method"`
	Amount    float64       `json:"amount"`
	Reference string        `json:"reference,omitempty"`
}
