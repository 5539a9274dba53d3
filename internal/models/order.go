package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64     `bun:"user_id,notnull" json:"user_id"`
	Description string    `bun:"description" json:"description"`
	GrossTotal  float64   `bun:"gross_total,notnull,type:numeric(12,2)" json:"gross_total"`
	TotalAmount float64   `bun:"total_amount,notnull,type:numeric(12,2)" json:"total_amount"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type OrderMeal struct {
	bun.BaseModel `bun:"table:order_meals,alias:om"`

	ID           int64   `bun:"id,pk,autoincrement" json:"id"`
	OrderID      int64   `bun:"order_id,notnull" json:"order_id"`
	MealID       int64   `bun:"meal_id,notnull" json:"meal_id"`
	Quantity     int     `bun:"quantity,notnull" json:"quantity"`
	PriceAtOrder float64 `bun:"price_at_order,notnull,type:numeric(12,2)" json:"price_at_order"`
}

// Meal belongs to the meal catalog. The sales core only reads prices.
type Meal struct {
	bun.BaseModel `bun:"table:meals,alias:m"`

	ID       int64   `bun:"id,pk,autoincrement" json:"id"`
	Name     string  `bun:"name,notnull" json:"name"`
	Price    float64 `bun:"price,notnull,type:numeric(12,2)" json:"price"`
	Archived bool    `bun:"archived,notnull" json:"archived"`
}

type MealLine struct {
	ID       int64   `json:"id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

type SellRequest struct {
	Tickets     []TicketLine   `json:"tickets"`
	UserID      int64          `json:"user_id"`
	Description string         `json:"description"`
	Payments    []PaymentInput `json:"payments"`
	Meals       []MealLine     `json:"meals"`
}

type CheckoutExistingRequest struct {
	TicketIDs   []int64        `json:"ticket_ids"`
	UserID      int64          `json:"user_id"`
	Description string         `json:"description"`
	Payments    []PaymentInput `json:"payments"`
	Meals       []MealLine     `json:"meals"`
}

type CreditStatusRequest struct {
	TicketTypeIDs []int64 `json:"ticketTypeIds"`
}

// SaleResult is returned for every committed checkout.
type SaleResult struct {
	Order       Order         `json:"order"`
	PaymentMode string        `json:"payment_mode"`
	TicketIDs   []int64       `json:"ticket_ids"`
	TicketTotal float64       `json:"ticket_total"`
	MealTotal   float64       `json:"meal_total"`
	GrossTotal  float64       `json:"gross_total"`
	Payments    []Payment     `json:"payments"`
	Meals       []OrderMeal   `json:"meals"`
	CreditUsage []CreditUsage `json:"credit_usage,omitempty"`
}

type OrderDetails struct {
	Order    Order       `json:"order"`
	Tickets  []Ticket    `json:"tickets"`
	Payments []Payment   `json:"payments"`
	Meals    []OrderMeal `json:"meals"`
}

// CreditStatusResult tells the till which checkout path a set of ticket
// types needs before anything is written.
type CreditStatusResult struct {
	TicketTypes         []TicketTypeCredit `json:"ticketTypes"`
	PaymentMode         string             `json:"paymentMode"`
	CreditCategories    []string           `json:"creditCategories"`
	NonCreditCategories []string           `json:"nonCreditCategories"`
}
