// Package analytics answers read-only sales questions for the back office:
// revenue per day, tickets per category, takings per payment method and
// credit consumed per account.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ms-sales/internal/apperr"
	"ms-sales/internal/models"
)

// Range bounds a query on [From, To). Either side may be open.
type Range struct {
	From *time.Time
	To   *time.Time
}

type SalesDB interface {
	OrdersBetween(ctx context.Context, rng Range) ([]models.Order, error)
	SalesByCategory(ctx context.Context, rng Range) ([]CategorySalesMetrics, error)
	PaymentsByMethod(ctx context.Context, rng Range) ([]MethodTotal, error)
	CreditUsageByAccount(ctx context.Context, rng Range) ([]AccountUsage, error)
}

type Service struct {
	DB SalesDB
}

func NewService(db SalesDB) *Service {
	return &Service{DB: db}
}

// SalesSummary aggregates every order created in a range.
type SalesSummary struct {
	From         *time.Time             `json:"from,omitempty"`
	To           *time.Time             `json:"to,omitempty"`
	Orders       int                    `json:"orders"`
	GrossRevenue float64                `json:"gross_revenue"`
	DailySales   []DailySalesMetrics    `json:"daily_sales"`
	ByCategory   []CategorySalesMetrics `json:"by_category"`
	ByMethod     []MethodTotal          `json:"by_method"`
	CreditUsage  []AccountUsage         `json:"credit_usage"`
}

// DailySalesMetrics contains metrics for a single UTC day
type DailySalesMetrics struct {
	Date    string  `json:"date"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type CategorySalesMetrics struct {
	Category    string  `bun:"category" json:"category"`
	TicketsSold int     `bun:"tickets_sold" json:"tickets_sold"`
	Revenue     float64 `bun:"revenue" json:"revenue"`
}

type MethodTotal struct {
	Method   models.PaymentMethod `bun:"method" json:"method"`
	Payments int                  `bun:"payments" json:"payments"`
	Amount   float64              `bun:"amount" json:"amount"`
}

type AccountUsage struct {
	CreditAccountID int64   `bun:"credit_account_id" json:"credit_account_id"`
	AccountName     string  `bun:"account_name" json:"account_name"`
	Sales           int     `bun:"sales" json:"sales"`
	CreditUsed      float64 `bun:"credit_used" json:"credit_used"`
}

// GetSalesSummary returns the aggregates for rng.
func (s *Service) GetSalesSummary(ctx context.Context, rng Range) (*SalesSummary, error) {
	if rng.From != nil && rng.To != nil && !rng.From.Before(*rng.To) {
		return nil, apperr.Validation("to", "must be after from")
	}

	orders, err := s.DB.OrdersBetween(ctx, rng)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.DB.SalesByCategory(ctx, rng)
	if err != nil {
		return nil, err
	}
	byMethod, err := s.DB.PaymentsByMethod(ctx, rng)
	if err != nil {
		return nil, err
	}
	usage, err := s.DB.CreditUsageByAccount(ctx, rng)
	if err != nil {
		return nil, err
	}

	summary := &SalesSummary{
		From:        rng.From,
		To:          rng.To,
		Orders:      len(orders),
		DailySales:  dailySales(orders),
		ByCategory:  nonNil(byCategory),
		ByMethod:    nonNil(byMethod),
		CreditUsage: nonNil(usage),
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(decimal.NewFromFloat(o.GrossTotal))
	}
	summary.GrossRevenue = total.Round(2).InexactFloat64()
	return summary, nil
}

func dailySales(orders []models.Order) []DailySalesMetrics {
	type bucket struct {
		orders  int
		revenue decimal.Decimal
	}
	buckets := map[string]*bucket{}
	for _, o := range orders {
		day := o.CreatedAt.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &bucket{revenue: decimal.Zero}
			buckets[day] = b
		}
		b.orders++
		b.revenue = b.revenue.Add(decimal.NewFromFloat(o.GrossTotal))
	}

	out := make([]DailySalesMetrics, 0, len(buckets))
	for day, b := range buckets {
		out = append(out, DailySalesMetrics{Date: day, Orders: b.orders, Revenue: b.revenue.Round(2).InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
