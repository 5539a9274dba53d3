// Package order runs a checkout as one database transaction: tickets are
// resolved and classified, the order is written, tickets are marked sold,
// and payments or ledger deductions are recorded. Any failure rolls back the
// whole sale.
package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/config"
	"ms-sales/internal/credit"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/money"
	ticket_db "ms-sales/internal/tickets/db"
)

type OrderStore interface {
	InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error
	InsertOrderMeals(ctx context.Context, idb bun.IDB, meals []models.OrderMeal) error
	MealsByID(ctx context.Context, idb bun.IDB, ids []int64) (map[int64]models.Meal, error)
	GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error)
}

type Inventory interface {
	ResolveTicketTypes(ctx context.Context, idb bun.IDB, ids []int64) ([]models.TicketTypeCredit, error)
	ResolveTicketsForSale(ctx context.Context, idb bun.IDB, ids []int64) ([]models.SaleTicket, error)
	InsertSoldTickets(ctx context.Context, idb bun.IDB, rows []models.Ticket) error
	MarkTicketsSold(ctx context.Context, idb bun.IDB, orderID int64, prices map[int64]float64, soldAt time.Time) error
}

type CreditLedger interface {
	ProcessTicketSaleCredit(ctx context.Context, idb bun.IDB, orderID int64, lines []credit.SaleLine, mealTotal decimal.Decimal) ([]models.CreditUsage, error)
	PublishUsage(ctx context.Context, usages []models.CreditUsage)
}

type PaymentRecorder interface {
	InsertPayments(ctx context.Context, idb bun.IDB, payments []models.Payment) error
}

type SalePublisher interface {
	PublishSaleCompleted(ctx context.Context, event models.SaleCompletedEvent) error
}

type CreditStatusCache interface {
	GetMany(ctx context.Context, typeIDs []int64) (map[int64]models.TicketTypeCredit, []int64, int64, error)
	SetMany(ctx context.Context, generation int64, rows map[int64]models.TicketTypeCredit) error
}

type OrderService struct {
	DB          bun.IDB
	Orders      OrderStore
	Inventory   Inventory
	Ledger      CreditLedger
	Payments    PaymentRecorder
	Events      SalePublisher
	Cache       CreditStatusCache
	Logger      *logger.Logger
	Tolerance   float64
	MaxQuantity int
}

func NewOrderService(db bun.IDB, orders OrderStore, inventory Inventory, ledger CreditLedger, payments PaymentRecorder, log *logger.Logger, cfg config.SaleConfig) *OrderService {
	return &OrderService{
		DB:          db,
		Orders:      orders,
		Inventory:   inventory,
		Ledger:      ledger,
		Payments:    payments,
		Logger:      log,
		Tolerance:   cfg.PaymentTolerance,
		MaxQuantity: cfg.MaxQuantityPerRow,
	}
}

// saleLine is one resolved ticket line. ticketID is set for existing tickets,
// which always have quantity 1.
type saleLine struct {
	typeCredit models.TicketTypeCredit
	quantity   int
	ticketID   int64
}

func (l saleLine) subtotal() decimal.Decimal {
	return money.Line(l.typeCredit.Price, l.quantity)
}

// saleHead is the part of a checkout request shared by both entry points.
type saleHead struct {
	UserID      int64
	Description string
	Payments    []models.PaymentInput
	Meals       []models.MealLine
}

type resolver func(ctx context.Context, tx bun.Tx) ([]saleLine, error)

// ---------------- CHECKOUT ----------------

// Sell creates and sells new tickets by type and quantity.
func (s *OrderService) Sell(ctx context.Context, req models.SellRequest) (*models.SaleResult, error) {
	head := saleHead{UserID: req.UserID, Description: req.Description, Payments: req.Payments, Meals: req.Meals}
	if err := s.validateHead(head, len(req.Tickets) > 0); err != nil {
		return nil, err
	}
	for i, line := range req.Tickets {
		if line.TicketTypeID <= 0 {
			return nil, apperr.Validation(fmt.Sprintf("tickets[%d].ticket_type_id", i), "must be a positive integer")
		}
		if line.Quantity < 1 || line.Quantity > s.MaxQuantity {
			return nil, apperr.Validation(fmt.Sprintf("tickets[%d].quantity", i), "must be between 1 and %d", s.MaxQuantity)
		}
	}

	return s.checkout(ctx, head, func(ctx context.Context, tx bun.Tx) ([]saleLine, error) {
		return s.resolveTypes(ctx, tx, req.Tickets)
	})
}

// CheckoutExisting sells tickets that were generated ahead of time.
func (s *OrderService) CheckoutExisting(ctx context.Context, req models.CheckoutExistingRequest) (*models.SaleResult, error) {
	head := saleHead{UserID: req.UserID, Description: req.Description, Payments: req.Payments, Meals: req.Meals}
	if err := s.validateHead(head, len(req.TicketIDs) > 0); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(req.TicketIDs))
	for i, id := range req.TicketIDs {
		if id <= 0 {
			return nil, apperr.Validation(fmt.Sprintf("ticket_ids[%d]", i), "must be a positive integer")
		}
		if seen[id] {
			return nil, apperr.Validation("ticket_ids", "ticket %d listed twice", id)
		}
		seen[id] = true
	}

	return s.checkout(ctx, head, func(ctx context.Context, tx bun.Tx) ([]saleLine, error) {
		return s.resolveExisting(ctx, tx, req.TicketIDs)
	})
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.OrderDetails, error) {
	return s.Orders.GetOrderDetails(ctx, id)
}

func (s *OrderService) checkout(ctx context.Context, head saleHead, resolve resolver) (*models.SaleResult, error) {
	var (
		result *models.SaleResult
		usages []models.CreditUsage
	)
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		lines, err := resolve(ctx, tx)
		if err != nil {
			return err
		}
		meals, mealTotal, err := s.resolveMeals(ctx, tx, head.Meals)
		if err != nil {
			return err
		}

		ticketTotal := decimal.Zero
		links := make([]CategoryLink, 0, len(lines))
		for _, l := range lines {
			ticketTotal = ticketTotal.Add(l.subtotal())
			links = append(links, CategoryLink{Category: l.typeCredit.Category, CreditLinked: l.typeCredit.HasCredit()})
		}
		gross := ticketTotal.Add(mealTotal)

		mode := ModeCashOnly
		if len(lines) > 0 {
			c := Classify(links)
			if err := c.Err(); err != nil {
				return err
			}
			if c.Mode == ModeCreditOnly && hasPostponed(head.Payments) {
				mode = ModeCreditOnly
			}
		}
		if mode == ModeCashOnly {
			if err := s.checkPayments(head.Payments, gross); err != nil {
				return err
			}
		}

		order := &models.Order{
			UserID:      head.UserID,
			Description: head.Description,
			GrossTotal:  money.Float(gross),
			TotalAmount: money.Float(gross),
		}
		if err := s.Orders.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		soldAt := time.Now().UTC()

		var payments []models.Payment
		var ticketIDs []int64
		if mode == ModeCreditOnly {
			usages, err = s.Ledger.ProcessTicketSaleCredit(ctx, tx, order.ID, creditLines(lines), mealTotal)
			if err != nil {
				return err
			}
			if ticketIDs, err = s.writeTickets(ctx, tx, order.ID, lines, soldAt); err != nil {
				return err
			}
			if err := s.insertMeals(ctx, tx, order.ID, meals); err != nil {
				return err
			}
			payments = []models.Payment{{
				OrderID:   order.ID,
				Method:    models.PaymentPostponed,
				Amount:    order.GrossTotal,
				Reference: "credit_sale",
			}}
			if err := s.Payments.InsertPayments(ctx, tx, payments); err != nil {
				return err
			}
		} else {
			payments = make([]models.Payment, 0, len(head.Payments))
			for _, p := range head.Payments {
				payments = append(payments, models.Payment{
					OrderID:   order.ID,
					Method:    p.Method,
					Amount:    money.Float(money.From(p.Amount)),
					Reference: p.Reference,
				})
			}
			if err := s.Payments.InsertPayments(ctx, tx, payments); err != nil {
				return err
			}
			if ticketIDs, err = s.writeTickets(ctx, tx, order.ID, lines, soldAt); err != nil {
				return err
			}
			if err := s.insertMeals(ctx, tx, order.ID, meals); err != nil {
				return err
			}
		}

		result = &models.SaleResult{
			Order:       *order,
			PaymentMode: string(mode),
			TicketIDs:   ticketIDs,
			TicketTotal: money.Float(ticketTotal),
			MealTotal:   money.Float(mealTotal),
			GrossTotal:  order.GrossTotal,
			Payments:    payments,
			Meals:       meals,
			CreditUsage: usages,
		}
		return nil
	})
	if err != nil {
		s.Logger.Warn("SALE", fmt.Sprintf("Checkout rolled back: %v", err))
		return nil, err
	}

	s.Logger.LogSale("CHECKOUT", result.Order.ID, fmt.Sprintf("%s sale of %d tickets, gross %.2f",
		result.PaymentMode, len(result.TicketIDs), result.GrossTotal))
	s.publish(ctx, result, usages)
	return result, nil
}

func (s *OrderService) publish(ctx context.Context, result *models.SaleResult, usages []models.CreditUsage) {
	if s.Events != nil {
		if err := s.Events.PublishSaleCompleted(ctx, models.NewSaleCompletedEvent(*result)); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish sale %d: %v", result.Order.ID, err))
		}
	}
	if len(usages) > 0 {
		s.Ledger.PublishUsage(ctx, usages)
	}
}

// ---------------- VALIDATION ----------------

func (s *OrderService) validateHead(head saleHead, hasTickets bool) error {
	if head.UserID <= 0 {
		return apperr.Validation("user_id", "must be a positive integer")
	}
	if !hasTickets && len(head.Meals) == 0 {
		return apperr.Validation("tickets", "an order needs at least one ticket or meal")
	}
	for i, m := range head.Meals {
		if m.ID <= 0 {
			return apperr.Validation(fmt.Sprintf("meals[%d].id", i), "must be a positive integer")
		}
		if m.Quantity < 1 || m.Quantity > s.MaxQuantity {
			return apperr.Validation(fmt.Sprintf("meals[%d].quantity", i), "must be between 1 and %d", s.MaxQuantity)
		}
	}

	methods := make(map[models.PaymentMethod]bool, len(head.Payments))
	for i, p := range head.Payments {
		field := fmt.Sprintf("payments[%d]", i)
		if p.Method == models.PaymentCredit {
			return apperr.Validation(field+".method", "%s is reserved for ledger-backed payments", p.Method)
		}
		if !p.Method.IsClientMethod() {
			return apperr.Validation(field+".method", "unknown payment method %q", p.Method)
		}
		if math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) || p.Amount < 0 {
			return apperr.Validation(field+".amount", "must be a non-negative amount")
		}
		if methods[p.Method] {
			return apperr.Validation(field+".method", "%s listed twice", p.Method)
		}
		methods[p.Method] = true
	}
	return nil
}

// checkPayments requires collected plus discount to cover the gross total.
func (s *OrderService) checkPayments(payments []models.PaymentInput, gross decimal.Decimal) error {
	collected := decimal.Zero
	discount := decimal.Zero
	for _, p := range payments {
		if p.Method == models.PaymentDiscount {
			discount = discount.Add(money.From(p.Amount))
		} else {
			collected = collected.Add(money.From(p.Amount))
		}
	}
	received := collected.Add(discount)
	if !money.Within(received, gross, s.Tolerance) {
		return &apperr.PaymentMismatchError{Expected: money.Float(gross), Received: money.Float(received)}
	}
	return nil
}

func hasPostponed(payments []models.PaymentInput) bool {
	for _, p := range payments {
		if p.Method == models.PaymentPostponed {
			return true
		}
	}
	return false
}

// ---------------- RESOLUTION ----------------

func (s *OrderService) resolveTypes(ctx context.Context, tx bun.Tx, lines []models.TicketLine) ([]saleLine, error) {
	ids := make([]int64, 0, len(lines))
	seen := map[int64]bool{}
	for _, l := range lines {
		if !seen[l.TicketTypeID] {
			seen[l.TicketTypeID] = true
			ids = append(ids, l.TicketTypeID)
		}
	}

	rows, err := s.Inventory.ResolveTicketTypes(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	types, err := ticket_db.CollapseTypes(rows)
	if err != nil {
		return nil, err
	}

	out := make([]saleLine, 0, len(lines))
	for i, l := range lines {
		tc, ok := types[l.TicketTypeID]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("tickets[%d].ticket_type_id", i), "unknown ticket type %d", l.TicketTypeID)
		}
		if tc.Archived {
			return nil, apperr.Validation(fmt.Sprintf("tickets[%d].ticket_type_id", i), "ticket type %d is archived", l.TicketTypeID)
		}
		out = append(out, saleLine{typeCredit: tc, quantity: l.Quantity})
	}
	return out, nil
}

// resolveExisting checks that every ticket exists, is available, is valid
// and has an active type. Nothing is written when one of them fails.
func (s *OrderService) resolveExisting(ctx context.Context, tx bun.Tx, ids []int64) ([]saleLine, error) {
	rows, err := s.Inventory.ResolveTicketsForSale(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	tickets, err := ticket_db.CollapseSaleTickets(rows)
	if err != nil {
		return nil, err
	}

	unavailable := &apperr.TicketUnavailableError{}
	out := make([]saleLine, 0, len(ids))
	for _, id := range ids {
		t, ok := tickets[id]
		switch {
		case !ok:
			unavailable.NotFound = append(unavailable.NotFound, id)
		case t.Status != models.TicketAvailable, !t.Valid, t.TicketTypeID == nil, t.Archived != nil && *t.Archived:
			unavailable.Unavailable = append(unavailable.Unavailable, id)
		default:
			out = append(out, saleLine{typeCredit: t.TypeCredit(), quantity: 1, ticketID: id})
		}
	}
	if !unavailable.Empty() {
		return nil, unavailable
	}
	return out, nil
}

// resolveMeals prices meals from the catalog. Client-sent prices are ignored.
func (s *OrderService) resolveMeals(ctx context.Context, tx bun.Tx, lines []models.MealLine) ([]models.OrderMeal, decimal.Decimal, error) {
	total := decimal.Zero
	if len(lines) == 0 {
		return []models.OrderMeal{}, total, nil
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	catalog, err := s.Orders.MealsByID(ctx, tx, ids)
	if err != nil {
		return nil, total, err
	}

	rows := make([]models.OrderMeal, 0, len(lines))
	for i, l := range lines {
		meal, ok := catalog[l.ID]
		if !ok || meal.Archived {
			return nil, total, apperr.Validation(fmt.Sprintf("meals[%d].id", i), "meal %d is not on sale", l.ID)
		}
		total = total.Add(money.Line(meal.Price, l.Quantity))
		rows = append(rows, models.OrderMeal{MealID: meal.ID, Quantity: l.Quantity, PriceAtOrder: money.Float(money.From(meal.Price))})
	}
	return rows, total, nil
}

func creditLines(lines []saleLine) []credit.SaleLine {
	out := make([]credit.SaleLine, 0, len(lines))
	for _, l := range lines {
		name := ""
		if l.typeCredit.CreditAccountName != nil {
			name = *l.typeCredit.CreditAccountName
		}
		out = append(out, credit.SaleLine{
			CreditAccountID: *l.typeCredit.CreditAccountID,
			AccountName:     name,
			Subtotal:        l.subtotal(),
		})
	}
	return out
}

// ---------------- WRITES ----------------

// writeTickets marks existing tickets sold and inserts new ones already
// sold. It returns the ids of every ticket in the order.
func (s *OrderService) writeTickets(ctx context.Context, tx bun.Tx, orderID int64, lines []saleLine, soldAt time.Time) ([]int64, error) {
	prices := map[int64]float64{}
	var existing []int64
	var fresh []models.Ticket
	for _, l := range lines {
		price := money.Float(money.From(l.typeCredit.Price))
		if l.ticketID != 0 {
			prices[l.ticketID] = price
			existing = append(existing, l.ticketID)
			continue
		}
		typeID := l.typeCredit.TicketTypeID
		for i := 0; i < l.quantity; i++ {
			fresh = append(fresh, models.Ticket{
				TicketTypeID: &typeID,
				Status:       models.TicketSold,
				Valid:        true,
				OrderID:      &orderID,
				SoldAt:       &soldAt,
				SoldPrice:    &price,
			})
		}
	}

	if err := s.Inventory.MarkTicketsSold(ctx, tx, orderID, prices, soldAt); err != nil {
		return nil, err
	}
	if err := s.Inventory.InsertSoldTickets(ctx, tx, fresh); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(existing)+len(fresh))
	ids = append(ids, existing...)
	for _, t := range fresh {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *OrderService) insertMeals(ctx context.Context, tx bun.Tx, orderID int64, meals []models.OrderMeal) error {
	for i := range meals {
		meals[i].OrderID = orderID
	}
	return s.Orders.InsertOrderMeals(ctx, tx, meals)
}
