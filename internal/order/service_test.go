package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-sales/internal/apperr"
	"ms-sales/internal/config"
	"ms-sales/internal/credit"
	credit_db "ms-sales/internal/credit/db"
	credit_cache "ms-sales/internal/credit/redis"
	"ms-sales/internal/database/testdb"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/order"
	order_db "ms-sales/internal/order/db"
	"ms-sales/internal/payment/storage"
	ticket_db "ms-sales/internal/tickets/db"
)

type fixture struct {
	svc    *order.OrderService
	ledger *credit.Service
	db     *bun.DB
}

func setup(t *testing.T) fixture {
	bunDB := testdb.New(t)
	log := logger.Discard()
	payments := storage.NewPostgreSQLStore(bunDB, log)
	tickets := &ticket_db.DB{Bun: bunDB}
	ledger := &credit.Service{
		Store:           &credit_db.DB{Bun: bunDB},
		Catalog:         tickets,
		Payments:        payments,
		Logger:          log,
		AllowCreditDebt: true,
	}
	svc := order.NewOrderService(bunDB, &order_db.DB{Bun: bunDB}, tickets, ledger, payments, log, config.SaleConfig{
		PaymentTolerance:  0.01,
		AllowCreditDebt:   true,
		MaxQuantityPerRow: 100,
	})
	return fixture{svc: svc, ledger: ledger, db: bunDB}
}

func paymentsFor(t *testing.T, db *bun.DB, orderID int64) map[models.PaymentMethod]float64 {
	sums, err := storage.NewPostgreSQLStore(db, logger.Discard()).SumByOrder(context.Background(), db, orderID)
	require.NoError(t, err)
	return sums
}

func ledgerFor(t *testing.T, db *bun.DB, orderID int64) []models.CreditTransaction {
	rows, err := (&credit_db.DB{Bun: db}).TransactionsByOrder(context.Background(), nil, orderID)
	require.NoError(t, err)
	return rows
}

func TestSellCashOrderWithMeal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	meal := testdb.Meal(t, f.db, "Burger", 20)
	user := testdb.User(t, f.db, "cashier")

	result, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets: []models.TicketLine{{TicketTypeID: adult.ID, Quantity: 2}},
		UserID:  user.ID,
		Payments: []models.PaymentInput{
			{Method: models.PaymentCash, Amount: 100},
			{Method: models.PaymentDiscount, Amount: 20},
		},
		Meals: []models.MealLine{{ID: meal.ID, Quantity: 1, Price: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, "CASH_ONLY", result.PaymentMode)
	assert.Equal(t, 100.0, result.TicketTotal)
	assert.Equal(t, 20.0, result.MealTotal)
	assert.Equal(t, 120.0, result.GrossTotal)
	assert.Equal(t, 120.0, result.Order.GrossTotal)
	assert.Equal(t, result.Order.GrossTotal, result.Order.TotalAmount)
	assert.Len(t, result.TicketIDs, 2)
	assert.Empty(t, result.CreditUsage)

	details, err := f.svc.GetOrder(ctx, result.Order.ID)
	require.NoError(t, err)
	require.Len(t, details.Tickets, 2)
	for _, tk := range details.Tickets {
		assert.Equal(t, models.TicketSold, tk.Status)
		require.NotNil(t, tk.SoldPrice)
		assert.Equal(t, 50.0, *tk.SoldPrice)
	}
	require.Len(t, details.Meals, 1)
	assert.Equal(t, 20.0, details.Meals[0].PriceAtOrder)
	assert.Equal(t, map[models.PaymentMethod]float64{models.PaymentCash: 100, models.PaymentDiscount: 20}, paymentsFor(t, f.db, result.Order.ID))
	assert.Equal(t, 0, testdb.Count(t, f.db, (*models.CreditTransaction)(nil)))
}

func TestSellCreditOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	acc := testdb.Account(t, f.db, "Partner Hotels", 50)
	testdb.Link(t, f.db, "VIP", acc.ID)

	result, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: vip.ID, Quantity: 1}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", result.PaymentMode)

	rows := ledgerFor(t, f.db, result.Order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.CreditTicketSale, rows[0].TransactionType)
	assert.Equal(t, -200.0, rows[0].Amount)

	require.Len(t, result.CreditUsage, 1)
	assert.Equal(t, -150.0, result.CreditUsage[0].NewBalance)
	assert.True(t, result.CreditUsage[0].WentIntoDebt)

	assert.Equal(t, map[models.PaymentMethod]float64{models.PaymentCredit: 200, models.PaymentPostponed: 200}, paymentsFor(t, f.db, result.Order.ID))

	details, err := f.svc.GetOrder(ctx, result.Order.ID)
	require.NoError(t, err)
	require.Len(t, details.Tickets, 1)
	assert.Equal(t, models.TicketSold, details.Tickets[0].Status)

	rec, err := f.ledger.Reconcile(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, -150.0, rec.CachedBalance)
}

func TestSellCreditOrderChargesMealsToLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	meal := testdb.Meal(t, f.db, "Pizza", 15)
	acc := testdb.Account(t, f.db, "Partner Hotels", 1000)
	testdb.Link(t, f.db, "VIP", acc.ID)

	result, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: vip.ID, Quantity: 2}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 430}},
		Meals:    []models.MealLine{{ID: meal.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 430.0, result.GrossTotal)

	var sum float64
	for _, row := range ledgerFor(t, f.db, result.Order.ID) {
		sum += row.Amount
	}
	assert.Equal(t, -result.GrossTotal, sum)
	assert.Equal(t, 1, testdb.Count(t, f.db, (*models.OrderMeal)(nil)))
}

func TestCreditCategoryWithoutPostponedIsCash(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	acc := testdb.Account(t, f.db, "Partner Hotels", 0)
	testdb.Link(t, f.db, "VIP", acc.ID)

	result, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: vip.ID, Quantity: 1}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentVisa, Amount: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CASH_ONLY", result.PaymentMode)
	assert.Empty(t, ledgerFor(t, f.db, result.Order.ID))
}

func TestMixedOrderWritesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	standard := testdb.TicketType(t, f.db, "Standard", "adult", 50)
	acc := testdb.Account(t, f.db, "Partner Hotels", 500)
	testdb.Link(t, f.db, "VIP", acc.ID)
	before := testdb.Snapshot(t, f.db)

	_, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets: []models.TicketLine{
			{TicketTypeID: vip.ID, Quantity: 1},
			{TicketTypeID: standard.ID, Quantity: 1},
		},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 250}},
	})
	var mixed *apperr.MixedPaymentError
	require.ErrorAs(t, err, &mixed)
	assert.Equal(t, []string{"VIP"}, mixed.CreditCategories)
	assert.Equal(t, []string{"Standard"}, mixed.NonCreditCategories)
	assert.Equal(t, before, testdb.Snapshot(t, f.db))

	got, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.Balance)
}

func TestPaymentMismatchWritesNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	before := testdb.Snapshot(t, f.db)

	_, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: adult.ID, Quantity: 2}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentCash, Amount: 99.5}},
	})
	var mismatch *apperr.PaymentMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 100.0, mismatch.Expected)
	assert.Equal(t, 99.5, mismatch.Received)
	assert.Equal(t, before, testdb.Snapshot(t, f.db))

	_, err = f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: adult.ID, Quantity: 2}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentCash, Amount: 99.99}},
	})
	assert.NoError(t, err, "within tolerance")
}

func TestInsufficientCreditRollsBack(t *testing.T) {
	f := setup(t)
	f.ledger.AllowCreditDebt = false
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	acc := testdb.Account(t, f.db, "Partner Hotels", 150)
	testdb.Link(t, f.db, "VIP", acc.ID)
	before := testdb.Snapshot(t, f.db)

	_, err := f.svc.Sell(ctx, models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: vip.ID, Quantity: 1}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	var insufficient *apperr.InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 150.0, insufficient.Balance)
	assert.Equal(t, 200.0, insufficient.Requested)
	assert.Equal(t, before, testdb.Snapshot(t, f.db))

	got, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, got.Balance)
}

func TestAmbiguousCreditLinkIsRejected(t *testing.T) {
	f := setup(t)
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	a := testdb.Account(t, f.db, "Hotels", 0)
	b := testdb.Account(t, f.db, "Agency", 0)
	testdb.Link(t, f.db, "VIP", a.ID)
	testdb.Link(t, f.db, "VIP", b.ID)

	_, err := f.svc.Sell(context.Background(), models.SellRequest{
		Tickets:  []models.TicketLine{{TicketTypeID: vip.ID, Quantity: 1}},
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	var ambiguous *apperr.AmbiguousCreditLinkError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []int64{a.ID, b.ID}, ambiguous.AccountIDs)
}

func TestSellValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	archived := testdb.TicketType(t, f.db, "adult", "old", 40)
	_, err := f.db.NewUpdate().Model((*models.TicketType)(nil)).Set("archived = ?", true).Where("id = ?", archived.ID).Exec(ctx)
	require.NoError(t, err)
	line := []models.TicketLine{{TicketTypeID: adult.ID, Quantity: 1}}
	cash := []models.PaymentInput{{Method: models.PaymentCash, Amount: 50}}

	cases := map[string]models.SellRequest{
		"no user":          {Tickets: line, Payments: cash},
		"empty order":      {UserID: 1, Payments: cash},
		"zero quantity":    {Tickets: []models.TicketLine{{TicketTypeID: adult.ID}}, UserID: 1, Payments: cash},
		"too many":         {Tickets: []models.TicketLine{{TicketTypeID: adult.ID, Quantity: 101}}, UserID: 1, Payments: cash},
		"credit method":    {Tickets: line, UserID: 1, Payments: []models.PaymentInput{{Method: models.PaymentCredit, Amount: 50}}},
		"unknown method":   {Tickets: line, UserID: 1, Payments: []models.PaymentInput{{Method: "bitcoin", Amount: 50}}},
		"negative amount":  {Tickets: line, UserID: 1, Payments: []models.PaymentInput{{Method: models.PaymentCash, Amount: -50}}},
		"duplicate method": {Tickets: line, UserID: 1, Payments: []models.PaymentInput{{Method: models.PaymentCash, Amount: 25}, {Method: models.PaymentCash, Amount: 25}}},
		"unknown type":     {Tickets: []models.TicketLine{{TicketTypeID: 999, Quantity: 1}}, UserID: 1, Payments: cash},
		"archived type":    {Tickets: []models.TicketLine{{TicketTypeID: archived.ID, Quantity: 1}}, UserID: 1, Payments: []models.PaymentInput{{Method: models.PaymentCash, Amount: 40}}},
		"unknown meal":     {Tickets: line, UserID: 1, Payments: cash, Meals: []models.MealLine{{ID: 77, Quantity: 1}}},
	}
	before := testdb.Snapshot(t, f.db)
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Sell(ctx, req)
			var validation *apperr.ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
	assert.Equal(t, before, testdb.Snapshot(t, f.db))
}

func TestMealsOnlyOrderIsCash(t *testing.T) {
	f := setup(t)
	meal := testdb.Meal(t, f.db, "Ice cream", 7.5)

	result, err := f.svc.Sell(context.Background(), models.SellRequest{
		UserID:   1,
		Payments: []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 15}},
		Meals:    []models.MealLine{{ID: meal.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CASH_ONLY", result.PaymentMode)
	assert.Empty(t, result.TicketIDs)
	assert.Equal(t, 15.0, result.GrossTotal)
}

func TestCheckoutExisting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	stock := testdb.Tickets(t, f.db, testdb.Int64(adult.ID), 3)
	unassigned := testdb.Tickets(t, f.db, nil, 1)

	result, err := f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[0].ID, stock[1].ID},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentVodafoneCash, Amount: 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{stock[0].ID, stock[1].ID}, result.TicketIDs)
	assert.Equal(t, 100.0, result.GrossTotal)

	before := testdb.Snapshot(t, f.db)
	_, err = f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[1].ID, stock[2].ID, unassigned[0].ID, 9999},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentCash, Amount: 100}},
	})
	var unavailable *apperr.TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int64{9999}, unavailable.NotFound)
	assert.Equal(t, []int64{stock[1].ID, unassigned[0].ID}, unavailable.Unavailable)
	assert.Equal(t, before, testdb.Snapshot(t, f.db))

	_, err = f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[2].ID, stock[2].ID},
		UserID:    1,
	})
	var validation *apperr.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCheckoutExistingRejectsInvalidTicket(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	stock := testdb.Tickets(t, f.db, testdb.Int64(adult.ID), 1)
	_, err := f.db.NewUpdate().Model((*models.Ticket)(nil)).Set("valid = ?", false).Where("id = ?", stock[0].ID).Exec(ctx)
	require.NoError(t, err)

	_, err = f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[0].ID},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentCash, Amount: 50}},
	})
	var unavailable *apperr.TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int64{stock[0].ID}, unavailable.Unavailable)
}

func TestCheckoutExistingOnCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	stock := testdb.Tickets(t, f.db, testdb.Int64(vip.ID), 1)
	acc := testdb.Account(t, f.db, "Partner Hotels", 500)
	testdb.Link(t, f.db, "VIP", acc.ID)

	result, err := f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[0].ID},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", result.PaymentMode)
	assert.Equal(t, 200.0, result.GrossTotal)
	assert.Equal(t, []int64{stock[0].ID}, result.TicketIDs)
	require.Len(t, result.CreditUsage, 1)
	assert.Equal(t, 300.0, result.CreditUsage[0].NewBalance)

	rows := ledgerFor(t, f.db, result.Order.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, -200.0, rows[0].Amount)
	assert.Equal(t, map[models.PaymentMethod]float64{models.PaymentCredit: 200, models.PaymentPostponed: 200}, paymentsFor(t, f.db, result.Order.ID))

	got, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.Balance)
}

// soldOutInventory loses every ticket at the moment it is marked sold.
type soldOutInventory struct {
	*ticket_db.DB
}

func (i soldOutInventory) MarkTicketsSold(ctx context.Context, idb bun.IDB, orderID int64, prices map[int64]float64, soldAt time.Time) error {
	ids := make([]int64, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	return &apperr.TicketUnavailableError{Unavailable: ids}
}

func TestCreditDeductionRollsBackWhenTicketsAreLost(t *testing.T) {
	f := setup(t)
	f.svc.Inventory = soldOutInventory{DB: &ticket_db.DB{Bun: f.db}}
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	stock := testdb.Tickets(t, f.db, testdb.Int64(vip.ID), 1)
	acc := testdb.Account(t, f.db, "Partner Hotels", 300)
	testdb.Link(t, f.db, "VIP", acc.ID)
	before := testdb.Snapshot(t, f.db)

	_, err := f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[0].ID},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	var unavailable *apperr.TicketUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int64{stock[0].ID}, unavailable.Unavailable)
	assert.Equal(t, before, testdb.Snapshot(t, f.db))

	got, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.Balance)
}

func TestRefundOfCreditSaleKeepsLedger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	stock := testdb.Tickets(t, f.db, testdb.Int64(vip.ID), 1)
	acc := testdb.Account(t, f.db, "Partner Hotels", 500)
	testdb.Link(t, f.db, "VIP", acc.ID)

	result, err := f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
		TicketIDs: []int64{stock[0].ID},
		UserID:    1,
		Payments:  []models.PaymentInput{{Method: models.PaymentPostponed, Amount: 200}},
	})
	require.NoError(t, err)
	ledgerRows := testdb.Count(t, f.db, (*models.CreditTransaction)(nil))
	paymentRows := testdb.Count(t, f.db, (*models.Payment)(nil))

	require.NoError(t, (&ticket_db.DB{Bun: f.db}).RefundTicket(ctx, stock[0].ID))

	assert.Equal(t, ledgerRows, testdb.Count(t, f.db, (*models.CreditTransaction)(nil)))
	assert.Equal(t, paymentRows, testdb.Count(t, f.db, (*models.Payment)(nil)))
	assert.Len(t, ledgerFor(t, f.db, result.Order.ID), 1)

	got, err := f.ledger.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.Balance)
}

func TestConcurrentCheckoutsOfOneTicket(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	stock := testdb.Tickets(t, f.db, testdb.Int64(adult.ID), 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CheckoutExisting(ctx, models.CheckoutExistingRequest{
				TicketIDs: []int64{stock[0].ID},
				UserID:    1,
				Payments:  []models.PaymentInput{{Method: models.PaymentCash, Amount: 50}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		var unavailable *apperr.TicketUnavailableError
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorAs(t, err, &unavailable):
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, testdb.Count(t, f.db, (*models.Order)(nil)))
}

func TestCheckCreditStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	adult := testdb.TicketType(t, f.db, "adult", "standard", 50)
	acc := testdb.Account(t, f.db, "Partner Hotels", 0)
	testdb.Link(t, f.db, "VIP", acc.ID)

	status, err := f.svc.CheckCreditStatus(ctx, []int64{vip.ID, vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", status.PaymentMode)
	require.Len(t, status.TicketTypes, 1)
	require.NotNil(t, status.TicketTypes[0].CreditAccountName)
	assert.Equal(t, "Partner Hotels", *status.TicketTypes[0].CreditAccountName)

	status, err = f.svc.CheckCreditStatus(ctx, []int64{adult.ID})
	require.NoError(t, err)
	assert.Equal(t, "CASH_ONLY", status.PaymentMode)

	status, err = f.svc.CheckCreditStatus(ctx, []int64{adult.ID, vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "MIXED_ERROR", status.PaymentMode)
	assert.Equal(t, []string{"VIP"}, status.CreditCategories)
	assert.Equal(t, []string{"adult"}, status.NonCreditCategories)

	_, err = f.svc.CheckCreditStatus(ctx, []int64{404})
	var notFound *apperr.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = f.svc.CheckCreditStatus(ctx, nil)
	var validation *apperr.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCheckCreditStatusUsesCache(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	cache := credit_cache.NewCreditStatusCache(client, time.Minute, logger.Discard())
	f.svc.Cache = cache
	f.ledger.Cache = cache

	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	acc := testdb.Account(t, f.db, "Partner Hotels", 0)
	require.NoError(t, f.ledger.LinkCategory(ctx, models.CategoryLinkRequest{CategoryName: "VIP", CreditAccountID: acc.ID}))

	status, err := f.svc.CheckCreditStatus(ctx, []int64{vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", status.PaymentMode)

	// A link removed behind the service's back is not seen until the
	// cache is dropped.
	_, err = f.db.NewDelete().Model((*models.CategoryCreditLink)(nil)).Where("category_name = ?", "VIP").Exec(ctx)
	require.NoError(t, err)
	status, err = f.svc.CheckCreditStatus(ctx, []int64{vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", status.PaymentMode)

	require.NoError(t, cache.Invalidate(ctx))
	status, err = f.svc.CheckCreditStatus(ctx, []int64{vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CASH_ONLY", status.PaymentMode)
}

// unlinkingCache removes a category link right before the lookup stores what
// it read, as a concurrent unlink would.
type unlinkingCache struct {
	*credit_cache.CreditStatusCache
	unlink func()
}

func (c *unlinkingCache) SetMany(ctx context.Context, generation int64, rows map[int64]models.TicketTypeCredit) error {
	if c.unlink != nil {
		c.unlink()
		c.unlink = nil
	}
	return c.CreditStatusCache.SetMany(ctx, generation, rows)
}

func TestCheckCreditStatusIgnoresRacingUnlink(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	cache := credit_cache.NewCreditStatusCache(client, time.Minute, logger.Discard())
	f.ledger.Cache = cache

	vip := testdb.TicketType(t, f.db, "VIP", "cabana", 200)
	acc := testdb.Account(t, f.db, "Partner Hotels", 0)
	require.NoError(t, f.ledger.LinkCategory(ctx, models.CategoryLinkRequest{CategoryName: "VIP", CreditAccountID: acc.ID}))

	f.svc.Cache = &unlinkingCache{CreditStatusCache: cache, unlink: func() {
		require.NoError(t, f.ledger.UnlinkCategory(ctx, models.CategoryLinkRequest{CategoryName: "VIP", CreditAccountID: acc.ID}))
	}}

	status, err := f.svc.CheckCreditStatus(ctx, []int64{vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CREDIT_ONLY", status.PaymentMode)

	status, err = f.svc.CheckCreditStatus(ctx, []int64{vip.ID})
	require.NoError(t, err)
	assert.Equal(t, "CASH_ONLY", status.PaymentMode)
}
