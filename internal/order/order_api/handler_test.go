package order_api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-sales/internal/auth"
	"ms-sales/internal/config"
	"ms-sales/internal/credit"
	credit_db "ms-sales/internal/credit/db"
	"ms-sales/internal/database/testdb"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/order"
	order_db "ms-sales/internal/order/db"
	"ms-sales/internal/order/order_api"
	"ms-sales/internal/payment/storage"
	ticket_db "ms-sales/internal/tickets/db"
)

type envelope struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func setupRouter(t *testing.T, middlewares ...func(http.Handler) http.Handler) (http.Handler, *bun.DB) {
	bunDB := testdb.New(t)
	log := logger.Discard()
	payments := storage.NewPostgreSQLStore(bunDB, log)
	tickets := &ticket_db.DB{Bun: bunDB}
	ledger := &credit.Service{Store: &credit_db.DB{Bun: bunDB}, Catalog: tickets, Payments: payments, Logger: log, AllowCreditDebt: true}
	svc := order.NewOrderService(bunDB, &order_db.DB{Bun: bunDB}, tickets, ledger, payments, log, config.SaleConfig{
		PaymentTolerance:  0.01,
		MaxQuantityPerRow: 50,
	})

	r := chi.NewRouter()
	r.Use(middlewares...)
	r.Route("/api", order_api.NewHandler(svc, log).RegisterRoutes)
	return r, bunDB
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestSellRoute(t *testing.T) {
	router, db := setupRouter(t)
	adult := testdb.TicketType(t, db, "adult", "standard", 50)
	meal := testdb.Meal(t, db, "Burger", 20)

	rec, env := do(t, router, http.MethodPost, "/api/sales/sell", map[string]interface{}{
		"tickets":  []map[string]interface{}{{"ticket_type_id": adult.ID, "quantity": 2}},
		"user_id":  3,
		"payments": []map[string]interface{}{{"method": "cash", "amount": 100}, {"method": "discount", "amount": 20}},
		"meals":    []map[string]interface{}{{"id": meal.ID, "quantity": 1, "price": 20}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var result models.SaleResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 120.0, result.GrossTotal)
	assert.Equal(t, int64(3), result.Order.UserID)

	rec, env = do(t, router, http.MethodGet, "/api/sales/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details models.OrderDetails
	require.NoError(t, json.Unmarshal(env.Data, &details))
	assert.Len(t, details.Tickets, 2)
	assert.Len(t, details.Payments, 2)

	rec, env = do(t, router, http.MethodGet, "/api/sales/orders/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Type)
}

func TestMixedSaleRoute(t *testing.T) {
	router, db := setupRouter(t)
	vip := testdb.TicketType(t, db, "VIP", "cabana", 200)
	standard := testdb.TicketType(t, db, "Standard", "adult", 50)
	acc := testdb.Account(t, db, "Partner Hotels", 0)
	testdb.Link(t, db, "VIP", acc.ID)

	rec, env := do(t, router, http.MethodPost, "/api/sales/sell", map[string]interface{}{
		"tickets": []map[string]interface{}{
			{"ticket_type_id": vip.ID, "quantity": 1},
			{"ticket_type_id": standard.ID, "quantity": 1},
		},
		"user_id":  1,
		"payments": []map[string]interface{}{{"method": "postponed", "amount": 250}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MIXED_PAYMENT_ERROR", env.Type)
	var details apperrMixed
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.Equal(t, []string{"VIP"}, details.CreditCategories)
	assert.Equal(t, 0, testdb.Count(t, db, (*models.Order)(nil)))
}

type apperrMixed struct {
	CreditCategories    []string `json:"credit_categories"`
	NonCreditCategories []string `json:"non_credit_categories"`
}

func TestCheckoutExistingRoute(t *testing.T) {
	router, db := setupRouter(t)
	adult := testdb.TicketType(t, db, "adult", "standard", 50)
	stock := testdb.Tickets(t, db, testdb.Int64(adult.ID), 1)

	body := map[string]interface{}{
		"ticket_ids": []int64{stock[0].ID},
		"user_id":    1,
		"payments":   []map[string]interface{}{{"method": "visa", "amount": 50}},
	}
	rec, _ := do(t, router, http.MethodPut, "/api/sales/checkout-existing", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, router, http.MethodPut, "/api/sales/checkout-existing", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TICKET_UNAVAILABLE", env.Type)
}

func TestCheckCreditStatusRoute(t *testing.T) {
	router, db := setupRouter(t)
	vip := testdb.TicketType(t, db, "VIP", "cabana", 200)
	acc := testdb.Account(t, db, "Partner Hotels", 0)
	testdb.Link(t, db, "VIP", acc.ID)

	rec, env := do(t, router, http.MethodPost, "/api/sales/check-credit-status", map[string]interface{}{
		"ticketTypeIds": []int64{vip.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.CreditStatusResult
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "CREDIT_ONLY", status.PaymentMode)

	rec, env = do(t, router, http.MethodPost, "/api/sales/check-credit-status", map[string]interface{}{"ticketTypeIds": []int64{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Type)
}

func TestAuthenticatedUserOverridesBody(t *testing.T) {
	asCashier := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), 11)))
		})
	}
	router, db := setupRouter(t, asCashier)
	adult := testdb.TicketType(t, db, "adult", "standard", 50)

	rec, env := do(t, router, http.MethodPost, "/api/sales/sell", map[string]interface{}{
		"tickets":  []map[string]interface{}{{"ticket_type_id": adult.ID, "quantity": 1}},
		"user_id":  2,
		"payments": []map[string]interface{}{{"method": "cash", "amount": 50}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var result models.SaleResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(11), result.Order.UserID)
}
