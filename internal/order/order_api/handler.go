package order_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-sales/internal/auth"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/utils"
)

type SaleService interface {
	Sell(ctx context.Context, req models.SellRequest) (*models.SaleResult, error)
	CheckoutExisting(ctx context.Context, req models.CheckoutExistingRequest) (*models.SaleResult, error)
	CheckCreditStatus(ctx context.Context, ticketTypeIDs []int64) (*models.CreditStatusResult, error)
	GetOrder(ctx context.Context, id int64) (*models.OrderDetails, error)
}

type Handler struct {
	SaleService SaleService
	Logger      *logger.Logger
}

func NewHandler(svc SaleService, log *logger.Logger) *Handler {
	return &Handler{SaleService: svc, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Post("/sell", h.Sell)
		r.Put("/checkout-existing", h.CheckoutExisting)
		r.Post("/check-credit-status", h.CheckCreditStatus)
		r.Get("/orders/{orderId}", h.GetOrder)
	})
}

// actingUser prefers the authenticated user over the one in the body.
func actingUser(r *http.Request, bodyUserID int64) int64 {
	if id, ok := auth.UserID(r.Context()); ok {
		return id
	}
	return bodyUserID
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req models.SellRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	req.UserID = actingUser(r, req.UserID)

	result, err := h.SaleService.Sell(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Sell: %v", err))
		utils.WriteError(w, "Sale failed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Sale completed", result)
}

func (h *Handler) CheckoutExisting(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutExistingRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	req.UserID = actingUser(r, req.UserID)

	result, err := h.SaleService.CheckoutExisting(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckoutExisting: %v", err))
		utils.WriteError(w, "Checkout failed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Checkout completed", result)
}

func (h *Handler) CheckCreditStatus(w http.ResponseWriter, r *http.Request) {
	var req models.CreditStatusRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	result, err := h.SaleService.CheckCreditStatus(r.Context(), req.TicketTypeIDs)
	if err != nil {
		utils.WriteError(w, "Credit status check failed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit status resolved", result)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "orderId")
	if err != nil {
		utils.WriteError(w, "Invalid order id", err)
		return
	}
	details, err := h.SaleService.GetOrder(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Failed to fetch order", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Order retrieved", details)
}
