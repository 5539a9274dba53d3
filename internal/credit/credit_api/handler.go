package credit_api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/utils"
)

type CreditService interface {
	CreateAccount(ctx context.Context, req models.CreateCreditAccountRequest) (*models.CreditAccount, error)
	ListAccounts(ctx context.Context) ([]models.CreditAccount, error)
	GetAccount(ctx context.Context, accountID int64) (*models.CreditAccount, error)
	AdjustCredit(ctx context.Context, accountID int64, req models.AdjustCreditRequest) (*models.AdjustCreditResult, error)
	LinkCategory(ctx context.Context, req models.CategoryLinkRequest) error
	UnlinkCategory(ctx context.Context, req models.CategoryLinkRequest) error
	Transactions(ctx context.Context, accountID int64, page, limit int) (*models.CreditTransactionPage, error)
	Reconcile(ctx context.Context, accountID int64) (*models.ReconcileResult, error)
}

type Handler struct {
	CreditService CreditService
	Logger        *logger.Logger
}

func NewHandler(svc CreditService, log *logger.Logger) *Handler {
	return &Handler{CreditService: svc, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/credit-accounts", func(r chi.Router) {
		r.Post("/", h.CreateAccount)
		r.Get("/", h.ListAccounts)
		r.Post("/link-category", h.LinkCategory)
		r.Delete("/unlink-category", h.UnlinkCategory)
		r.Get("/{accountId}", h.GetAccount)
		r.Post("/{accountId}/adjust", h.AdjustCredit)
		r.Get("/{accountId}/transactions", h.Transactions)
		r.Get("/{accountId}/reconcile", h.Reconcile)
	})
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCreditAccountRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	acc, err := h.CreditService.CreateAccount(r.Context(), req)
	if err != nil {
		h.Logger.Warn("CREDIT", "create account failed: "+err.Error())
		utils.WriteError(w, "Failed to create credit account", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Credit account created", acc)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.CreditService.ListAccounts(r.Context())
	if err != nil {
		utils.WriteError(w, "Failed to list credit accounts", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit accounts retrieved", accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "accountId")
	if err != nil {
		utils.WriteError(w, "Invalid account id", err)
		return
	}
	acc, err := h.CreditService.GetAccount(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Failed to fetch credit account", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit account retrieved", acc)
}

func (h *Handler) AdjustCredit(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "accountId")
	if err != nil {
		utils.WriteError(w, "Invalid account id", err)
		return
	}
	var req models.AdjustCreditRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	result, err := h.CreditService.AdjustCredit(r.Context(), id, req)
	if err != nil {
		utils.WriteError(w, "Failed to adjust credit", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit adjusted", result)
}

func (h *Handler) LinkCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryLinkRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	if err := h.CreditService.LinkCategory(r.Context(), req); err != nil {
		utils.WriteError(w, "Failed to link category", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Category linked", req)
}

func (h *Handler) UnlinkCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryLinkRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	if err := h.CreditService.UnlinkCategory(r.Context(), req); err != nil {
		utils.WriteError(w, "Failed to unlink category", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Category unlinked", req)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "accountId")
	if err != nil {
		utils.WriteError(w, "Invalid account id", err)
		return
	}
	page, err := utils.IntQuery(r, "page", 1)
	if err != nil {
		utils.WriteError(w, "Invalid page", err)
		return
	}
	limit, err := utils.IntQuery(r, "limit", 0)
	if err != nil {
		utils.WriteError(w, "Invalid limit", err)
		return
	}
	result, err := h.CreditService.Transactions(r.Context(), id, page, limit)
	if err != nil {
		utils.WriteError(w, "Failed to list credit transactions", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit transactions retrieved", result)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "accountId")
	if err != nil {
		utils.WriteError(w, "Invalid account id", err)
		return
	}
	result, err := h.CreditService.Reconcile(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Failed to reconcile credit account", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Credit account reconciled", result)
}
