package analytics_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-sales/internal/analytics"
	"ms-sales/internal/apperr"
	"ms-sales/internal/logger"
	"ms-sales/internal/utils"
)

const dateLayout = "2006-01-02"

type SummaryService interface {
	GetSalesSummary(ctx context.Context, rng analytics.Range) (*analytics.SalesSummary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service SummaryService
	Logger  *logger.Logger
}

func NewHandler(service SummaryService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/sales", h.GetSalesSummary)
	})
}

// parseDay reads an optional YYYY-MM-DD query parameter as midnight UTC.
func parseDay(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, apperr.Validation(name, "must be a date like 2006-01-02, got %q", raw)
	}
	return &day, nil
}

// GetSalesSummary serves GET /analytics/sales?from=&to=. Both dates are
// inclusive.
func (h *Handler) GetSalesSummary(w http.ResponseWriter, r *http.Request) {
	from, err := parseDay(r, "from")
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	to, err := parseDay(r, "to")
	if err != nil {
		utils.WriteError(w, "Invalid date range", err)
		return
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}

	summary, err := h.Service.GetSalesSummary(r.Context(), analytics.Range{From: from, To: to})
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Sales summary failed: %v", err))
		utils.WriteError(w, "Failed to build sales summary", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Sales summary retrieved", summary)
}
