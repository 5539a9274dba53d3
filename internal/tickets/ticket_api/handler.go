package ticket_api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/utils"
)

type TicketService interface {
	GetTicket(ctx context.Context, id int64) (*models.TicketDetails, error)
	GenerateTickets(ctx context.Context, lines []models.GenerateLine) ([]int64, error)
	AssignTicketTypes(ctx context.Context, assignments []models.TicketAssignment) (models.AssignResult, error)
	RefundTicket(ctx context.Context, id int64) error
	TicketQR(ctx context.Context, id int64) ([]byte, error)
	VerifyQR(ctx context.Context, token string) (*models.TicketDetails, error)
}

type Handler struct {
	TicketService TicketService
	Logger        *logger.Logger
}

func NewHandler(svc TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: svc, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Put("/assign", h.AssignTicketTypes)
		r.Post("/generate", h.GenerateTickets)
		r.Post("/verify-qr", h.VerifyQR)
		r.Get("/{ticketId}", h.ViewTicket)
		r.Get("/{ticketId}/qr", h.TicketQR)
		r.Post("/{ticketId}/refund", h.RefundTicket)
	})
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "ticketId")
	if err != nil {
		utils.WriteError(w, "Invalid ticket id", err)
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Failed to fetch ticket", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket retrieved", ticket)
}

func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "ticketId")
	if err != nil {
		utils.WriteError(w, "Invalid ticket id", err)
		return
	}
	png, err := h.TicketService.TicketQR(r.Context(), id)
	if err != nil {
		utils.WriteError(w, "Failed to generate QR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) VerifyQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	ticket, err := h.TicketService.VerifyQR(r.Context(), req.Token)
	if err != nil {
		utils.WriteError(w, "QR verification failed", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "QR verified", ticket)
}

func (h *Handler) AssignTicketTypes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignments []models.TicketAssignment `json:"assignments"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	result, err := h.TicketService.AssignTicketTypes(r.Context(), req.Assignments)
	if err != nil {
		utils.WriteError(w, "Failed to assign ticket types", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket types updated", result)
}

func (h *Handler) GenerateTickets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lines []models.GenerateLine `json:"lines"`
	}
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request", err)
		return
	}
	ids, err := h.TicketService.GenerateTickets(r.Context(), req.Lines)
	if err != nil {
		utils.WriteError(w, "Failed to generate tickets", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, fmt.Sprintf("%d tickets generated", len(ids)), map[string]interface{}{
		"ticket_ids": ids,
	})
}

func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	id, err := utils.IDParam(r, "ticketId")
	if err != nil {
		utils.WriteError(w, "Invalid ticket id", err)
		return
	}
	if err := h.TicketService.RefundTicket(r.Context(), id); err != nil {
		utils.WriteError(w, "Failed to refund ticket", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket refunded", map[string]interface{}{"ticket_id": id})
}
