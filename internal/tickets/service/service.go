package tickets

import (
	"context"
	"fmt"

	"ms-sales/internal/apperr"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	qr "ms-sales/internal/tickets/qr_genrator"
)

type TicketDBLayer interface {
	GetTicketDetails(ctx context.Context, id int64) (*models.TicketDetails, error)
	GenerateTickets(ctx context.Context, lines []models.GenerateLine) ([]int64, error)
	AssignTicketTypes(ctx context.Context, assignments []models.TicketAssignment) (models.AssignResult, error)
	RefundTicket(ctx context.Context, id int64) error
}

type TicketService struct {
	DB          TicketDBLayer
	QR          *qr.QRGenerator
	Logger      *logger.Logger
	MaxQuantity int
}

func NewTicketService(db TicketDBLayer, qrGen *qr.QRGenerator, log *logger.Logger, maxQuantity int) *TicketService {
	return &TicketService{DB: db, QR: qrGen, Logger: log, MaxQuantity: maxQuantity}
}

func (s *TicketService) GetTicket(ctx context.Context, id int64) (*models.TicketDetails, error) {
	if id <= 0 {
		return nil, apperr.Validation("ticket_id", "must be a positive integer")
	}
	return s.DB.GetTicketDetails(ctx, id)
}

func (s *TicketService) GenerateTickets(ctx context.Context, lines []models.GenerateLine) ([]int64, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("lines", "at least one line is required")
	}
	for i, line := range lines {
		if line.Quantity < 1 || line.Quantity > s.MaxQuantity {
			return nil, apperr.Validation(fmt.Sprintf("lines[%d].quantity", i), "must be between 1 and %d", s.MaxQuantity)
		}
		if line.TicketTypeID != nil && *line.TicketTypeID <= 0 {
			return nil, apperr.Validation(fmt.Sprintf("lines[%d].ticket_type_id", i), "must be a positive integer")
		}
	}

	ids, err := s.DB.GenerateTickets(ctx, lines)
	if err != nil {
		return nil, err
	}
	s.Logger.LogDatabase("INSERT", "tickets", fmt.Sprintf("generated %d tickets", len(ids)))
	return ids, nil
}

func (s *TicketService) AssignTicketTypes(ctx context.Context, assignments []models.TicketAssignment) (models.AssignResult, error) {
	if len(assignments) == 0 {
		return models.AssignResult{}, apperr.Validation("assignments", "at least one assignment is required")
	}
	seen := make(map[int64]bool, len(assignments))
	for i, a := range assignments {
		if a.TicketID <= 0 {
			return models.AssignResult{}, apperr.Validation(fmt.Sprintf("assignments[%d].ticket_id", i), "must be a positive integer")
		}
		if seen[a.TicketID] {
			return models.AssignResult{}, apperr.Validation(fmt.Sprintf("assignments[%d].ticket_id", i), "ticket %d listed twice", a.TicketID)
		}
		seen[a.TicketID] = true
	}

	result, err := s.DB.AssignTicketTypes(ctx, assignments)
	if err != nil {
		return models.AssignResult{}, err
	}
	s.Logger.LogDatabase("UPDATE", "tickets", fmt.Sprintf("assigned=%d unassigned=%d unchanged=%d",
		result.Assigned, result.Unassigned, result.Unchanged))
	return result, nil
}

// RefundTicket resets a sold ticket to available. Payment and ledger rows
// of its order are left untouched.
func (s *TicketService) RefundTicket(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("ticket_id", "must be a positive integer")
	}
	if err := s.DB.RefundTicket(ctx, id); err != nil {
		return err
	}
	s.Logger.Warn("TICKET", fmt.Sprintf("ticket %d refunded, ledger and payments unchanged", id))
	return nil
}

func (s *TicketService) TicketQR(ctx context.Context, id int64) ([]byte, error) {
	details, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	png, err := s.QR.GenerateEncryptedQR(models.Ticket{ID: details.ID, TicketTypeID: details.TicketTypeID})
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR: %w", err)
	}
	return png, nil
}

// VerifyQR opens a scanned token and returns the current state of the ticket
// it names.
func (s *TicketService) VerifyQR(ctx context.Context, token string) (*models.TicketDetails, error) {
	if token == "" {
		return nil, apperr.Validation("token", "is required")
	}
	payload, err := s.QR.Open(token)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", err.Error())
		return nil, apperr.Validation("token", "invalid QR code")
	}
	return s.DB.GetTicketDetails(ctx, payload.TicketID)
}
