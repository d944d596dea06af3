package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-orchestrator/internal/api/dto"
	"github.com/spec-kit/ticket-orchestrator/internal/auth"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/service"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), auth.ActorFromContext(c), service.TicketCreateInput{
		Title:    req.Title,
		Body:     req.Body,
		Priority: req.Priority,
		Channel:  req.Channel,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewTicketResponse(ticket))
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(items)
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == nil {
		return apperrors.NewValidationError("status required", map[string]any{"status": "required"})
	}
	status, ok := domain.ParseTicketStatus(*req.Status)
	if !ok {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": *req.Status})
	}

	ticket, err := h.service.TransitionStatus(c.UserContext(), c.Params("id"), status, auth.ActorFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketHistoryResponses(entries))
}
