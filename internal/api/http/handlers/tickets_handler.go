package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/helpdesk-assistant/internal/api/dto"
	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/service"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

// TicketsHandler exposes the caller's ticket audit records.
type TicketsHandler struct {
	gateway *service.TicketGateway
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(gateway *service.TicketGateway) *TicketsHandler {
	return &TicketsHandler{gateway: gateway}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	query := parseTicketListQuery(c)
	tickets, err := h.gateway.ListTickets(c.UserContext(), principal.UserID, query.PageSize, (query.Page-1)*query.PageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.gateway.GetTicket(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": c.Params("id")})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

func parseTicketListQuery(c *fiber.Ctx) dto.TicketListQuery {
	return dto.TicketListQuery{
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 20),
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
