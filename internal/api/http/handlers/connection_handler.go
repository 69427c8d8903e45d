package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/helpdesk-assistant/internal/api/dto"
	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/service"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

// ConnectionHandler manages the caller's ticketing connection.
type ConnectionHandler struct {
	connections *service.ConnectionService
}

// NewConnectionHandler constructs handler.
func NewConnectionHandler(connections *service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// Status POST /connection/status.
func (h *ConnectionHandler) Status(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	summary, err := h.connections.Status(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(dto.ConnectionStatusFromSummary(summary))
}

// SetDefaultProject POST /connection/default-project.
func (h *ConnectionHandler) SetDefaultProject(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.DefaultProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}

	project, err := h.connections.UpdateDefaultProject(c.UserContext(), principal.UserID, req.Name)
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return apperrors.NewDomainError("NOT_CONNECTED", "no ticketing connection", http.StatusConflict, nil)
	case errors.Is(err, domain.ErrProjectNotFound):
		return apperrors.NewNotFound("project", map[string]any{"name": req.Name})
	case err != nil:
		return err
	}
	return c.JSON(dto.DefaultProjectResponse{DefaultProject: *project})
}

// Disconnect DELETE /connection.
func (h *ConnectionHandler) Disconnect(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.connections.Disconnect(c.UserContext(), principal.UserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
