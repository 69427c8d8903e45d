package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/helpdesk-assistant/internal/api/dto"
	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/service"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

// ChatHandler serves the conversational entry point.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// PostMessage POST /chat.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.chat.HandleMessage(c.UserContext(), service.ChatInput{
		UserID:         principal.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.ChatResponse{
		Response:      result.Response,
		SupportStage:  result.SupportStage,
		RequiresTool:  result.RequiresTool,
		ToolType:      result.ToolType,
		TicketDetails: result.TicketDetails,
	})
}

// ListMessages GET /chat/:conversationId/messages.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	msgs, err := h.chat.History(c.UserContext(), principal.UserID, c.Params("conversationId"), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	items := make([]dto.ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, dto.ChatMessageResponse{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return c.JSON(fiber.Map{"data": items})
}
