package dto

import (
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// ChatRequest is one user message.
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

// ChatResponse is what the chat client renders.
type ChatResponse struct {
	Response      string                `json:"response"`
	SupportStage  domain.SupportStage   `json:"supportStage"`
	RequiresTool  bool                  `json:"requiresTool"`
	ToolType      string                `json:"toolType,omitempty"`
	TicketDetails *domain.TicketDetails `json:"ticketDetails,omitempty"`
}

// ChatMessageResponse is one transcript entry.
type ChatMessageResponse struct {
	Role      domain.MessageRole `json:"role"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"createdAt"`
}
