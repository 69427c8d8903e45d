package events

import (
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventConnectionEstablished EventType = "connection_established"
	EventConnectionRefreshed   EventType = "connection_refreshed"
	EventConnectionRemoved     EventType = "connection_removed"
	EventConversationEscalated EventType = "conversation_escalated"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID    string                `json:"ticket_id"`
	Provider    string                `json:"provider"`
	ExternalKey string                `json:"external_key"`
	Project     string                `json:"project"`
	Priority    domain.TicketPriority `json:"priority"`
	Title       string                `json:"title"`
}

// ConnectionPayload payload.
type ConnectionPayload struct {
	Projects       int       `json:"projects"`
	DefaultProject string    `json:"default_project,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Attempts int                   `json:"attempts"`
	Priority domain.TicketPriority `json:"priority"`
	Category string                `json:"category"`
}
