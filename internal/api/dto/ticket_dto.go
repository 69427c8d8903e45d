package dto

import (
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// TicketListQuery captures paging for the ticket audit list.
type TicketListQuery struct {
	Page     int
	PageSize int
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	URL         string                `json:"url,omitempty"`
	Provider    string                `json:"provider"`
	Project     string                `json:"project"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Category    string                `json:"category"`
	CreatedAt   time.Time             `json:"created_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	ConversationID string    `json:"conversation_id"`
	ProjectID      string    `json:"project_id"`
	Description    string    `json:"description"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewTicketSummary maps an audit record.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		URL:         t.URL,
		Provider:    t.Provider,
		Project:     t.Project,
		Title:       t.Title,
		Status:      t.Status,
		Priority:    t.Priority,
		Category:    t.Category,
		CreatedAt:   t.CreatedAt,
	}
}

// NewTicketDetail maps an audit record with its full description.
func NewTicketDetail(t *domain.Ticket) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary:  NewTicketSummary(t),
		ConversationID: t.ConversationID,
		ProjectID:      t.ProjectID,
		Description:    t.Description,
		UpdatedAt:      t.UpdatedAt,
	}
}
