package domain

import "time"

// TicketStatus enumerates lifecycle states for submitted tickets.
type TicketStatus string

const (
	TicketStatusCreated    TicketStatus = "created"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
)

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
	TicketPriorityUrgent   TicketPriority = "urgent"
)

// TicketDraft carries the fields the resolution flow hands to the gateway.
type TicketDraft struct {
	Title       string
	Description string
	Priority    TicketPriority
	Category    string
}

// Ticket is the audit record of a ticket created upstream.
type Ticket struct {
	ID             string
	UserID         string
	ConversationID string
	Provider       string
	ExternalKey    string
	URL            string
	Title          string
	Description    string
	Priority       TicketPriority
	Category       string
	Project        string
	ProjectID      string
	Status         TicketStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Details renders the submitted ticket in the conversation's shape.
func (t *Ticket) Details() *TicketDetails {
	return &TicketDetails{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Category:    t.Category,
		Project:     t.Project,
		ProjectID:   t.ProjectID,
		Key:         t.ExternalKey,
		URL:         t.URL,
		Status:      t.Status,
	}
}
