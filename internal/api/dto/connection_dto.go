package dto

import (
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// ConnectionStatusResponse reports the caller's ticketing connection.
type ConnectionStatusResponse struct {
	Connected         bool                    `json:"connected"`
	Status            domain.ConnectionStatus `json:"status,omitempty"`
	AvailableProjects []domain.Project        `json:"availableProjects,omitempty"`
	DefaultProject    *domain.Project         `json:"defaultProject,omitempty"`
	ExpiresAt         *time.Time              `json:"expiresAt,omitempty"`
}

// DefaultProjectRequest selects a project by (partial) name.
type DefaultProjectRequest struct {
	Name string `json:"name"`
}

// DefaultProjectResponse echoes the selected project.
type DefaultProjectResponse struct {
	DefaultProject domain.Project `json:"defaultProject"`
}

// ConnectionStatusFromSummary maps the domain view to the wire shape.
func ConnectionStatusFromSummary(s domain.ConnectionSummary) ConnectionStatusResponse {
	return ConnectionStatusResponse{
		Connected:         s.Connected,
		Status:            s.Status,
		AvailableProjects: s.AvailableProjects,
		DefaultProject:    s.DefaultProject,
		ExpiresAt:         s.ExpiresAt,
	}
}
