package domain

import (
	"strings"
	"time"
)

// ConnectionStatus enumerates the lifecycle of an integration connection.
type ConnectionStatus string

const (
	ConnectionStatusConnecting ConnectionStatus = "connecting"
	ConnectionStatusConnected  ConnectionStatus = "connected"
	ConnectionStatusFailed     ConnectionStatus = "failed"
)

// Project is a resource (site or project) the connected account can reach.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Connection is the single per-user OAuth connection to the ticketing provider.
type Connection struct {
	UserID            string
	Status            ConnectionStatus
	AccessToken       string
	RefreshToken      string
	ExpiresAt         time.Time
	Scope             string
	AvailableProjects []Project
	DefaultProject    *Project
	ConnectedAt       time.Time
	UpdatedAt         time.Time
}

// Normalize enforces that DefaultProject is a member of AvailableProjects.
// A missing or foreign default is replaced with the first available project.
func (c *Connection) Normalize() {
	if len(c.AvailableProjects) == 0 {
		return
	}
	if c.DefaultProject != nil {
		for _, p := range c.AvailableProjects {
			if p.ID == c.DefaultProject.ID {
				match := p
				c.DefaultProject = &match
				return
			}
		}
	}
	first := c.AvailableProjects[0]
	c.DefaultProject = &first
}

// Connected reports whether the connection is usable for provider calls.
func (c *Connection) Connected() bool {
	return c != nil && c.Status == ConnectionStatusConnected && c.AccessToken != ""
}

// Expired reports whether the access token is past its expiry.
func (c *Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ActiveProject resolves the project tickets should land in.
func (c *Connection) ActiveProject() (*Project, bool) {
	if c.DefaultProject != nil {
		p := *c.DefaultProject
		return &p, true
	}
	if len(c.AvailableProjects) > 0 {
		p := c.AvailableProjects[0]
		return &p, true
	}
	return nil, false
}

// FindProject returns the first project whose name contains name, case-insensitively.
func (c *Connection) FindProject(name string) (*Project, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, false
	}
	for _, p := range c.AvailableProjects {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			match := p
			return &match, true
		}
	}
	return nil, false
}

// Clone deep-copies the connection.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.AvailableProjects = append([]Project{}, c.AvailableProjects...)
	if c.DefaultProject != nil {
		p := *c.DefaultProject
		out.DefaultProject = &p
	}
	return &out
}

// ConnectionSummary is the public status view of a connection.
type ConnectionSummary struct {
	Connected         bool             `json:"connected"`
	Status            ConnectionStatus `json:"status,omitempty"`
	AvailableProjects []Project        `json:"availableProjects,omitempty"`
	DefaultProject    *Project         `json:"defaultProject,omitempty"`
	ExpiresAt         *time.Time       `json:"expiresAt,omitempty"`
	Expired           bool             `json:"expired,omitempty"`
}

// Summary renders the status view at the given instant.
func (c *Connection) Summary(now time.Time) ConnectionSummary {
	if c == nil {
		return ConnectionSummary{}
	}
	summary := ConnectionSummary{
		Connected:         c.Connected() && !c.Expired(now),
		Status:            c.Status,
		AvailableProjects: append([]Project{}, c.AvailableProjects...),
		Expired:           c.Expired(now),
	}
	if c.DefaultProject != nil {
		p := *c.DefaultProject
		summary.DefaultProject = &p
	}
	if !c.ExpiresAt.IsZero() {
		exp := c.ExpiresAt
		summary.ExpiresAt = &exp
	}
	return summary
}
