package ticketing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

// Request is one ticket submission on behalf of a connected user.
type Request struct {
	AccessToken string
	Project     domain.Project
	Draft       domain.TicketDraft
}

// Result identifies the ticket created upstream.
type Result struct {
	Key    string
	URL    string
	Status domain.TicketStatus
}

// Provider performs the provider-specific create call. Non-2xx responses
// are returned as *domain.ProviderError.
type Provider interface {
	Name() string
	CreateTicket(ctx context.Context, req Request) (*Result, error)
}

// NewProvider selects the provider named in configuration.
func NewProvider(cfg config.TicketingConfig) (Provider, error) {
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case "jira":
		return NewJiraProvider(httpClient, cfg.APIBaseURL, cfg.ProjectKey, cfg.IssueType), nil
	case "helpdesk":
		if cfg.HelpdeskURL == "" {
			return nil, fmt.Errorf("HELPDESK_API_URL is required for the helpdesk provider")
		}
		return NewHelpdeskProvider(httpClient, cfg.HelpdeskURL), nil
	default:
		return nil, fmt.Errorf("unsupported ticketing provider: %s", cfg.Provider)
	}
}
