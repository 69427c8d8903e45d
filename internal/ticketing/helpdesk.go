package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

const helpdeskProviderName = "helpdesk"

// HelpdeskProvider talks to a generic help-desk JSON API.
type HelpdeskProvider struct {
	httpClient *http.Client
	baseURL    string
}

// NewHelpdeskProvider constructs the provider.
func NewHelpdeskProvider(httpClient *http.Client, baseURL string) *HelpdeskProvider {
	return &HelpdeskProvider{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *HelpdeskProvider) Name() string { return helpdeskProviderName }

type helpdeskTicketRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    string          `json:"priority"`
	Category    string          `json:"category"`
	Project     helpdeskProject `json:"project"`
}

type helpdeskProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type helpdeskTicketResponse struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

func (p *HelpdeskProvider) CreateTicket(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(helpdeskTicketRequest{
		Title:       req.Draft.Title,
		Description: req.Draft.Description,
		Priority:    string(req.Draft.Priority),
		Category:    req.Draft.Category,
		Project:     helpdeskProject{ID: req.Project.ID, Name: req.Project.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("encode ticket: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tickets", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("helpdesk request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read helpdesk response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.ProviderError{Provider: helpdeskProviderName, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out helpdeskTicketResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode helpdesk response: %w", err)
	}
	key := out.Key
	if key == "" {
		key = out.ID
	}
	status := domain.TicketStatus(out.Status)
	switch status {
	case domain.TicketStatusCreated, domain.TicketStatusInProgress, domain.TicketStatusResolved:
	default:
		status = domain.TicketStatusCreated
	}
	return &Result{Key: key, URL: out.URL, Status: status}, nil
}
