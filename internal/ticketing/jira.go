package ticketing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	v2 "github.com/ctreminiom/go-atlassian/v2/jira/v2"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

const jiraProviderName = "jira"

var jiraPriorities = map[domain.TicketPriority]string{
	domain.TicketPriorityLow:      "Low",
	domain.TicketPriorityMedium:   "Medium",
	domain.TicketPriorityHigh:     "High",
	domain.TicketPriorityCritical: "Highest",
	domain.TicketPriorityUrgent:   "Highest",
}

// JiraProvider creates issues in Jira Cloud through the OAuth gateway
// at {apiBase}/ex/jira/{cloudId}.
type JiraProvider struct {
	httpClient *http.Client
	apiBase    string
	projectKey string
	issueType  string
}

// NewJiraProvider constructs the provider.
func NewJiraProvider(httpClient *http.Client, apiBase, projectKey, issueType string) *JiraProvider {
	if issueType == "" {
		issueType = "Task"
	}
	return &JiraProvider{
		httpClient: httpClient,
		apiBase:    strings.TrimRight(apiBase, "/"),
		projectKey: projectKey,
		issueType:  issueType,
	}
}

func (p *JiraProvider) Name() string { return jiraProviderName }

// CreateTicket posts a REST v2 issue into the configured project of the site.
func (p *JiraProvider) CreateTicket(ctx context.Context, req Request) (*Result, error) {
	site := fmt.Sprintf("%s/ex/jira/%s", p.apiBase, req.Project.ID)
	client, err := v2.New(p.httpClient, site)
	if err != nil {
		return nil, fmt.Errorf("init jira client: %w", err)
	}
	client.Auth.SetBearerToken(req.AccessToken)

	fields := &models.IssueFieldsSchemeV2{
		Summary:     req.Draft.Title,
		Description: req.Draft.Description,
		Project:     &models.ProjectScheme{Key: p.projectKey},
		IssueType:   &models.IssueTypeScheme{Name: p.issueType},
		Labels:      labelsFor(req.Draft.Category),
	}
	if name, ok := jiraPriorities[req.Draft.Priority]; ok {
		fields.Priority = &models.PriorityScheme{Name: name}
	}

	issue, resp, err := client.Issue.Create(ctx, &models.IssueSchemeV2{Fields: fields}, nil)
	if err != nil {
		if resp != nil && resp.Code != 0 {
			return nil, &domain.ProviderError{Provider: jiraProviderName, StatusCode: resp.Code, Body: resp.Bytes.String()}
		}
		return nil, fmt.Errorf("jira create issue: %w", err)
	}

	return &Result{
		Key:    issue.Key,
		URL:    browseURL(req.Project.URL, issue.Key),
		Status: domain.TicketStatusCreated,
	}, nil
}

func browseURL(siteURL, key string) string {
	if siteURL == "" || key == "" {
		return ""
	}
	return strings.TrimRight(siteURL, "/") + "/browse/" + key
}

// labelsFor turns a category into a Jira label; labels cannot contain spaces.
func labelsFor(category string) []string {
	label := strings.ToLower(strings.Join(strings.Fields(category), "-"))
	if label == "" {
		return nil
	}
	return []string{label}
}
