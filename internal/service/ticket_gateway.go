package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
	"github.com/deskflow/helpdesk-assistant/internal/ticketing"
)

// TokenRefresher renews an expired connection.
type TokenRefresher interface {
	Refresh(ctx context.Context, userID string, conn *domain.Connection) (*domain.Connection, error)
}

// TicketGateway creates tickets in the user's connected provider and keeps
// an audit record of each one.
type TicketGateway struct {
	connections repository.ConnectionRepository
	refresher   TokenRefresher
	provider    ticketing.Provider
	tickets     repository.TicketRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketGatewayDependencies bundles collaborators for TicketGateway.
type TicketGatewayDependencies struct {
	Connections repository.ConnectionRepository
	Refresher   TokenRefresher
	Provider    ticketing.Provider
	Tickets     repository.TicketRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewTicketGateway constructs the gateway.
func NewTicketGateway(deps TicketGatewayDependencies) *TicketGateway {
	g := &TicketGateway{
		connections: deps.Connections,
		refresher:   deps.Refresher,
		provider:    deps.Provider,
		tickets:     deps.Tickets,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// CreateTicket submits draft on behalf of userID. Calls are not idempotent:
// two identical drafts create two tickets.
func (g *TicketGateway) CreateTicket(ctx context.Context, userID, conversationID string, draft domain.TicketDraft) (*domain.Ticket, error) {
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Description) == "" {
		return nil, errors.New("ticket title and description required")
	}

	conn, err := g.connections.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotConnected
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if !conn.Connected() {
		return nil, domain.ErrNotConnected
	}

	project, ok := conn.ActiveProject()
	if !ok {
		return nil, domain.ErrNoProject
	}

	if conn.Expired(g.now()) {
		if conn.RefreshToken == "" || g.refresher == nil {
			return nil, domain.ErrTokenRefreshFailed
		}
		refreshed, err := g.refresher.Refresh(ctx, userID, conn)
		if err != nil {
			g.logger.Warn("token refresh before ticket creation failed",
				zap.String("user_id", userID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
		}
		conn = refreshed
	}

	result, err := g.provider.CreateTicket(ctx, ticketing.Request{
		AccessToken: conn.AccessToken,
		Project:     *project,
		Draft:       draft,
	})
	if err != nil {
		var providerErr *domain.ProviderError
		if errors.As(err, &providerErr) {
			g.logger.Warn("provider rejected ticket",
				zap.String("provider", providerErr.Provider),
				zap.Int("status", providerErr.StatusCode),
				zap.String("body", providerErr.Body))
			return nil, err
		}
		return nil, fmt.Errorf("%s create ticket: %w", g.provider.Name(), err)
	}

	status := result.Status
	if status == "" {
		status = domain.TicketStatusCreated
	}
	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Provider:       g.provider.Name(),
		ExternalKey:    result.Key,
		URL:            result.URL,
		Title:          draft.Title,
		Description:    draft.Description,
		Priority:       draft.Priority,
		Category:       draft.Category,
		Project:        project.Name,
		ProjectID:      project.ID,
		Status:         status,
	}
	// The upstream ticket exists at this point, so a failed audit write is
	// logged rather than reported as a failed creation.
	if err := g.tickets.Create(ctx, ticket); err != nil {
		g.logger.Error("failed to record ticket audit",
			zap.String("ticket_key", ticket.ExternalKey),
			zap.String("user_id", userID),
			zap.Error(err))
	}

	g.publishCreated(ctx, ticket)
	return ticket, nil
}

// ListTickets returns the audit records for a user, newest first.
func (g *TicketGateway) ListTickets(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return g.tickets.ListByUser(ctx, userID, limit, offset)
}

// GetTicket returns one audit record owned by userID. Malformed IDs are
// reported as not found without touching the store.
func (g *TicketGateway) GetTicket(ctx context.Context, userID, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	ticket, err := g.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return ticket, nil
}

func (g *TicketGateway) publishCreated(ctx context.Context, ticket *domain.Ticket) {
	if g.dispatcher == nil {
		return
	}
	err := g.dispatcher.Publish(ctx, events.Event{
		ID:             uuid.NewString(),
		Type:           events.EventTicketCreated,
		UserID:         ticket.UserID,
		ConversationID: ticket.ConversationID,
		Timestamp:      g.now().UTC(),
		Payload: events.TicketCreatedPayload{
			TicketID:    ticket.ID,
			Provider:    ticket.Provider,
			ExternalKey: ticket.ExternalKey,
			Project:     ticket.Project,
			Priority:    ticket.Priority,
			Title:       ticket.Title,
		},
	})
	if err != nil {
		g.logger.Warn("ticket_created handlers failed", zap.Error(err))
	}
}
