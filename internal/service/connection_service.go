package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
)

// ConnectionService runs the OAuth2 PKCE handshake against the ticketing
// provider and owns the lifecycle of the resulting per-user connection.
type ConnectionService struct {
	oauth        *oauth2.Config
	audience     string
	resourcesURL string
	handshakeTTL time.Duration
	httpClient   *http.Client
	connections  repository.ConnectionRepository
	handshakes   repository.OAuthStateRepository
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	now          func() time.Time
}

// ConnectionDependencies bundles collaborators for ConnectionService.
type ConnectionDependencies struct {
	Connections repository.ConnectionRepository
	Handshakes  repository.OAuthStateRepository
	Dispatcher  events.Dispatcher
	HTTPClient  *http.Client
	Logger      *zap.Logger
	Now         func() time.Time
}

// CallbackParams carries the query of the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult describes a completed handshake.
type CallbackResult struct {
	UserID         string
	ConversationID string
	Projects       []domain.Project
	DefaultProject *domain.Project
}

// NewConnectionService constructs the service.
func NewConnectionService(cfg config.OAuthConfig, deps ConnectionDependencies) *ConnectionService {
	httpClient := deps.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout()
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ConnectionService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		audience:     cfg.Audience,
		resourcesURL: cfg.ResourcesURL,
		handshakeTTL: cfg.HandshakeTTL(),
		httpClient:   httpClient,
		connections:  deps.Connections,
		handshakes:   deps.Handshakes,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		now:          now,
	}
}

// Start records a new handshake for the user and returns the authorize URL.
// A pending handshake for the same user is replaced.
func (s *ConnectionService) Start(ctx context.Context, userID, conversationID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	state, err := auth.NewStateToken()
	if err != nil {
		return "", err
	}
	pkce := auth.NewPKCEPair()
	now := s.now().UTC()

	record := domain.OAuthState{
		State:          state,
		CodeVerifier:   pkce.Verifier,
		CodeChallenge:  pkce.Challenge,
		ConversationID: conversationID,
		Timestamp:      now,
		ExpiresAt:      now.Add(s.handshakeTTL),
	}
	if err := s.handshakes.Put(ctx, userID, record); err != nil {
		return "", fmt.Errorf("store handshake: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(pkce.Verifier),
	}
	if s.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", s.audience))
	}
	return s.oauth.AuthCodeURL(state, opts...), nil
}

// Callback completes a handshake. Unknown, expired and already consumed
// states all return domain.ErrInvalidHandshake.
func (s *ConnectionService) Callback(ctx context.Context, params CallbackParams) (*CallbackResult, error) {
	if params.Error != "" {
		s.logger.Warn("provider denied authorization",
			zap.String("error", params.Error),
			zap.String("description", params.ErrorDescription))
		if params.State != "" {
			if record, err := s.handshakes.GetByState(ctx, params.State); err == nil {
				s.dropHandshake(ctx, record.UserID)
			}
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrAuthorizationDenied, params.Error)
	}
	if params.State == "" || params.Code == "" {
		return nil, domain.ErrInvalidHandshake
	}

	record, err := s.handshakes.GetByState(ctx, params.State)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("oauth callback with unknown state")
			return nil, domain.ErrInvalidHandshake
		}
		return nil, fmt.Errorf("load handshake: %w", err)
	}
	// Consumed on first use so a replayed callback cannot exchange again.
	s.dropHandshake(ctx, record.UserID)

	now := s.now().UTC()
	if record.State.Expired(now) {
		s.logger.Info("oauth callback with expired state",
			zap.String("user_id", record.UserID),
			zap.Time("expires_at", record.State.ExpiresAt))
		return nil, domain.ErrInvalidHandshake
	}

	ctx = s.clientContext(ctx)
	token, err := s.oauth.Exchange(ctx, params.Code, oauth2.VerifierOption(record.State.CodeVerifier))
	if err != nil {
		return nil, s.exchangeError(err)
	}

	projects, err := s.accessibleResources(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, domain.ErrNoAccessibleResources
	}

	conn := &domain.Connection{
		UserID:            record.UserID,
		Status:            domain.ConnectionStatusConnected,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         token.Expiry,
		Scope:             tokenScope(token),
		AvailableProjects: projects,
		DefaultProject:    &projects[0],
		ConnectedAt:       now,
	}
	if err := s.connections.Put(ctx, conn); err != nil {
		return nil, fmt.Errorf("persist connection: %w", err)
	}

	s.publish(ctx, events.EventConnectionEstablished, conn, record.State.ConversationID)
	return &CallbackResult{
		UserID:         conn.UserID,
		ConversationID: record.State.ConversationID,
		Projects:       conn.AvailableProjects,
		DefaultProject: conn.DefaultProject,
	}, nil
}

// Refresh exchanges the stored refresh token and persists the renewed
// connection. Concurrent refreshes for one user are not serialized; the last
// write wins.
func (s *ConnectionService) Refresh(ctx context.Context, userID string, conn *domain.Connection) (*domain.Connection, error) {
	if conn == nil || conn.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	ctx = s.clientContext(ctx)
	// An empty access token forces the source to hit the token endpoint.
	source := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	refreshed := conn.Clone()
	refreshed.UserID = userID
	refreshed.Status = domain.ConnectionStatusConnected
	refreshed.AccessToken = token.AccessToken
	refreshed.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	if scope := tokenScope(token); scope != "" {
		refreshed.Scope = scope
	}
	if err := s.connections.Put(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("persist refreshed connection: %w", err)
	}

	s.publish(ctx, events.EventConnectionRefreshed, refreshed, "")
	return refreshed, nil
}

// Status reports the user's connection, refreshing an expired token inline.
// A failed refresh degrades to the expired view instead of failing.
func (s *ConnectionService) Status(ctx context.Context, userID string) (domain.ConnectionSummary, error) {
	conn, err := s.connections.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ConnectionSummary{Connected: false}, nil
		}
		return domain.ConnectionSummary{}, fmt.Errorf("load connection: %w", err)
	}

	now := s.now()
	if conn.Status == domain.ConnectionStatusConnected && conn.Expired(now) && conn.RefreshToken != "" {
		refreshed, err := s.Refresh(ctx, userID, conn)
		if err != nil {
			s.logger.Warn("inline token refresh failed",
				zap.String("user_id", userID), zap.Error(err))
		} else {
			conn = refreshed
		}
	}
	return conn.Summary(now), nil
}

// UpdateDefaultProject selects the first available project whose name
// contains name, case-insensitively.
func (s *ConnectionService) UpdateDefaultProject(ctx context.Context, userID, name string) (*domain.Project, error) {
	conn, err := s.connections.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotConnected
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}
	project, ok := conn.FindProject(name)
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	conn.DefaultProject = project
	if err := s.connections.Put(ctx, conn); err != nil {
		return nil, fmt.Errorf("persist connection: %w", err)
	}
	return project, nil
}

// Disconnect removes the connection and any pending handshake.
func (s *ConnectionService) Disconnect(ctx context.Context, userID string) error {
	conn, err := s.connections.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load connection: %w", err)
	}
	if err := s.connections.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	s.dropHandshake(ctx, userID)
	if conn != nil {
		s.publish(ctx, events.EventConnectionRemoved, conn, "")
	}
	return nil
}

type accessibleResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *ConnectionService) accessibleResources(ctx context.Context, token *oauth2.Token) ([]domain.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.resourcesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list accessible resources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("list accessible resources: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var resources []accessibleResource
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, fmt.Errorf("decode accessible resources: %w", err)
	}
	projects := make([]domain.Project, 0, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			continue
		}
		projects = append(projects, domain.Project{ID: r.ID, Name: r.Name, URL: r.URL})
	}
	return projects, nil
}

func (s *ConnectionService) exchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		s.logger.Info("authorization code rejected by provider", zap.String("description", retrieveErr.ErrorDescription))
		return domain.ErrCodeAlreadyUsed
	}
	s.logger.Warn("token exchange failed", zap.Error(err))
	return fmt.Errorf("%w: %v", domain.ErrTokenExchangeFailed, err)
}

func (s *ConnectionService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *ConnectionService) dropHandshake(ctx context.Context, userID string) {
	if err := s.handshakes.DeleteForUser(ctx, userID); err != nil {
		s.logger.Warn("failed to delete handshake", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *ConnectionService) publish(ctx context.Context, eventType events.EventType, conn *domain.Connection, conversationID string) {
	if s.dispatcher == nil {
		return
	}
	payload := events.ConnectionPayload{
		Projects:  len(conn.AvailableProjects),
		ExpiresAt: conn.ExpiresAt,
	}
	if conn.DefaultProject != nil {
		payload.DefaultProject = conn.DefaultProject.Name
	}
	event := events.Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		UserID:         conn.UserID,
		ConversationID: conversationID,
		Timestamp:      s.now().UTC(),
		Payload:        payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func tokenScope(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}
