package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/events"
)

// NotificationService forwards domain events to the configured channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	httpClient *http.Client
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventConversationEscalated, n.handleEscalated)
	n.dispatcher.Subscribe(events.EventConnectionEstablished, n.handleConnectionChanged)
	n.dispatcher.Subscribe(events.EventConnectionRefreshed, n.handleConnectionChanged)
	n.dispatcher.Subscribe(events.EventConnectionRemoved, n.handleConnectionChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated",
		zap.String("user_id", event.UserID),
		zap.String("conversation_id", event.ConversationID),
		zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return n.sendWebhook(ctx, event)
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("ConversationEscalated",
		zap.String("user_id", event.UserID),
		zap.String("conversation_id", event.ConversationID),
		zap.Any("payload", event.Payload))
	return n.sendWebhook(ctx, event)
}

// Connection changes are audit-logged only.
func (n *NotificationService) handleConnectionChanged(_ context.Context, event events.Event) error {
	n.logger.Info("ConnectionChanged",
		zap.String("event_type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver webhook: status %d", resp.StatusCode)
	}
	return nil
}
