package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/observability"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
	"github.com/deskflow/helpdesk-assistant/internal/resolution"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

// TurnRunner advances a conversation by one message.
type TurnRunner interface {
	Step(ctx context.Context, state *domain.SupportState, message string) (*resolution.Turn, error)
}

// ChatService loads conversation state, runs one resolution turn and
// persists the outcome.
type ChatService struct {
	conversations repository.ConversationRepository
	machine       TurnRunner
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	cfg           config.ChatConfig
	now           func() time.Time
}

// ChatDependencies bundles collaborators for ChatService.
type ChatDependencies struct {
	Conversations repository.ConversationRepository
	Machine       TurnRunner
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

// ChatInput is one inbound user message.
type ChatInput struct {
	UserID         string
	ConversationID string
	Message        string
}

// ChatResult is what the client renders for a turn.
type ChatResult struct {
	Response      string
	SupportStage  domain.SupportStage
	RequiresTool  bool
	ToolType      string
	TicketDetails *domain.TicketDetails
	Intent        resolution.Intent
}

// NewChatService constructs the service.
func NewChatService(cfg config.ChatConfig, deps ChatDependencies) *ChatService {
	s := &ChatService{
		conversations: deps.Conversations,
		machine:       deps.Machine,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		cfg:           cfg,
		now:           deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HandleMessage runs one turn for the conversation. A fallback turn is
// returned to the caller but its state is not saved.
func (s *ChatService) HandleMessage(ctx context.Context, input ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(input.Message)
	if strings.TrimSpace(input.ConversationID) == "" {
		return nil, apperrors.NewValidationError("conversationId is required", nil)
	}
	if message == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return nil, apperrors.NewValidationError("message too long", map[string]any{"max_length": s.cfg.MaxMessageLength})
	}

	if timeout := s.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	state, err := s.loadOrCreate(ctx, input.UserID, input.ConversationID, message)
	if err != nil {
		return nil, err
	}

	turn, err := s.machine.Step(ctx, state, message)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordIntent(string(turn.Intent))
	s.logger.Debug("resolution turn",
		zap.String("conversation_id", input.ConversationID),
		zap.String("intent", string(turn.Intent)),
		zap.String("rule", turn.Rule),
		zap.String("stage", string(turn.State.CurrentStage)),
		zap.Bool("fallback", turn.Fallback))

	if !turn.Fallback {
		if err := s.conversations.SaveState(ctx, turn.State); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				return nil, apperrors.NewConflict("conversation was updated by another request, please retry",
					map[string]any{"conversation_id": input.ConversationID})
			}
			return nil, fmt.Errorf("save support state: %w", err)
		}
	}
	s.appendTranscript(ctx, input.ConversationID, message, turn.Response)

	if turn.Intent == resolution.IntentRequestPermission || turn.Intent == resolution.IntentEscalate {
		s.publishEscalation(ctx, turn.State)
	}

	result := &ChatResult{
		Response:     turn.Response,
		SupportStage: turn.State.CurrentStage,
		RequiresTool: turn.RequiresTool,
		ToolType:     turn.ToolType,
		Intent:       turn.Intent,
	}
	if turn.State.TicketDetails != nil {
		details := *turn.State.TicketDetails
		result.TicketDetails = &details
	}
	return result, nil
}

// History returns the most recent transcript messages of a conversation.
func (s *ChatService) History(ctx context.Context, userID, conversationID string, limit int) ([]domain.ChatMessage, error) {
	state, err := s.conversations.LoadState(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"conversation_id": conversationID})
		}
		return nil, err
	}
	if state.UserID != userID {
		return nil, apperrors.NewForbidden("conversation belongs to another user")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.conversations.ListMessages(ctx, conversationID, limit)
}

func (s *ChatService) loadOrCreate(ctx context.Context, userID, conversationID, message string) (*domain.SupportState, error) {
	state, err := s.conversations.LoadState(ctx, conversationID)
	switch {
	case err == nil:
		if state.UserID != userID {
			return nil, apperrors.NewForbidden("conversation belongs to another user")
		}
		return state, nil
	case errors.Is(err, domain.ErrNotFound):
		// The connection flag is re-derived by the machine on every turn.
		return domain.NewSupportState(userID, conversationID, message, false, s.now().UTC()), nil
	default:
		return nil, fmt.Errorf("load support state: %w", err)
	}
}

func (s *ChatService) appendTranscript(ctx context.Context, conversationID, message, response string) {
	now := s.now().UTC()
	msgs := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: message, CreatedAt: now},
		{Role: domain.RoleAssistant, Content: response, CreatedAt: now},
	}
	for _, msg := range msgs {
		if err := s.conversations.AppendMessage(ctx, conversationID, msg); err != nil {
			s.logger.Warn("failed to append transcript message",
				zap.String("conversation_id", conversationID),
				zap.String("role", string(msg.Role)),
				zap.Error(err))
		}
	}
}

func (s *ChatService) publishEscalation(ctx context.Context, state *domain.SupportState) {
	if s.dispatcher == nil {
		return
	}
	payload := events.EscalatedPayload{Attempts: state.Attempts}
	if state.TicketDetails != nil {
		payload.Priority = state.TicketDetails.Priority
		payload.Category = state.TicketDetails.Category
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:             uuid.NewString(),
		Type:           events.EventConversationEscalated,
		UserID:         state.UserID,
		ConversationID: state.ConversationID,
		Timestamp:      s.now().UTC(),
		Payload:        payload,
	})
	if err != nil {
		s.logger.Warn("conversation_escalated handlers failed", zap.Error(err))
	}
}
