package resolution

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
)

const (
	msgNotConnected = "I couldn't create the ticket because your ticketing account isn't connected. " +
		"Connect it with the button below and then ask me to create the ticket again."
	msgReconnect = "I couldn't create the ticket because your ticketing connection has expired and could not be renewed. " +
		"Please reconnect your account and ask me to try again."
	msgNoProject = "I couldn't create the ticket because your ticketing account has no project I can file it in. " +
		"Please check your access in the ticketing system or contact your administrator."
	msgProviderRejected = "I wasn't able to create the ticket. The ticketing system rejected the request, " +
		"so no ticket has been created. Please try again later or contact your IT team directly."
)

func (m *Machine) handleCollectInfo(ctx context.Context, t *turn) error {
	text, err := m.complete(ctx, collectInfoPrompt(t.state, t.message))
	if err != nil {
		return err
	}
	t.state.TicketDetails = nil
	t.response = text
	return nil
}

func (m *Machine) handleAnalyze(ctx context.Context, t *turn) error {
	text, err := m.complete(ctx, analyzePrompt(t.state, t.message))
	if err != nil {
		return err
	}
	recordSolution(t, text)
	return nil
}

func (m *Machine) handleProvideSolution(ctx context.Context, t *turn) error {
	declined := t.withdrawn || (t.prevStage == domain.StageRequestingPermission && isDecline(t.message))
	text, err := m.complete(ctx, solutionPrompt(t.state, t.message, declined))
	if err != nil {
		return err
	}
	if declined {
		no := false
		t.state.SetPermission(&no)
	}
	recordSolution(t, text)
	return nil
}

func recordSolution(t *turn, text string) {
	t.state.Attempts++
	t.state.Solutions = append(t.state.Solutions, text)
	t.state.TicketDetails = nil
	t.response = text
}

func (m *Machine) handleRequestPermission(ctx context.Context, t *turn) error {
	draft := DraftTicket(t.state)
	text, err := m.complete(ctx, requestPermissionPrompt(t.state, t.message, draft))
	if err != nil {
		return err
	}
	t.state.TicketDetails = draft
	t.response = text
	t.toolType = ToolTicketConfirmation
	return nil
}

func (m *Machine) handleEscalate(ctx context.Context, t *turn) error {
	draft := DraftTicket(t.state)
	text, err := m.complete(ctx, escalatePrompt(t.state, t.message, draft))
	if err != nil {
		return err
	}
	t.state.TicketDetails = draft
	t.response = text
	t.toolType = ToolJiraConnect
	return nil
}

// handleCreateTicket never falls back once the gateway has been called: a
// created ticket must be reported even if the model is unavailable.
func (m *Machine) handleCreateTicket(ctx context.Context, t *turn) error {
	yes := true
	t.state.SetPermission(&yes)

	draft := t.state.TicketDetails
	if draft == nil || draft.Submitted() {
		draft = DraftTicket(t.state)
		t.state.TicketDetails = draft
	}

	ticket, err := m.tickets.CreateTicket(ctx, t.state.UserID, t.state.ConversationID, domain.TicketDraft{
		Title:       draft.Title,
		Description: draft.Description,
		Priority:    draft.Priority,
		Category:    draft.Category,
	})
	t.state.CurrentStage = domain.StageCompleted
	if err != nil {
		m.logger.Warn("ticket creation failed",
			zap.String("conversation_id", t.state.ConversationID),
			zap.Error(err))
		t.response, t.toolType = ticketFailureResponse(err)
		if !retryableTicketFailure(err) {
			t.state.SetPermission(nil)
		}
		return nil
	}

	t.ticket = ticket
	t.state.TicketDetails = ticket.Details()
	t.state.SetPermission(nil)

	text, err := m.complete(ctx, ticketCreatedPrompt(t.state, ticket))
	if err != nil {
		m.logger.Warn("ticket confirmation completion failed", zap.Error(err))
		text = ticketConfirmation(ticket)
	}
	t.response = text
	return nil
}

func ticketFailureResponse(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return msgNotConnected, ToolJiraConnect
	case errors.Is(err, domain.ErrTokenRefreshFailed):
		return msgReconnect, ToolJiraConnect
	case errors.Is(err, domain.ErrNoProject):
		return msgNoProject, ""
	default:
		return msgProviderRejected, ""
	}
}

// retryableTicketFailure reports failures the user can fix by connecting,
// in which case consent is kept so the next turn retries.
func retryableTicketFailure(err error) bool {
	return errors.Is(err, domain.ErrNotConnected) || errors.Is(err, domain.ErrTokenRefreshFailed)
}

func ticketConfirmation(ticket *domain.Ticket) string {
	msg := fmt.Sprintf("Your support ticket %s has been created in %s with %s priority.",
		ticket.ExternalKey, ticket.Project, ticket.Priority)
	if ticket.URL != "" {
		msg += " You can follow it here: " + ticket.URL
	}
	return msg + " The support team will follow up with you."
}

func (m *Machine) handleCheckConnection(ctx context.Context, t *turn) error {
	text, err := m.complete(ctx, checkConnectionPrompt(t.state, t.message, t.summary))
	if err != nil {
		return err
	}
	t.response = text
	if !t.connected {
		t.toolType = ToolJiraConnect
	}
	return nil
}

func (m *Machine) handleGeneralChat(ctx context.Context, t *turn) error {
	text, err := m.complete(ctx, generalChatPrompt(t.state, t.message))
	if err != nil {
		return err
	}
	t.response = text
	return nil
}
