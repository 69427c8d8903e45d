package resolution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/llm"
)

// Tool types the client renders alongside a reply.
const (
	ToolJiraConnect        = "jira_connect"
	ToolTicketConfirmation = "ticket_confirmation"
)

const fallbackResponse = "I'm sorry, I ran into a problem while working on that. Please try again in a moment."

// TicketCreator submits a drafted ticket for a user.
type TicketCreator interface {
	CreateTicket(ctx context.Context, userID, conversationID string, draft domain.TicketDraft) (*domain.Ticket, error)
}

// ConnectionReader reports a user's current connection status.
type ConnectionReader interface {
	Status(ctx context.Context, userID string) (domain.ConnectionSummary, error)
}

// Dependencies bundles collaborators of the machine.
type Dependencies struct {
	Completer   llm.Completer
	Tickets     TicketCreator
	Connections ConnectionReader
	Options     llm.Options
	Logger      *zap.Logger
	Now         func() time.Time
}

// Turn is the outcome of one message.
type Turn struct {
	State        *domain.SupportState
	Response     string
	Intent       Intent
	Rule         string
	RequiresTool bool
	ToolType     string
	Ticket       *domain.Ticket
	// Fallback marks an apology produced after a failure; its State must not be persisted.
	Fallback bool
}

type handlerFunc func(ctx context.Context, t *turn) error

// transition binds an intent to the stage it enters and the handler that runs there.
type transition struct {
	Stage  domain.SupportStage
	Handle handlerFunc
}

// turn is the working set of a single Step.
type turn struct {
	state     *domain.SupportState
	message   string
	prevStage domain.SupportStage
	connected bool
	summary   domain.ConnectionSummary
	response  string
	toolType  string
	ticket    *domain.Ticket
	// withdrawn is set when this message took back consent kept from a
	// failed ticket attempt.
	withdrawn bool
}

// Machine classifies messages and advances support state.
type Machine struct {
	completer   llm.Completer
	tickets     TicketCreator
	connections ConnectionReader
	options     llm.Options
	logger      *zap.Logger
	now         func() time.Time
	transitions map[Intent]transition
}

// NewMachine builds the machine and validates its transition table.
func NewMachine(deps Dependencies) (*Machine, error) {
	if deps.Completer == nil {
		return nil, errors.New("resolution: completer is required")
	}
	if deps.Tickets == nil {
		return nil, errors.New("resolution: ticket creator is required")
	}
	m := &Machine{
		completer:   deps.Completer,
		tickets:     deps.Tickets,
		connections: deps.Connections,
		options:     deps.Options,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.transitions = map[Intent]transition{
		IntentCheckJira:         {Stage: domain.StageCheckingJira, Handle: m.handleCheckConnection},
		IntentGeneralChat:       {Stage: domain.StageGeneralChat, Handle: m.handleGeneralChat},
		IntentCollectInfo:       {Stage: domain.StageCollectingInfo, Handle: m.handleCollectInfo},
		IntentCreateTicket:      {Stage: domain.StageCreatingTicket, Handle: m.handleCreateTicket},
		IntentProvideSolution:   {Stage: domain.StageTroubleshooting, Handle: m.handleProvideSolution},
		IntentRequestPermission: {Stage: domain.StageRequestingPermission, Handle: m.handleRequestPermission},
		IntentEscalate:          {Stage: domain.StageEscalating, Handle: m.handleEscalate},
		IntentAnalyze:           {Stage: domain.StageAnalyzing, Handle: m.handleAnalyze},
	}
	if err := validateTransitions(m.transitions); err != nil {
		return nil, err
	}
	return m, nil
}

func validateTransitions(table map[Intent]transition) error {
	for _, intent := range AllIntents {
		tr, ok := table[intent]
		if !ok {
			return fmt.Errorf("resolution: no transition for intent %q", intent)
		}
		if tr.Handle == nil {
			return fmt.Errorf("resolution: transition for %q has no handler", intent)
		}
		if !tr.Stage.Valid() {
			return fmt.Errorf("resolution: transition for %q targets unknown stage %q", intent, tr.Stage)
		}
	}
	for _, rule := range Rules {
		if _, ok := table[rule.Intent]; !ok {
			return fmt.Errorf("resolution: rule %q yields unhandled intent %q", rule.Name, rule.Intent)
		}
	}
	return nil
}

// Step runs one turn. The input state is not modified.
func (m *Machine) Step(ctx context.Context, state *domain.SupportState, message string) (*Turn, error) {
	if state == nil {
		return nil, errors.New("resolution: state is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("resolution: message is required")
	}

	t := &turn{
		state:     state.Clone(),
		message:   message,
		prevStage: state.CurrentStage,
	}
	t.state.UserFeedback = append(t.state.UserFeedback, message)
	t.state.LastMessage = message
	if t.state.CurrentStage == domain.StageCollectingInfo && t.state.SystemInfo == nil {
		t.state.SystemInfo = ParseSystemInfo(message)
	}

	t.summary, t.connected = m.connectionStatus(ctx, t.state)
	t.state.JiraConnected = t.connected

	if t.state.HasPermission() && isDecline(message) {
		no := false
		t.state.SetPermission(&no)
		t.withdrawn = true
	}

	intent, rule := classify(Input{State: t.state, Message: message, Connected: t.connected, Withdrawn: t.withdrawn})
	tr := m.transitions[intent]
	t.state.CurrentStage = tr.Stage

	if err := tr.Handle(ctx, t); err != nil {
		m.logger.Warn("resolution turn failed",
			zap.String("conversation_id", state.ConversationID),
			zap.String("intent", string(intent)),
			zap.Error(err))
		fallback := state.Clone()
		fallback.CurrentStage = domain.StageCompleted
		return &Turn{
			State:    fallback,
			Response: fallbackResponse,
			Intent:   intent,
			Rule:     rule,
			Fallback: true,
		}, nil
	}

	t.state.UpdatedAt = m.now()
	return &Turn{
		State:        t.state,
		Response:     t.response,
		Intent:       intent,
		Rule:         rule,
		RequiresTool: t.toolType != "",
		ToolType:     t.toolType,
		Ticket:       t.ticket,
	}, nil
}

// connectionStatus re-reads the connection each turn; the stored snapshot is
// only used when the lookup itself fails.
func (m *Machine) connectionStatus(ctx context.Context, st *domain.SupportState) (domain.ConnectionSummary, bool) {
	if m.connections == nil {
		return domain.ConnectionSummary{Connected: st.JiraConnected}, st.JiraConnected
	}
	summary, err := m.connections.Status(ctx, st.UserID)
	if err != nil {
		m.logger.Warn("connection status lookup failed; using snapshot",
			zap.String("user_id", st.UserID), zap.Error(err))
		return domain.ConnectionSummary{Connected: st.JiraConnected}, st.JiraConnected
	}
	return summary, summary.Connected
}

func (m *Machine) complete(ctx context.Context, prompt string) (string, error) {
	text, err := m.completer.Complete(ctx, prompt, m.options)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return text, nil
}
