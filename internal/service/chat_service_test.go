package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/llm"
	"github.com/deskflow/helpdesk-assistant/internal/observability"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
	"github.com/deskflow/helpdesk-assistant/internal/resolution"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

type scriptedCompleter struct {
	err error
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "reply to: " + prompt[:20], nil
}

type connectedStatus struct{ connected bool }

func (s connectedStatus) Status(context.Context, string) (domain.ConnectionSummary, error) {
	return domain.ConnectionSummary{Connected: s.connected}, nil
}

type chatFixture struct {
	svc        *ChatService
	convs      repository.ConversationRepository
	completer  *scriptedCompleter
	gateway    *gatewayFixture
	metrics    *observability.Metrics
	escalation []events.Event
}

func newChatFixture(t *testing.T, connected bool) *chatFixture {
	t.Helper()
	f := &chatFixture{
		convs:     repository.NewMemoryConversationRepository(),
		completer: &scriptedCompleter{},
		gateway:   newGatewayFixture(t),
		metrics:   observability.NewMetrics(),
	}
	if connected {
		f.gateway.connect(t, nil)
	}
	machine, err := resolution.NewMachine(resolution.Dependencies{
		Completer:   f.completer,
		Tickets:     f.gateway.gw,
		Connections: connectedStatus{connected: connected},
	})
	if err != nil {
		t.Fatalf("machine: %v", err)
	}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventConversationEscalated, func(_ context.Context, e events.Event) error {
		f.escalation = append(f.escalation, e)
		return nil
	})
	f.svc = NewChatService(config.ChatConfig{TimeoutSeconds: 5, MaxMessageLength: 200}, ChatDependencies{
		Conversations: f.convs,
		Machine:       machine,
		Dispatcher:    dispatcher,
		Metrics:       f.metrics,
	})
	return f
}

func (f *chatFixture) send(t *testing.T, message string) *ChatResult {
	t.Helper()
	res, err := f.svc.HandleMessage(context.Background(), ChatInput{UserID: "u1", ConversationID: "conv-1", Message: message})
	if err != nil {
		t.Fatalf("handle %q: %v", message, err)
	}
	return res
}

func TestChatStartsConversation(t *testing.T) {
	f := newChatFixture(t, false)
	res := f.send(t, "My camera doesn't work")

	if res.SupportStage != domain.StageCollectingInfo {
		t.Fatalf("expected collecting_info, got %s", res.SupportStage)
	}
	state, err := f.convs.LoadState(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("state not saved: %v", err)
	}
	if state.Issue != "My camera doesn't work" || state.Attempts != 0 || state.Version != 1 {
		t.Fatalf("unexpected stored state %+v", state)
	}
	msgs, _ := f.convs.ListMessages(context.Background(), "conv-1", 10)
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user and assistant messages, got %+v", msgs)
	}
	if f.metrics.Snapshot().Intents[string(resolution.IntentCollectInfo)] != 1 {
		t.Fatalf("expected intent counted, got %+v", f.metrics.Snapshot().Intents)
	}
}

func TestChatFallbackIsNotPersisted(t *testing.T) {
	f := newChatFixture(t, false)
	f.send(t, "My camera doesn't work")
	before, _ := f.convs.LoadState(context.Background(), "conv-1")

	f.completer.err = errors.New("model timeout")
	res := f.send(t, "Windows 11 laptop, 16GB RAM, 512GB SSD, 2 years old")
	if res.SupportStage != domain.StageCompleted || !strings.Contains(res.Response, "sorry") {
		t.Fatalf("expected fallback reply, got %+v", res)
	}

	after, _ := f.convs.LoadState(context.Background(), "conv-1")
	if after.Version != before.Version || after.CurrentStage != before.CurrentStage || len(after.UserFeedback) != len(before.UserFeedback) {
		t.Fatalf("fallback state must not be saved: before=%+v after=%+v", before, after)
	}

	f.completer.err = nil
	res = f.send(t, "Windows 11 laptop, 16GB RAM, 512GB SSD, 2 years old")
	if res.SupportStage != domain.StageAnalyzing {
		t.Fatalf("expected the retried turn to analyze, got %s", res.SupportStage)
	}
}

func TestChatCreatesTicketAfterConsent(t *testing.T) {
	f := newChatFixture(t, true)
	state := domain.NewSupportState("u1", "conv-1", "My camera doesn't work", true, time.Now())
	state.Attempts = 3
	state.SystemInfo = &domain.SystemInfo{OS: "Windows 11"}
	if err := f.convs.SaveState(context.Background(), state); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := f.send(t, "it still doesn't work at all")
	if res.SupportStage != domain.StageRequestingPermission || res.ToolType != resolution.ToolTicketConfirmation {
		t.Fatalf("expected permission request, got %+v", res)
	}
	if res.TicketDetails == nil || res.TicketDetails.Priority != domain.TicketPriorityHigh {
		t.Fatalf("expected high priority draft, got %+v", res.TicketDetails)
	}
	if len(f.escalation) != 1 {
		t.Fatalf("expected escalation event, got %d", len(f.escalation))
	}

	res = f.send(t, "yes please")
	if res.SupportStage != domain.StageCompleted {
		t.Fatalf("expected completed, got %s", res.SupportStage)
	}
	if res.TicketDetails == nil || res.TicketDetails.Key != "SUP-1" || res.TicketDetails.Project != "Acme Support" {
		t.Fatalf("expected submitted ticket details, got %+v", res.TicketDetails)
	}
	if len(f.gateway.provider.requests) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", len(f.gateway.provider.requests))
	}
}

type racingRunner struct {
	convs repository.ConversationRepository
}

// Step simulates a concurrent request saving the same conversation first.
func (r racingRunner) Step(ctx context.Context, state *domain.SupportState, message string) (*resolution.Turn, error) {
	other := state.Clone()
	other.LastMessage = "from another tab"
	if err := r.convs.SaveState(ctx, other); err != nil {
		return nil, err
	}
	next := state.Clone()
	next.LastMessage = message
	return &resolution.Turn{State: next, Response: "ok", Intent: resolution.IntentGeneralChat}, nil
}

func TestChatConflictOnConcurrentSave(t *testing.T) {
	convs := repository.NewMemoryConversationRepository()
	seed := domain.NewSupportState("u1", "conv-1", "VPN drops", false, time.Now())
	if err := convs.SaveState(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewChatService(config.ChatConfig{}, ChatDependencies{Conversations: convs, Machine: racingRunner{convs: convs}})

	_, err := svc.HandleMessage(context.Background(), ChatInput{UserID: "u1", ConversationID: "conv-1", Message: "hello again friend"})
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil || domainErr.HTTPStatus != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
	stored, _ := convs.LoadState(context.Background(), "conv-1")
	if stored.LastMessage != "from another tab" {
		t.Fatalf("expected the first writer to win, got %q", stored.LastMessage)
	}
}

func TestChatValidation(t *testing.T) {
	f := newChatFixture(t, false)
	cases := []ChatInput{
		{UserID: "u1", ConversationID: "", Message: "hello"},
		{UserID: "u1", ConversationID: "conv-1", Message: "   "},
		{UserID: "u1", ConversationID: "conv-1", Message: strings.Repeat("a", 201)},
	}
	for _, in := range cases {
		_, err := f.svc.HandleMessage(context.Background(), in)
		if de := apperrors.ToDomainError(err); de == nil || de.Code != "VALIDATION_FAILED" {
			t.Fatalf("expected validation error for %+v, got %v", in, err)
		}
	}
}

func TestChatRejectsForeignConversation(t *testing.T) {
	f := newChatFixture(t, false)
	f.send(t, "My camera doesn't work")

	_, err := f.svc.HandleMessage(context.Background(), ChatInput{UserID: "intruder", ConversationID: "conv-1", Message: "show me the ticket"})
	if de := apperrors.ToDomainError(err); de == nil || de.HTTPStatus != 403 {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.History(context.Background(), "intruder", "conv-1", 10); err == nil {
		t.Fatalf("expected history to be forbidden")
	}
	msgs, err := f.svc.History(context.Background(), "u1", "conv-1", 10)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected owner history, got %d err=%v", len(msgs), err)
	}
}
