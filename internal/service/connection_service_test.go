package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
)

type fakeIdentityProvider struct {
	srv *httptest.Server

	mu        sync.Mutex
	forms     []url.Values
	tokenCode int
	tokenBody string
	resources string
	authSeen  string
}

func newFakeIdentityProvider(t *testing.T) *fakeIdentityProvider {
	t.Helper()
	f := &fakeIdentityProvider{
		tokenCode: http.StatusOK,
		tokenBody: `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600,"scope":"read:jira-work offline_access"}`,
		resources: `[{"id":"cloud-1","name":"Acme Support","url":"https://acme.atlassian.net"},{"id":"cloud-2","name":"Acme Engineering","url":"https://acme-eng.atlassian.net"}]`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		code, body := f.tokenCode, f.tokenBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/resources", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authSeen = r.Header.Get("Authorization")
		body := f.resources
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIdentityProvider) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.forms) == 0 {
		return nil
	}
	return f.forms[len(f.forms)-1]
}

func (f *fakeIdentityProvider) resourcesAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authSeen
}

func (f *fakeIdentityProvider) tokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forms)
}

type connectionFixture struct {
	svc        *ConnectionService
	idp        *fakeIdentityProvider
	conns      repository.ConnectionRepository
	handshakes repository.OAuthStateRepository
	clock      *time.Time
	events     *[]events.EventType
}

func newConnectionFixture(t *testing.T) *connectionFixture {
	t.Helper()
	idp := newFakeIdentityProvider(t)
	now := time.Now().UTC()
	clock := &now

	dispatcher := events.NewInMemoryDispatcher()
	var seen []events.EventType
	record := func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type)
		return nil
	}
	dispatcher.Subscribe(events.EventConnectionEstablished, record)
	dispatcher.Subscribe(events.EventConnectionRefreshed, record)
	dispatcher.Subscribe(events.EventConnectionRemoved, record)

	conns := repository.NewMemoryConnectionRepository()
	handshakes := repository.NewMemoryOAuthStateRepository()
	cfg := config.OAuthConfig{
		ClientID:            "client-1",
		ClientSecret:        "secret-1",
		AuthorizeURL:        "https://auth.example.com/authorize",
		TokenURL:            idp.srv.URL + "/oauth/token",
		ResourcesURL:        idp.srv.URL + "/resources",
		Audience:            "api.example.com",
		Scopes:              []string{"read:jira-work", "offline_access"},
		RedirectURL:         "https://app.example.com/oauth/callback",
		HandshakeTTLMinutes: 15,
	}
	svc := NewConnectionService(cfg, ConnectionDependencies{
		Connections: conns,
		Handshakes:  handshakes,
		Dispatcher:  dispatcher,
		HTTPClient:  idp.srv.Client(),
		Now:         func() time.Time { return *clock },
	})
	return &connectionFixture{svc: svc, idp: idp, conns: conns, handshakes: handshakes, clock: clock, events: &seen}
}

func (f *connectionFixture) start(t *testing.T) (string, url.Values) {
	t.Helper()
	authURL, err := f.svc.Start(context.Background(), "u1", "conv-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	return authURL, parsed.Query()
}

func TestStartBuildsAuthorizeURL(t *testing.T) {
	f := newConnectionFixture(t)
	authURL, q := f.start(t)

	if !strings.HasPrefix(authURL, "https://auth.example.com/authorize?") {
		t.Fatalf("unexpected authorize url %s", authURL)
	}
	expected := map[string]string{
		"audience":              "api.example.com",
		"client_id":             "client-1",
		"scope":                 "read:jira-work offline_access",
		"redirect_uri":          "https://app.example.com/oauth/callback",
		"response_type":         "code",
		"prompt":                "consent",
		"code_challenge_method": "S256",
	}
	for key, want := range expected {
		if got := q.Get(key); got != want {
			t.Fatalf("%s: expected %q, got %q", key, want, got)
		}
	}
	state := q.Get("state")
	if len(state) != 64 {
		t.Fatalf("expected 64 hex chars of state, got %q", state)
	}

	record, err := f.handshakes.GetByState(context.Background(), state)
	if err != nil {
		t.Fatalf("handshake not stored: %v", err)
	}
	if record.UserID != "u1" || record.State.ConversationID != "conv-1" {
		t.Fatalf("unexpected handshake record %+v", record)
	}
	sum := sha256.Sum256([]byte(record.State.CodeVerifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	if q.Get("code_challenge") != challenge || record.State.CodeChallenge != challenge {
		t.Fatalf("challenge mismatch: url=%s stored=%s want=%s", q.Get("code_challenge"), record.State.CodeChallenge, challenge)
	}
	if ttl := record.State.ExpiresAt.Sub(record.State.Timestamp); ttl != domain.HandshakeTTL {
		t.Fatalf("expected 15 minute handshake, got %s", ttl)
	}
}

func TestStartReplacesPendingHandshake(t *testing.T) {
	f := newConnectionFixture(t)
	_, first := f.start(t)
	_, second := f.start(t)

	if _, err := f.handshakes.GetByState(context.Background(), first.Get("state")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected first state dropped, got %v", err)
	}
	if _, err := f.handshakes.GetByState(context.Background(), second.Get("state")); err != nil {
		t.Fatalf("expected second state kept, got %v", err)
	}
}

func TestCallbackPersistsConnection(t *testing.T) {
	f := newConnectionFixture(t)
	_, q := f.start(t)
	state := q.Get("state")
	record, _ := f.handshakes.GetByState(context.Background(), state)

	res, err := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: state})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.UserID != "u1" || res.ConversationID != "conv-1" || len(res.Projects) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	form := f.idp.lastForm()
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code-1" {
		t.Fatalf("unexpected token form %v", form)
	}
	if form.Get("code_verifier") != record.State.CodeVerifier {
		t.Fatalf("expected stored verifier to be sent")
	}
	if got := f.idp.resourcesAuth(); got != "Bearer at-1" {
		t.Fatalf("expected resources call with new token, got %q", got)
	}

	conn, err := f.conns.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("connection not stored: %v", err)
	}
	if conn.Status != domain.ConnectionStatusConnected || conn.AccessToken != "at-1" || conn.RefreshToken != "rt-1" {
		t.Fatalf("unexpected connection %+v", conn)
	}
	if conn.DefaultProject == nil || conn.DefaultProject.ID != "cloud-1" {
		t.Fatalf("expected first project as default, got %+v", conn.DefaultProject)
	}
	if conn.Scope != "read:jira-work offline_access" {
		t.Fatalf("expected scope from token response, got %q", conn.Scope)
	}
	if conn.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry from expires_in")
	}
	if _, err := f.handshakes.GetByState(context.Background(), state); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected handshake deleted, got %v", err)
	}
	if len(*f.events) != 1 || (*f.events)[0] != events.EventConnectionEstablished {
		t.Fatalf("expected connection_established event, got %v", *f.events)
	}
}

func TestCallbackReplayIsInvalid(t *testing.T) {
	f := newConnectionFixture(t)
	_, q := f.start(t)
	params := CallbackParams{Code: "code-1", State: q.Get("state")}

	if _, err := f.svc.Callback(context.Background(), params); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	_, err := f.svc.Callback(context.Background(), params)
	if !errors.Is(err, domain.ErrInvalidHandshake) {
		t.Fatalf("expected invalid handshake on replay, got %v", err)
	}
	if f.idp.tokenCalls() != 1 {
		t.Fatalf("expected a single code exchange, got %d", f.idp.tokenCalls())
	}
}

func TestCallbackRejectsExpiredAndUnknownStateAlike(t *testing.T) {
	f := newConnectionFixture(t)
	_, q := f.start(t)
	*f.clock = f.clock.Add(16 * time.Minute)

	_, expiredErr := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: q.Get("state")})
	_, unknownErr := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: "deadbeef"})

	if !errors.Is(expiredErr, domain.ErrInvalidHandshake) || !errors.Is(unknownErr, domain.ErrInvalidHandshake) {
		t.Fatalf("expected invalid handshake for both, got %v / %v", expiredErr, unknownErr)
	}
	if expiredErr.Error() != unknownErr.Error() {
		t.Fatalf("expired and unknown states must be indistinguishable: %q vs %q", expiredErr, unknownErr)
	}
	if f.idp.tokenCalls() != 0 {
		t.Fatalf("expected no token exchange")
	}
	if _, err := f.conns.Get(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no connection, got %v", err)
	}
}

func TestCallbackProviderDenied(t *testing.T) {
	f := newConnectionFixture(t)
	_, q := f.start(t)

	_, err := f.svc.Callback(context.Background(), CallbackParams{State: q.Get("state"), Error: "access_denied"})
	if !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	if _, err := f.handshakes.GetByState(context.Background(), q.Get("state")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected handshake cleaned up after denial")
	}
}

func TestCallbackCodeAlreadyUsed(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.tokenCode = http.StatusBadRequest
	f.idp.tokenBody = `{"error":"invalid_grant","error_description":"authorization code has already been used"}`
	_, q := f.start(t)

	_, err := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: q.Get("state")})
	if !errors.Is(err, domain.ErrCodeAlreadyUsed) {
		t.Fatalf("expected code already used, got %v", err)
	}
}

func TestCallbackTokenEndpointFailure(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.tokenCode = http.StatusInternalServerError
	f.idp.tokenBody = `{"error":"server_error"}`
	_, q := f.start(t)

	_, err := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: q.Get("state")})
	if !errors.Is(err, domain.ErrTokenExchangeFailed) {
		t.Fatalf("expected token exchange failure, got %v", err)
	}
}

func TestCallbackRejectsEmptyResources(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.resources = `[]`
	_, q := f.start(t)

	_, err := f.svc.Callback(context.Background(), CallbackParams{Code: "code-1", State: q.Get("state")})
	if !errors.Is(err, domain.ErrNoAccessibleResources) {
		t.Fatalf("expected no accessible resources, got %v", err)
	}
	if _, err := f.conns.Get(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no connection persisted, got %v", err)
	}
}

func seedConnection(t *testing.T, f *connectionFixture, expiresAt time.Time) {
	t.Helper()
	err := f.conns.Put(context.Background(), &domain.Connection{
		UserID:       "u1",
		Status:       domain.ConnectionStatusConnected,
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		ExpiresAt:    expiresAt,
		Scope:        "read:jira-work",
		AvailableProjects: []domain.Project{
			{ID: "cloud-1", Name: "Acme Support"},
			{ID: "cloud-2", Name: "Acme Engineering"},
		},
		DefaultProject: &domain.Project{ID: "cloud-2", Name: "Acme Engineering"},
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotReissued(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.tokenBody = `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`
	seedConnection(t, f, f.clock.Add(-time.Minute))
	conn, _ := f.conns.Get(context.Background(), "u1")

	refreshed, err := f.svc.Refresh(context.Background(), "u1", conn)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	form := f.idp.lastForm()
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "rt-old" {
		t.Fatalf("unexpected refresh form %v", form)
	}
	if refreshed.AccessToken != "at-2" || refreshed.RefreshToken != "rt-old" {
		t.Fatalf("unexpected tokens %+v", refreshed)
	}
	if refreshed.Scope != "read:jira-work" || len(refreshed.AvailableProjects) != 2 || refreshed.DefaultProject.ID != "cloud-2" {
		t.Fatalf("expected scope and projects preserved, got %+v", refreshed)
	}
	stored, _ := f.conns.Get(context.Background(), "u1")
	if stored.AccessToken != "at-2" {
		t.Fatalf("expected refreshed connection persisted")
	}
}

func TestStatusRefreshesExpiredTokenInline(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.tokenBody = `{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":3600}`
	seedConnection(t, f, f.clock.Add(-time.Minute))

	summary, err := f.svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !summary.Connected || summary.Expired {
		t.Fatalf("expected refreshed connection to be reported connected, got %+v", summary)
	}
	stored, _ := f.conns.Get(context.Background(), "u1")
	if stored.RefreshToken != "rt-2" {
		t.Fatalf("expected rotated refresh token stored, got %q", stored.RefreshToken)
	}
}

func TestStatusDegradesWhenRefreshFails(t *testing.T) {
	f := newConnectionFixture(t)
	f.idp.tokenCode = http.StatusBadRequest
	f.idp.tokenBody = `{"error":"invalid_grant"}`
	seedConnection(t, f, f.clock.Add(-time.Minute))

	summary, err := f.svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("status must not fail on refresh error: %v", err)
	}
	if summary.Connected || !summary.Expired || summary.Status != domain.ConnectionStatusConnected {
		t.Fatalf("expected expired pre-refresh view, got %+v", summary)
	}
}

func TestStatusWithoutConnection(t *testing.T) {
	f := newConnectionFixture(t)
	summary, err := f.svc.Status(context.Background(), "nobody")
	if err != nil || summary.Connected {
		t.Fatalf("expected disconnected summary, got %+v err=%v", summary, err)
	}
}

func TestUpdateDefaultProject(t *testing.T) {
	f := newConnectionFixture(t)
	seedConnection(t, f, f.clock.Add(time.Hour))

	project, err := f.svc.UpdateDefaultProject(context.Background(), "u1", "SUPPORT")
	if err != nil {
		t.Fatalf("update default: %v", err)
	}
	if !strings.Contains(strings.ToLower(project.Name), "support") {
		t.Fatalf("expected matching project, got %+v", project)
	}
	stored, _ := f.conns.Get(context.Background(), "u1")
	if stored.DefaultProject.ID != "cloud-1" {
		t.Fatalf("expected default persisted, got %+v", stored.DefaultProject)
	}

	if _, err := f.svc.UpdateDefaultProject(context.Background(), "u1", "marketing"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected project not found, got %v", err)
	}
	if _, err := f.svc.UpdateDefaultProject(context.Background(), "u2", "acme"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	f := newConnectionFixture(t)
	seedConnection(t, f, f.clock.Add(time.Hour))
	_, q := f.start(t)

	if err := f.svc.Disconnect(context.Background(), "u1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := f.conns.Get(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected connection removed")
	}
	if _, err := f.handshakes.GetByState(context.Background(), q.Get("state")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected pending handshake removed")
	}
	if err := f.svc.Disconnect(context.Background(), "u1"); err != nil {
		t.Fatalf("disconnect must be idempotent: %v", err)
	}
	last := (*f.events)[len(*f.events)-1]
	if last != events.EventConnectionRemoved {
		t.Fatalf("expected connection_removed event, got %v", *f.events)
	}
}
