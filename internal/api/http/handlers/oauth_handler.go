package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/domain"
	"github.com/deskflow/helpdesk-assistant/internal/service"
	apperrors "github.com/deskflow/helpdesk-assistant/pkg/util/errorutil"
)

// callbackPage is shown in the connect popup. It notifies the opener and
// closes itself on success. The message is only delivered to TargetOrigin.
var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 32rem; margin: 4rem auto; padding: 0 1rem; color: #1f2933; }
h1 { font-size: 1.4rem; }
.ok { color: #0b7a3e; }
.err { color: #b42318; }
</style>
</head>
<body>
<h1 class="{{if .Success}}ok{{else}}err{{end}}">{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Projects}}<p>Tickets will be created in <strong>{{.DefaultProject}}</strong>. Available: {{range $i, $p := .Projects}}{{if $i}}, {{end}}{{$p}}{{end}}.</p>{{end}}
<p>You can close this window.</p>
<script>
if (window.opener) {
  window.opener.postMessage({type: "ticketing-connection", success: {{.Success}}, conversationId: {{.ConversationID}}}, {{.TargetOrigin}});
  {{if .Success}}setTimeout(function () { window.close(); }, 1500);{{end}}
}
</script>
</body>
</html>
`))

type callbackView struct {
	Success        bool
	Title          string
	Message        string
	ConversationID string
	DefaultProject string
	Projects       []string
	TargetOrigin   string
}

// OAuthHandler drives the browser side of the connection handshake.
type OAuthHandler struct {
	connections  *service.ConnectionService
	openerOrigin string
	logger       *zap.Logger
}

// NewOAuthHandler constructs handler. The popup posts its result to the first
// concrete origin in allowedOrigins, or to this server's own origin when none
// is configured.
func NewOAuthHandler(connections *service.ConnectionService, allowedOrigins []string, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandler{
		connections:  connections,
		openerOrigin: firstConcreteOrigin(allowedOrigins),
		logger:       logger,
	}
}

func firstConcreteOrigin(origins []string) string {
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && o != "*" {
			return o
		}
	}
	return ""
}

// Start GET /oauth/start.
func (h *OAuthHandler) Start(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	authURL, err := h.connections.Start(c.UserContext(), principal.UserID, c.Query("conversationId"))
	if err != nil {
		return err
	}
	return c.Redirect(authURL, http.StatusFound)
}

// Callback GET /oauth/callback. Always answers with a page, never JSON.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	result, err := h.connections.Callback(c.UserContext(), service.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		status, view := callbackFailure(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("oauth callback failed", zap.Error(err))
		}
		return h.render(c, status, view)
	}

	view := callbackView{
		Success:        true,
		Title:          "Ticketing account connected",
		Message:        "Your account is connected. Return to the chat and ask me to create your ticket.",
		ConversationID: result.ConversationID,
	}
	for _, p := range result.Projects {
		view.Projects = append(view.Projects, p.Name)
	}
	if result.DefaultProject != nil {
		view.DefaultProject = result.DefaultProject.Name
	}
	return h.render(c, http.StatusOK, view)
}

func callbackFailure(err error) (int, callbackView) {
	view := callbackView{Title: "Connection failed"}
	switch {
	case errors.Is(err, domain.ErrInvalidHandshake):
		view.Message = "This authorization link is invalid or has expired. Start the connection again from the chat."
		return http.StatusBadRequest, view
	case errors.Is(err, domain.ErrAuthorizationDenied):
		view.Title = "Connection cancelled"
		view.Message = "Access was not granted, so your account was not connected."
		return http.StatusBadRequest, view
	case errors.Is(err, domain.ErrCodeAlreadyUsed):
		view.Message = "This authorization was already used. If your account is not connected yet, start the connection again."
		return http.StatusConflict, view
	case errors.Is(err, domain.ErrNoAccessibleResources):
		view.Message = "Your account has no projects this assistant can use. Ask your administrator for access and try again."
		return http.StatusBadRequest, view
	case errors.Is(err, domain.ErrTokenExchangeFailed):
		view.Message = "The identity provider did not accept the authorization. Please try again."
		return http.StatusBadGateway, view
	default:
		view.Message = "Something went wrong while connecting your account. Please try again."
		return http.StatusInternalServerError, view
	}
}

func (h *OAuthHandler) render(c *fiber.Ctx, status int, view callbackView) error {
	view.TargetOrigin = h.openerOrigin
	if view.TargetOrigin == "" {
		view.TargetOrigin = c.BaseURL()
	}
	var buf bytes.Buffer
	if err := callbackPage.Execute(&buf, view); err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(status).Send(buf.Bytes())
}
