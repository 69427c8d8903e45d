package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskflow/helpdesk-assistant/internal/api/http/handlers"
	"github.com/deskflow/helpdesk-assistant/internal/auth"
)

// popupTokenParam carries the identity token for /oauth/start, which is
// opened in a popup that cannot send headers.
const popupTokenParam = "token"

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Chat           *handlers.ChatHandler
	OAuth          *handlers.OAuthHandler
	Connection     *handlers.ConnectionHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	ChatLimiter    *RateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	// The provider redirects here anonymously; the state token identifies the user.
	app.Get("/oauth/callback", cfg.OAuth.Callback)
	app.Get("/oauth/start", cfg.AuthMiddleware.WithQueryToken(popupTokenParam).Handle, cfg.OAuth.Start)

	authed := cfg.AuthMiddleware.Handle

	chat := []fiber.Handler{authed}
	if cfg.ChatLimiter != nil {
		chat = append(chat, cfg.ChatLimiter.Handle)
	}
	app.Post("/chat", append(chat, cfg.Chat.PostMessage)...)
	app.Get("/chat/:conversationId/messages", authed, cfg.Chat.ListMessages)

	app.Post("/connection/status", authed, cfg.Connection.Status)
	app.Post("/connection/default-project", authed, cfg.Connection.SetDefaultProject)
	app.Delete("/connection", authed, cfg.Connection.Disconnect)

	app.Get("/tickets", authed, cfg.Tickets.ListTickets)
	app.Get("/tickets/:id", authed, cfg.Tickets.GetTicket)
}
