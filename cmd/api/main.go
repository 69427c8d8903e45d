package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/deskflow/helpdesk-assistant/internal/api/http"
	"github.com/deskflow/helpdesk-assistant/internal/api/http/handlers"
	"github.com/deskflow/helpdesk-assistant/internal/auth"
	"github.com/deskflow/helpdesk-assistant/internal/config"
	"github.com/deskflow/helpdesk-assistant/internal/events"
	"github.com/deskflow/helpdesk-assistant/internal/llm"
	"github.com/deskflow/helpdesk-assistant/internal/observability"
	"github.com/deskflow/helpdesk-assistant/internal/persistence"
	"github.com/deskflow/helpdesk-assistant/internal/repository"
	"github.com/deskflow/helpdesk-assistant/internal/resolution"
	"github.com/deskflow/helpdesk-assistant/internal/service"
	"github.com/deskflow/helpdesk-assistant/internal/ticketing"
	"github.com/deskflow/helpdesk-assistant/internal/worker"
)

type stores struct {
	connections   repository.ConnectionRepository
	conversations repository.ConversationRepository
	tickets       repository.TicketRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handlers.Pinger{}
	var repos stores

	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}

		sealer, err := auth.NewSealer(cfg.Auth.TokenEncryptionKey)
		if err != nil {
			logger.Fatal("failed to init token sealer", zap.Error(err))
		}
		pool := pg.PoolHandle()
		repos = stores{
			connections:   repository.NewConnectionRepository(pool, sealer),
			conversations: repository.NewConversationRepository(pool),
			tickets:       repository.NewTicketRepository(pool),
		}
		checks["postgres"] = pg
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
		repos = stores{
			connections:   repository.NewMemoryConnectionRepository(),
			conversations: repository.NewMemoryConversationRepository(),
			tickets:       repository.NewMemoryTicketRepository(),
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()
	checks["redis"] = redis

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService, logger)

	completer, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to init llm client", zap.Error(err))
	}
	provider, err := ticketing.NewProvider(cfg.Ticketing)
	if err != nil {
		logger.Fatal("failed to init ticket provider", zap.Error(err))
	}

	connectionService := service.NewConnectionService(cfg.OAuth, service.ConnectionDependencies{
		Connections: repos.connections,
		Handshakes:  repository.NewOAuthStateRepository(redis.Client),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	ticketGateway := service.NewTicketGateway(service.TicketGatewayDependencies{
		Connections: repos.connections,
		Refresher:   connectionService,
		Provider:    provider,
		Tickets:     repos.tickets,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	machine, err := resolution.NewMachine(resolution.Dependencies{
		Completer:   completer,
		Tickets:     ticketGateway,
		Connections: connectionService,
		Options: llm.Options{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("invalid resolution machine", zap.Error(err))
	}
	chatService := service.NewChatService(cfg.Chat, service.ChatDependencies{
		Conversations: repos.conversations,
		Machine:       machine,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
		// ChatService enforces CHAT_TIMEOUT_SECONDS on this route.
		OwnDeadlinePaths: []string{"/chat"},
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks),
		Chat:           handlers.NewChatHandler(chatService),
		OAuth:          handlers.NewOAuthHandler(connectionService, cfg.App.CORSAllowedOrigins, logger),
		Connection:     handlers.NewConnectionHandler(connectionService),
		Tickets:        handlers.NewTicketsHandler(ticketGateway),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		ChatLimiter:    httptransport.NewRateLimiter(cfg.Chat.RateLimitPerSec, cfg.Chat.RateLimitBurst),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
