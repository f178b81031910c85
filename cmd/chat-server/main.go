package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmdavis2/pit-portal/internal/config"
	"github.com/tmdavis2/pit-portal/internal/domain"
	"github.com/tmdavis2/pit-portal/internal/handler"
	"github.com/tmdavis2/pit-portal/internal/messaging"
	"github.com/tmdavis2/pit-portal/internal/middleware"
	"github.com/tmdavis2/pit-portal/internal/observability"
	"github.com/tmdavis2/pit-portal/internal/repository/postgres"
	"github.com/tmdavis2/pit-portal/internal/service"
	"github.com/tmdavis2/pit-portal/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server")

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var relay *messaging.Relay
	if cfg.RelayEnabled() {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		relay, err = messaging.NewRelayWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer relay.Close()
	}

	userRepo := postgres.NewUserRepository(db)

	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		slog.Error("failed to init session repository", slog.String("error", err.Error()))
		os.Exit(1)
	}

	messageRepo, err := postgres.NewMessageRepository(db)
	if err != nil {
		slog.Error("failed to init message repository", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authService := service.NewAuthService(userRepo, sessionRepo)
	chatService := service.NewChatService(messageRepo)

	var hubRelay websocket.Relay
	if relay != nil {
		hubRelay = relay
	}
	hub := websocket.NewHub(websocket.NewRegistry(), hubRelay)

	if relay != nil {
		if err := relay.Start(ctx, hub.DeliverLocal); err != nil {
			slog.Error("failed to start broadcast relay", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("broadcast relay started")
	}

	go config.ReportPoolStats(ctx, db)
	go startSessionCleanup(ctx, sessionRepo)

	authHandler := handler.NewAuthHandler(authService)
	socialHandler := handler.NewSocialHandler(chatService, authService)
	wsHandler := handler.NewWebSocketHandler(hub, chatService, authService, cfg.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig()))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, relay))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		authLimiter := middleware.NewRateLimiter(ctx, 5, 10)
		apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionRepo))
			r.Use(apiLimiter.Middleware())

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/social/rooms", socialHandler.Rooms)
			r.Get("/social/rooms/{room_name}/messages", socialHandler.RoomMessages)
			r.Get("/social/users/search", socialHandler.SearchUsers)
		})
	})

	// Auth handled inside the handler to support query param tokens
	r.Get("/ws/chat/{room_name}", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	hub.Shutdown()
	cancel()

	slog.Info("server stopped gracefully")
}

// startSessionCleanup runs a background task to delete expired sessions
func startSessionCleanup(ctx context.Context, repo domain.SessionRepository) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := repo.DeleteExpired(cleanupCtx)
			cancel()
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session cleanup completed",
					slog.Int64("sessions_deleted", count))
			}
		}
	}
}
