// Lingua Lessons - conversational language tutor server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/lingua-lessons/internal/api"
	"github.com/ashureev/lingua-lessons/internal/config"
	"github.com/ashureev/lingua-lessons/internal/identity"
	"github.com/ashureev/lingua-lessons/internal/lesson"
	"github.com/ashureev/lingua-lessons/internal/llm"
	"github.com/ashureev/lingua-lessons/internal/middleware"
	"github.com/ashureev/lingua-lessons/internal/proficiency"
	"github.com/ashureev/lingua-lessons/internal/speech"
	"github.com/ashureev/lingua-lessons/internal/store"
	"github.com/ashureev/lingua-lessons/internal/telemetry"
	"github.com/ashureev/lingua-lessons/internal/voice"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const serviceName = "lingua-lessons"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"store", cfg.StoreDriver,
		"auth", cfg.AuthMode,
		"llm_mock", cfg.LLM.IsMock(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Store connected", "driver", cfg.StoreDriver)

	lock, closeLock, err := newTurnLock(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize turn lock", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	auth, err := newAuthenticator(cfg)
	if err != nil {
		slog.Error("Failed to initialize authenticator", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	client := llm.NewClient(cfg.LLM.Mode, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout)
	generator := llm.NewGenerator(client, llm.Params{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	orchestrator := lesson.NewOrchestrator(repo, proficiency.NewAggregator(repo), generator, lock, lesson.Limits{
		MaxMessageChars: cfg.Lesson.MaxMessageChars,
		MaxMessages:     cfg.Lesson.MaxMessages,
	})
	sessions := lesson.NewService(repo, cfg.Lesson.MaxMessages)
	synthesizer := speech.NewSynthesizer(client, cfg.LLM.TTSModel, cfg.LLM.TTSVoice)

	if counter, ok := repo.(store.OrphanCounter); ok && cfg.Lesson.AuditInterval > 0 {
		auditor := lesson.NewAuditor(counter, cfg.Lesson.AuditInterval)
		if err := auditor.Start(ctx); err != nil {
			slog.Error("Failed to start orphan audit", "error", err)
			os.Exit(1)
		}
		defer auditor.Stop()
	}

	turnLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer turnLimiter.Close()

	// Initialize handlers.
	lessonHandler := api.NewLessonHandler(orchestrator, sessions, cfg.MaxRequestBodySize, turnLimiter.Limit(rateLimitKey))
	speechHandler := api.NewSpeechHandler(synthesizer, cfg.MaxRequestBodySize)
	healthHandler := api.NewHealthHandler(repo)
	registry := voice.NewRegistry()
	voiceHandler := voice.NewHandler(orchestrator, lesson.NewGuard(repo), registry, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(auth))

	r.Route("/api", func(r chi.Router) {
		healthHandler.RegisterRoutes(r)
		lessonHandler.RegisterRoutes(r)
		speechHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/lesson", voiceHandler.ServeHTTP)

	// WriteTimeout stays 0: model calls and voice sockets outlive any
	// fixed deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.StoreSupabase:
		return store.NewSupabase(store.SupabaseConfig{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.Key})
	case config.StoreSQLite:
		return store.NewSQLite(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// newTurnLock shares turn locks through Redis when REDIS_URL is set so
// several replicas can serve the same session.
func newTurnLock(ctx context.Context, cfg *config.Config) (lesson.TurnLock, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("Using in-process turn lock")
		return lesson.NewMemoryLock(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("Using Redis turn lock", "addr", opts.Addr)

	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}
	return lesson.NewRedisLock(client, cfg.Lesson.TurnLockTTL), closeFn, nil
}

func newAuthenticator(cfg *config.Config) (identity.Authenticator, error) {
	if cfg.AuthMode == config.AuthSupabase {
		return identity.NewSupabaseAuthenticator(cfg.Supabase.URL, cfg.Supabase.Key)
	}
	slog.Warn("Trusting X-User-ID header; use AUTH_MODE=supabase in production")
	return identity.HeaderAuthenticator{}, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

func rateLimitKey(r *http.Request) string {
	if userID := identity.UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + identity.IPFromRequest(r)
}
