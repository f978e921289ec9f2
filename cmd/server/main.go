package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/chat-gateway/internal/config"
	"github.com/iliyamo/chat-gateway/internal/database"
	"github.com/iliyamo/chat-gateway/internal/gateway"
	"github.com/iliyamo/chat-gateway/internal/handler"
	"github.com/iliyamo/chat-gateway/internal/logging"
	"github.com/iliyamo/chat-gateway/internal/metrics"
	"github.com/iliyamo/chat-gateway/internal/middleware"
	"github.com/iliyamo/chat-gateway/internal/queue"
	"github.com/iliyamo/chat-gateway/internal/repository"
	"github.com/iliyamo/chat-gateway/internal/router"
	"github.com/iliyamo/chat-gateway/internal/service"
	"github.com/iliyamo/chat-gateway/internal/session"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	cfg := config.Load() // Load environment config

	logger := logging.NewLogger(logging.Config{ServiceName: "chat-gateway", Environment: cfg.Env, Level: cfg.LogLevel})
	slog.SetDefault(logger)

	if cfg.APIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set; chat turns will fail with reason=credential")
	}
	if cfg.PromptSource == config.PromptFromDefault {
		logger.Warn("no system prompt configured; using the generic fallback")
	}
	generated, err := cfg.FillSecrets(utils.NewGrantToken)
	if err != nil {
		logger.Error("generate signing secrets", "err", err)
		os.Exit(1)
	}
	for _, name := range generated {
		logger.Warn("signing secret generated for this process; sessions signed with it will not survive a restart", "var", name)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("database open failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Error("database migration failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := connectRedis(ctx, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	opts := session.Options{TTL: cfg.SessionTTL, Secure: cfg.SessionSecure}
	var sessions session.Store = session.NewCookieStore(cfg.SessionSecret, opts)
	switch {
	case cfg.SessionBackend == "redis" && rdb != nil:
		sessions = session.NewRedisStore(rdb, "sess", opts)
	case cfg.SessionBackend == "redis":
		logger.Warn("SESSION_BACKEND=redis but Redis is unreachable; using signed cookies")
	}

	metrics.MustRegister()

	tokens := repository.NewTokenRepo(db)
	chats := repository.NewChatRepo(db)

	var events service.EventPublisher
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, queue.DefaultPublishBuffer, logger)
		events = pub
		go func() { _ = pub.Run(ctx) }()
		consumer := queue.NewAuditConsumer(cfg.RabbitURL, "logs", logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "err", err)
			}
		}()
	}

	access := service.NewAccessService(tokens, events, cfg.TokenDefaultDays, cfg.DisplayLocation, logger)
	model := gateway.NewOpenRouter(gateway.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.GatewayTimeout,
	})
	chat := service.NewChatService(chats, model, cfg.SystemPrompt, cfg.HistoryWindow, logger)

	adminHash := ""
	if cfg.AdminPassword != "" {
		if adminHash, err = utils.HashPassword(cfg.AdminPassword, cfg.BcryptCost); err != nil {
			logger.Error("hash admin password", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("ADMIN_PASSWORD is not set; admin login is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover(), middleware.RequestLogger(logger), middleware.Metrics())

	var limit echo.MiddlewareFunc
	if rdb != nil {
		limit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	}
	router.Register(e, router.Deps{
		DB:        db,
		Access:    handler.NewAccessHandler(access, sessions, tokens, logger),
		Chat:      handler.NewChatHandler(chat, logger),
		Admin: &handler.AdminHandler{
			Tokens:       access,
			PasswordHash: adminHash,
			Secret:       cfg.AdminSecret,
			TTLMin:       cfg.AdminTTLMin,
			Secure:       cfg.SessionSecure,
			Log:          logger,
		},
		Sessions:    sessions,
		Validator:   tokens,
		RateLimit:   limit,
		AdminSecret: cfg.AdminSecret,
		Log:         logger,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "model", cfg.Model, "session_backend", cfg.SessionBackend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

// connectRedis returns nil when Redis is unreachable; sessions then fall back
// to cookies and rate limiting is off.
func connectRedis(ctx context.Context, logger *slog.Logger) *redis.Client {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rdb, err := config.NewRedisClient(pingCtx, config.LoadRedisConfig())
	if err != nil {
		logger.Warn("redis unavailable; rate limiting disabled", "err", err)
		return nil
	}
	return rdb
}
