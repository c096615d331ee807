package app

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

	"github.com/redis/go-redis/v9"

	"go-request-shield/internal/config"
	"go-request-shield/internal/database"
	"go-request-shield/internal/handler"
	"go-request-shield/internal/logger"
	"go-request-shield/internal/metrics"
	"go-request-shield/internal/middleware"
	"go-request-shield/internal/model"
	"go-request-shield/internal/password"
	"go-request-shield/internal/ratelimit"
	"go-request-shield/internal/repository"
	"go-request-shield/internal/router"
	"go-request-shield/internal/sanitize"
	"go-request-shield/internal/service"
	"go-request-shield/internal/session"
	"go-request-shield/internal/threat"
	"go-request-shield/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.IsProduction(), slog.LevelInfo)))
	metrics.Init()

	slog.Info("connecting to PostgreSQL")
	db, err := database.Connect(context.Background(), database.PoolConfig{
		URL:          cfg.DatabaseURL,
		MaxConns:     cfg.DBMaxConns,
		MinConns:     cfg.DBMinConns,
		ConnLifetime: cfg.DBConnLifetime,
		ConnIdleTime: cfg.DBConnIdleTime,
		HealthPeriod: cfg.DBHealthPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	slog.Info("database ready")

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	var sessions session.Store
	switch cfg.SessionBackend {
	case "memory":
		memSessions := session.NewMemoryStore(cfg.SessionTTL)
		go memSessions.StartCleanupTicker(cleanupCtx, cfg.CleanupInterval)
		sessions = memSessions
	default:
		sessions = repository.NewSessionRepository(pool, cfg.SessionTTL)
	}

	var limitStore ratelimit.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			cleanupCancel()
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr)
		limitStore = ratelimit.NewRedisStore(client)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}

	var sink *threat.WebhookSink
	if cfg.AlertWebhookURL != "" {
		sink = threat.NewWebhookSink(cfg.AlertWebhookURL, cfg.AlertTimeout)
	}
	recorder := threat.NewRecorder(sink, eventRepo, model.Severity(cfg.AlertMinSeverity))

	limiter := ratelimit.New(limitStore, ratelimit.Options{
		Rules:          ratelimit.DefaultRules(cfg.RateLimitWindow, cfg.RateLimitMax),
		BurstWindow:    cfg.BurstWindow,
		BurstThreshold: cfg.BurstThreshold,
		BypassPrivate:  !cfg.IsProduction(),
	})
	go limiter.StartCleanupTicker(cleanupCtx, cfg.CleanupInterval, cfg.BucketMaxIdle)

	tokens := token.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL, cfg.RefreshTTL, cfg.ResetTTL, cfg.VerifyTTL)
	hasher := password.NewHasher(cfg.BcryptCost)
	authService := service.NewAuthService(userRepo, sessions, tokens, hasher, cfg.SessionTTL)

	detector := threat.NewDetector(cfg.ServingHost)
	csrfGuard := middleware.NewCSRFGuard(cfg.CSRFTokenTTL, cfg.IsProduction(), recorder)
	authMiddleware := middleware.NewAuthMiddleware(tokens, sessions, recorder)

	appRouter := router.New(router.Deps{
		Config:         cfg,
		SecurityHeader: middleware.NewSecurityHeaders(cfg.IsProduction()),
		RateLimit:      middleware.NewRateLimitMiddleware(limiter, recorder),
		RequestLogger:  middleware.NewRequestLogger(detector, recorder),
		BodyValidator:  middleware.NewBodyValidator(routeSchemas(), cfg.MaxBodyBytes, cfg.MaxUploadBytes, cfg.UploadMIMETypes, recorder),
		CSRFGuard:      csrfGuard,
		Auth:           authMiddleware,
		AuthHandler:    handler.NewAuthHandler(authService, tokens, csrfGuard, cfg.IsProduction()),
		AdminHandler:   handler.NewAdminHandler(limiter, eventRepo, recorder),
		Health: func(w http.ResponseWriter, r *http.Request) {
			if err := db.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("degraded"))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			cleanupCancel,
			db.Close,
		},
	}, nil
}

// routeSchemas declares per-route body validation. Unlisted mutation routes
// still pass through signature screening and the complexity guard.
func routeSchemas() *sanitize.Table {
	table := sanitize.NewTable()

	table.Register("/api/auth/login", sanitize.Schema{
		Fields: []sanitize.Field{
			{Name: "email", Kind: "email", Required: true, MaxLen: 254},
			{Name: "password", Kind: "string", Required: true, MinLen: 1, MaxLen: 128},
		},
	})
	table.Register("/api/auth/register", sanitize.Schema{
		Fields: []sanitize.Field{
			{Name: "email", Kind: "email", Required: true, MaxLen: 254},
			{Name: "username", Kind: "string", Required: true, MinLen: 2, MaxLen: 64},
			{Name: "password", Kind: "string", Required: true, MinLen: 8, MaxLen: 128},
			{Name: "role", Kind: "string", MaxLen: 16},
		},
	})
	table.Register("/api/auth/refresh", sanitize.Schema{
		Fields: []sanitize.Field{
			{Name: "refresh_token", Kind: "string", MaxLen: 4096},
		},
	})
	table.Register("/admin/ratelimit/block", sanitize.Schema{
		Fields: []sanitize.Field{
			{Name: "ip", Kind: "string", Required: true, MaxLen: 45},
			{Name: "reason", Kind: "string", MaxLen: 256},
			{Name: "duration", Kind: "string", MaxLen: 32},
		},
	})
	table.Register("/admin/ratelimit/unblock", sanitize.Schema{
		Fields: []sanitize.Field{
			{Name: "ip", Kind: "string", Required: true, MaxLen: 45},
		},
	})

	return table
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
