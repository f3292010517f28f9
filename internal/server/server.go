package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hrease/apiserver/config"
	"github.com/hrease/apiserver/internal/auth"
	"github.com/hrease/apiserver/internal/db"
	"github.com/hrease/apiserver/internal/handlers"
	"github.com/hrease/apiserver/internal/metrics"
	"github.com/hrease/apiserver/internal/mq"
	"github.com/hrease/apiserver/internal/notify"
	"github.com/hrease/apiserver/internal/services"
	"github.com/hrease/apiserver/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Server wraps the HTTP server and everything it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     *mq.MQ
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// New wires storage, token handling, notifications and routes from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Server{db: dbConn, logger: logger}

	blacklist, err := s.openBlacklist(ctx, cfg)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, blacklist)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	resets := auth.NewResetTokens([]byte(cfg.Auth.ResetSecret), cfg.Auth.ResetTTL, nil)

	s.broker, err = mq.Open(ctx, cfg.Notify, logger)
	if err != nil {
		s.closeResources()
		return nil, err
	}
	s.dispatcher = notify.NewDispatcher(s.broker, notify.Config{
		Channel:   cfg.Notify.Channel,
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
	}, logger)

	userService := services.NewUserService(store.NewUserRepository(dbConn), auth.NewPasswordHasher(bcrypt.DefaultCost))
	credentials := services.NewCredentialService(userService, issuer, resets, s.dispatcher, cfg.Auth.FrontendURL, logger)
	authMiddleware := handlers.RequireAuth(credentials, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		handlers.Recoverer(logger),
		middleware.StripSlashes,
		metrics.HTTPMetricsMiddleware,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)
	router.Get("/healthz", handlers.Healthz(dbConn))
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, credentials, logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, credentials, logger, authMiddleware)
	})
	s.router = router

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      otelhttp.NewHandler(router, "hrease-apiserver"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		zap.Int("port", port),
		zap.String("blacklist_backend", cfg.Blacklist.Backend),
		zap.String("notify_backend", s.broker.Name()),
	)
	return s, nil
}

func (s *Server) openBlacklist(ctx context.Context, cfg config.Config) (auth.Blacklist, error) {
	switch cfg.Blacklist.Backend {
	case "redis":
		client, err := store.NewRedisClient(ctx, cfg.Blacklist.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = client
		return store.NewRedisTokenBlacklist(client, cfg.Blacklist.KeyPrefix), nil
	default:
		return store.NewTokenBlacklistRepository(s.db), nil
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains queued notifications and closes
// backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.closeResources())
	return errors.Join(errs...)
}

func (s *Server) closeResources() error {
	var errs []error
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
