// Пакет server — HTTP-сервер SecureShare с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/secureshare/internal/api/handlers"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/domain/model"
)

// Handlers — набор обработчиков, монтируемых на роутер.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Files       *handlers.FilesHandler
	Redeem      *handlers.RedeemHandler
	Health      *handlers.HealthHandler
	Maintenance *handlers.MaintenanceHandler
}

// Server — HTTP-сервер SecureShare.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, sessionAuth *middleware.SessionAuth, h Handlers) *Server {
	router := NewRouter(logger, sessionAuth, h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами сервиса.
// Вынесено отдельно, чтобы end-to-end тесты могли поднять роутер
// через httptest без реального net.Listener.
func NewRouter(logger *slog.Logger, sessionAuth *middleware.SessionAuth, h Handlers) chi.Router {
	router := chi.NewRouter()

	// Порядок важен: метрики снаружи, чтобы учитывать и время логирования.
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints: probes, метрики, аутентификация, погашение токенов.
	router.Get("/health/live", h.Health.Live)
	router.Get("/health/ready", h.Health.Ready)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Post("/auth/login", h.Auth.Login)
	router.Post("/auth/signup", h.Auth.Signup)
	router.Get("/auth/verify-email", h.Auth.VerifyEmail)

	// Download-токен сам по себе предъявитель прав, сессия не нужна.
	router.Get("/redeem/info/{token}", h.Redeem.Info)
	router.Get("/redeem/{token}", h.Redeem.Redeem)

	// Защищённые endpoints: требуется валидная сессия.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(sessionAuth.Middleware())

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleUploader))
			r.Post("/files", h.Files.Upload)
			r.Post("/maintenance/reconcile", h.Maintenance.Reconcile)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleConsumer))
			r.Get("/files", h.Files.List)
			r.Post("/files/{fileID}/issue", h.Redeem.Issue)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// из конфигурации.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
