package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magicdeeds/magic-studio/internal/auth"
	"github.com/magicdeeds/magic-studio/internal/service"
)

type Server struct {
	addr          string
	log           *slog.Logger
	jwt           *auth.JWTService
	adminUser     string
	adminPass     string
	users         *service.UserService
	generations   *service.GenerationService
	archive       *service.ArchiveService
	notifications *service.NotificationService
	promos        *service.PromoService
	router        *chi.Mux
}

func NewServer(addr string, log *slog.Logger, jwt *auth.JWTService, adminUser, adminPass string, users *service.UserService, generations *service.GenerationService, archive *service.ArchiveService, notifications *service.NotificationService, promos *service.PromoService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:          addr,
		log:           log,
		jwt:           jwt,
		adminUser:     adminUser,
		adminPass:     adminPass,
		users:         users,
		generations:   generations,
		archive:       archive,
		notifications: notifications,
		promos:        promos,
		router:        r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(protected chi.Router) {
		protected.Use(s.authMiddleware)
		protected.Get("/me", s.handleMe)
		protected.Put("/me", s.handleUpdateProfile)
		protected.Post("/recharge", s.handleRecharge)
		protected.Post("/promo/redeem", s.handleRedeemPromo)
		protected.Get("/transactions", s.handleTransactions)
		protected.Post("/generate/text", s.handleGenerateText)
		protected.Post("/generate/image", s.handleGenerateImage)
		protected.Post("/generate/video", s.handleGenerateVideo)
		protected.Get("/archive", s.handleListArchive)
		protected.Get("/archive/{id}", s.handleGetArchive)
		protected.Delete("/archive/{id}", s.handleDeleteArchive)
		protected.Get("/notifications", s.handleListNotifications)
		protected.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware)
		admin.Post("/admin/promo", s.handleCreatePromo)
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
		// Video generation holds the request open through polling, so the
		// write timeout has to cover the full poll budget.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
