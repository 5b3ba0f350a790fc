package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/api"
	"github.com/verygoodsaas/backoffice/internal/app/maintenance"
	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/database"
	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/logger"
	"github.com/verygoodsaas/backoffice/pkg/mail"
)

// Server wires the configuration, database, services and HTTP surface into
// one runnable unit.
type Server struct {
	cfg     *Config
	db      *gorm.DB
	http    *http.Server
	cleaner *maintenance.Cleaner
	log     *zap.Logger
}

// NewServer builds the full application from configuration.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.DatabaseSettings())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	sessions, err := auth.NewSessionService(cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("session service: %w", err)
	}
	cookies := auth.NewCookieWriter(cfg.Auth.Session.CookieName, strings.HasPrefix(cfg.Server.BaseURL, "https://"))

	mailer := mail.NewSMTPMailer(cfg.Email.SMTPSettings())

	activity, err := services.NewActivityService(db)
	if err != nil {
		return nil, err
	}
	authz, err := services.NewAuthzService(db)
	if err != nil {
		return nil, err
	}
	accounts, err := services.NewAccountService(db, activity, authz, mailer, cfg.Server.BaseURL)
	if err != nil {
		return nil, err
	}
	invitations, err := services.NewInvitationService(db, activity, authz, mailer, cfg.Server.BaseURL)
	if err != nil {
		return nil, err
	}
	teams, err := services.NewTeamService(db, activity, authz)
	if err != nil {
		return nil, err
	}
	leads, err := services.NewLeadService(db)
	if err != nil {
		return nil, err
	}

	cleaner, err := maintenance.NewCleaner(accounts, activity,
		cfg.Maintenance.Schedule, cfg.Maintenance.ActivityRetentionDays)
	if err != nil {
		return nil, err
	}

	router := api.NewRouter(api.Deps{
		Sessions:    sessions,
		Cookies:     cookies,
		Accounts:    accounts,
		Authz:       authz,
		Teams:       teams,
		Invitations: invitations,
		Activity:    activity,
		Leads:       leads,
	})

	return &Server{
		cfg: cfg,
		db:  db,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cleaner: cleaner,
		log:     logger.WithModule("server"),
	}, nil
}

// Run starts the maintenance schedule and serves HTTP until Shutdown.
func (s *Server) Run() error {
	if err := s.cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}

	s.log.Info("server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, the maintenance schedule and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cleaner.Stop()

	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
