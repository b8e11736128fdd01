package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	httpapi "github.com/aussiebroadwan/passport/internal/session/http"
	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/otpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the session service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	backend *jwtx.Backend

	loginService        *service.LoginService
	tokenService        *service.TokenService
	mfaService          *service.MFAService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "session-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initBackend(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("session service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("session service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initBackend builds the shared token backend from config and key material.
func (app *Application) initBackend() error {
	signing, verifying, err := loadSigningKeys(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to load signing keys: %w", err)
	}

	app.backend = &jwtx.Backend{
		Codec:        &jwtx.Codec{Names: jwtx.DefaultClaimNames()},
		SigningKey:   signing,
		VerifyingKey: verifying,
		Algorithm:    app.cfg.Algorithm,
		Issuer:       app.cfg.Issuer,
		Audience:     httpx.ParseSpaceDelimitedFields(app.cfg.Audience),
		Leeway:       app.cfg.Leeway,
		AccessTTL:    app.cfg.AccessTTL,
		RefreshTTL:   app.cfg.RefreshTTL,
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	throttle := otpx.Throttle{Factor: app.cfg.ThrottleFactor}

	app.loginService = &service.LoginService{
		Store:         app.db,
		Backend:       app.backend,
		MFASessionTTL: app.cfg.MFASessionTTL,
	}

	app.tokenService = &service.TokenService{
		Store:   app.db,
		Backend: app.backend,
	}

	app.mfaService = &service.MFAService{
		Store:  app.db,
		Sender: logPinSender{logger: app.logger},
		TOTP: otpx.TOTPVerifier{
			Config:   otpx.TOTPConfig{Tolerance: app.cfg.TOTPTolerance},
			Throttle: throttle,
		},
		Pin: otpx.PinVerifier{
			Config: otpx.PinConfig{
				TTL:      app.cfg.PinTTL,
				Cooldown: app.cfg.PinCooldown,
			},
			Throttle: throttle,
		},
		Backup: otpx.BackupVerifier{
			Config:   otpx.BackupConfig{Cooldown: app.cfg.BackupCooldown},
			Throttle: throttle,
		},
		Security:      otpx.SecurityCodeVerifier{Throttle: throttle},
		Issuer:        app.cfg.Issuer,
		MFASessionTTL: app.cfg.MFASessionTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.backend,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.backend,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.LoginService = app.loginService
	router.TokenService = app.tokenService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// logPinSender stands in for the real mail/SMS gateway, which lives in a
// different service. It records that a pin was issued without ever logging
// the pin itself.
type logPinSender struct {
	logger *slog.Logger
}

func (s logPinSender) SendPin(ctx context.Context, channel domain.PinChannel, destination, pin string) error {
	s.logger.Info("pin challenge issued",
		"channel", string(channel),
		"destination", destination,
	)
	return nil
}
