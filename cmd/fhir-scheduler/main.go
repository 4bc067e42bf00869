package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CodePlayData/fhir/internal/config"
	"github.com/CodePlayData/fhir/internal/domain/scheduling"
	"github.com/CodePlayData/fhir/internal/platform/auth"
	"github.com/CodePlayData/fhir/internal/platform/db"
	"github.com/CodePlayData/fhir/internal/platform/events"
	"github.com/CodePlayData/fhir/internal/platform/middleware"
	"github.com/CodePlayData/fhir/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "fhir-scheduler",
		Short:        "FHIR Schedule availability service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Schedule API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()

	// Storage
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open schedule store")
		return err
	}
	defer st.Close()

	// Events
	pub, closePub, err := openPublisher(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to message broker")
		return err
	}
	defer closePub()
	hub := websocket.NewHub(logger)

	svc := scheduling.NewService(st.repo, st.tx, events.Fanout{pub, hub}, logger,
		scheduling.WithOffsets(scheduling.Offsets{Activity: cfg.ActivityOffset, Close: cfg.CloseOffset}))

	e := newServer(cfg, logger, svc, hub, st.checks)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the echo instance: global middleware, health probes
// and the authenticated /fhir group.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *scheduling.Service, hub *websocket.Hub, checks map[string]db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderLocation, middleware.RequestIDHeader},
	}))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/ready", db.HealthHandler(checks))

	fhirGroup := e.Group("/fhir")
	switch cfg.ResolvedAuthMode() {
	case config.AuthModeDevelopment:
		logger.Warn().Msg("development auth is active: every request gets admin access")
		fhirGroup.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	default:
		var key []byte
		if cfg.AuthSigningKey != "" {
			key = []byte(cfg.AuthSigningKey)
		}
		fhirGroup.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}

	scheduling.NewHandler(svc).RegisterRoutes(fhirGroup)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(fhirGroup)
	return e
}

// openPublisher connects to the broker when AMQP_URL is set. Without it
// events are dropped.
func openPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		logger.Info().Msg("AMQP_URL not set, domain events are not published")
		return events.NopPublisher{}, func() {}, nil
	}
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := events.NewAMQPPublisher(conn, cfg.EventsExchange)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Info().Str("exchange", cfg.EventsExchange).Msg("publishing domain events")
	return pub, func() {
		_ = pub.Close()
		_ = conn.Close()
	}, nil
}
