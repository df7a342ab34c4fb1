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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/connectcare/connectcare/internal/config"
	"github.com/connectcare/connectcare/internal/domain/audit"
	"github.com/connectcare/connectcare/internal/domain/device"
	"github.com/connectcare/connectcare/internal/domain/emergency"
	"github.com/connectcare/connectcare/internal/domain/vitals"
	"github.com/connectcare/connectcare/internal/platform/auth"
	"github.com/connectcare/connectcare/internal/platform/db"
	"github.com/connectcare/connectcare/internal/platform/middleware"
	"github.com/connectcare/connectcare/internal/platform/notification"
	"github.com/connectcare/connectcare/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "connectcare-server",
		Short: "Connect Care vitals and emergency API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			secret := cfg.JWTSecret
			if secret == "" {
				secret = "connectcare-dev-secret"
			}

			token, err := auth.GenerateToken([]byte(secret), userID, name, []string{role}, auth.DefaultTokenTTL)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User identifier")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("role", auth.RolePatient, "Role: PATIENT, CARETAKER, or ADMIN")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Storage: PostgreSQL when configured, in-memory otherwise.
	ctx := context.Background()
	var (
		historyRepo vitals.HistoryRepository
		activeRepo  emergency.ActiveRepository
		ledger      audit.Ledger
		deviceRepo  device.Repository
		healthDB    echo.HandlerFunc
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		historyRepo = vitals.NewHistoryRepoPG(pool)
		activeRepo = emergency.NewActiveRepoPG(pool)
		ledger = audit.NewLedgerPG(pool)
		deviceRepo = device.NewRepoPG(pool)
		healthDB = db.HealthHandler(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		historyRepo = vitals.NewMemoryHistoryRepo()
		activeRepo = emergency.NewMemoryActiveRepo()
		ledger = audit.NewMemoryLedger()
		deviceRepo = device.NewMemoryRepo()
	}

	// Services
	notifier := notification.NewSimulatedNotifier(logger)
	emergSvc := emergency.NewService(activeRepo, ledger, notifier, emergency.Options{
		AmbulanceNumber:  cfg.AmbulanceNumber,
		CaretakerContact: cfg.CaretakerContact,
	}, logger)
	vitalsSvc := vitals.NewService(historyRepo, emergSvc, logger)
	deviceSvc := device.NewService(deviceRepo, vitalsSvc, cfg.JWTSecret, logger)

	// Real-time hub
	hub := websocket.NewHub(logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-Key", "Idempotency-Key"},
	}))
	e.Use(middleware.AccessLog(logger))

	// API groups. Device data routes authenticate by device key, so
	// they bypass the user auth middleware.
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware([]byte(cfg.JWTSecret))
	}
	apiV1 := e.Group("/api/v1", authMW)
	openV1 := e.Group("/api/v1")

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if healthDB != nil {
		e.GET("/health/db", healthDB)
	}

	// Domain routes
	vitals.NewHandler(vitalsSvc, hub).RegisterRoutes(apiV1)
	emergency.NewHandler(emergSvc, hub).RegisterRoutes(apiV1)
	device.NewHandler(deviceSvc).RegisterRoutes(apiV1, openV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
