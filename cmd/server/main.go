package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MaherMaker/TimelyBackend/internal/config"
	"github.com/MaherMaker/TimelyBackend/internal/handlers"
	custommw "github.com/MaherMaker/TimelyBackend/internal/middleware"
	"github.com/MaherMaker/TimelyBackend/internal/observability"
	"github.com/MaherMaker/TimelyBackend/internal/repository"
	"github.com/MaherMaker/TimelyBackend/internal/services"
)

const (
	serviceName    = "timely-server"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize telemetry
	ctx := context.Background()
	telemetry, err := observability.Initialize(ctx, observability.NewConfig(serviceName, serviceVersion))
	if err != nil {
		log.Printf("Warning: telemetry initialization failed: %v", err)
	}

	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		log.Fatalf("Failed to create HTTP metrics: %v", err)
	}
	businessMetrics, err := observability.NewBusinessMetrics()
	if err != nil {
		log.Fatalf("Failed to create business metrics: %v", err)
	}

	// Initialize database
	var db *sql.DB
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL database")
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
	} else {
		log.Println("Using SQLite database")
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	tracedDB, err := observability.NewTraceDB(db)
	if err != nil {
		log.Fatalf("Failed to create traced database wrapper: %v", err)
	}

	clock := repository.NewClock()
	alarmRepo := repository.NewAlarmRepository(tracedDB, clock)
	deviceRepo := repository.NewDeviceRepository(tracedDB, clock)

	// Initialize services
	hub := services.NewWebSocketHub()

	var pushSender services.PushSender
	if cfg.PushEnabled() {
		fcm, err := services.NewFCMService(cfg.Firebase.CredentialsPath)
		if err != nil {
			log.Printf("Warning: FCM initialization failed, push fallback disabled: %v", err)
		} else {
			pushSender = fcm
		}
	} else {
		log.Println("Push fallback disabled (no Firebase credentials configured)")
	}

	notificationService := services.NewNotificationService(deviceRepo, pushSender, businessMetrics)
	alarmService := services.NewAlarmService(alarmRepo, hub, notificationService, businessMetrics)
	syncService := services.NewSyncService(alarmRepo, deviceRepo, hub, notificationService, clock, businessMetrics)

	// Initialize handlers
	alarmHandler := handlers.NewAlarmHandler(alarmService, syncService)
	deviceHandler := handlers.NewDeviceHandler(deviceRepo)
	wsHandler := handlers.NewWebSocketHandler(hub)
	healthHandler := handlers.NewHealthHandler()

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware(serviceName))
	r.Use(observability.MetricsMiddleware(httpMetrics))
	r.Use(custommw.GatewayAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))

	// Routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/api/health", healthHandler.HealthCheck)

	r.Route("/api/alarms", func(r chi.Router) {
		r.Get("/", alarmHandler.List)
		r.Post("/", alarmHandler.Create)
		r.Post("/sync", alarmHandler.Sync)
		r.Get("/{id}", alarmHandler.Get)
		r.Put("/{id}", alarmHandler.Update)
		r.Delete("/{id}", alarmHandler.Delete)
		r.Put("/{id}/toggle", alarmHandler.Toggle)
	})

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", deviceHandler.List)
		r.Post("/register", deviceHandler.Register)
		r.Put("/fcm-token", deviceHandler.UpdateFCMToken)
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Timely Server starting on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Printf("Telemetry shutdown error: %v", err)
		}
	}

	log.Println("Server stopped")
}
