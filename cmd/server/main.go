package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"api-studio/internal/api"
	"api-studio/internal/config"
	"api-studio/internal/db"
	"api-studio/internal/repository"
	"api-studio/internal/services"
	"api-studio/internal/services/collaboration"
	"api-studio/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting API Studio collaboration hub...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("api-studio", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	designRepo := repository.NewDesignRepository(database.DB)
	logRepo := repository.NewCommandLogRepository(database.DB)

	// Command log writer pool: persists sequenced commands off the
	// sequencing path
	logWriter := services.NewCommandLogWriter(logRepo, cfg.LogWriters, cfg.LogWriterQueue)
	logWriter.Start()

	// Editing session manager: sequences commands and fans them out
	sessionManager := collaboration.NewSessionManager()
	sessionManager.SetCommandLogWriter(logWriter)
	sessionManager.SetVersionStore(logRepo)
	sessionManager.Start()

	// WebSocket handler for editing connections
	wsHandler := collaboration.NewWebSocketHandler(sessionManager, designRepo)

	// Handlers with dependency injection
	handler := api.NewHandler(designRepo, logRepo, wsHandler)

	// Setup routes
	router := api.SetupRoutes(handler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/designs                - Create design")
		log.Printf("   GET    /api/designs                - List designs")
		log.Printf("   GET    /api/designs/:id            - Get design")
		log.Printf("   PUT    /api/designs/:id            - Update design")
		log.Printf("   DELETE /api/designs/:id            - Delete design (soft)")
		log.Printf("   GET    /api/designs/:id/editable   - Editable snapshot")
		log.Printf("   GET    /api/designs/:id/activity   - Activity feed")
		log.Printf("   GET    /api/designs/:id/commands   - Catch-up sync")
		log.Printf("   WS     /ws/designs/:id             - Editing session")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close live editing connections before draining pending writes
	sessionManager.Shutdown()
	logWriter.Shutdown()

	log.Println("✓ Server shutdown complete")
}
