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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/runmeter/runmeter/api"
	"github.com/runmeter/runmeter/config"
	"github.com/runmeter/runmeter/dispatch"
	"github.com/runmeter/runmeter/engine"
	"github.com/runmeter/runmeter/hitl"
	"github.com/runmeter/runmeter/ingest"
	"github.com/runmeter/runmeter/ledger"
	"github.com/runmeter/runmeter/notify"
	"github.com/runmeter/runmeter/policy"
	"github.com/runmeter/runmeter/scratchpad"
	"github.com/runmeter/runmeter/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting run ledger service...")
	log.Printf("Public HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Internal HTTP Port: %d", cfg.InternalPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Engine URL: %s", cfg.EngineURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize engine client
	engineClient := engine.NewClient(cfg.EngineURL, cfg.EngineAPIKey, cfg.PublicBaseURL, cfg.EngineTimeout)

	// Initialize notifier client
	notifier := notify.NewClient(cfg.NotifierURL, cfg.ReviewBaseURL, cfg.CallbackTimeout)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize components
	led := ledger.New(db, policyEngine)
	pad := scratchpad.NewStorage(db, cfg.DataDir)
	ingestor := ingest.NewIngestor(db, pad, led, cfg.WorkflowKey, cfg.DownloadTimeout)
	dispatcher := dispatch.NewDispatcher(db, engineClient, cfg.PublicBaseURL, cfg.WorkflowKey)
	gate := hitl.NewGate(db, engineClient, notifier)

	// Initialize handler
	h := api.NewHandler(db, led, dispatcher, ingestor, gate, pad, cfg)

	// Create public Echo server
	publicServer := echo.New()
	publicServer.HideBanner = true

	// Middleware
	publicServer.Use(middleware.Logger())
	publicServer.Use(middleware.Recover())
	publicServer.Use(middleware.CORS())

	// Register public routes
	h.RegisterRoutes(publicServer)

	// Create internal Echo server (for the workflow engine only)
	internalServer := echo.New()
	internalServer.HideBanner = true

	// Middleware
	internalServer.Use(middleware.Logger())
	internalServer.Use(middleware.Recover())

	// Register internal routes
	h.RegisterInternalRoutes(internalServer)

	// Start public server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := publicServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start public server: %v", err)
		}
	}()

	// Start internal server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start internal server: %v", err)
		}
	}()

	log.Printf("Public API started on port %d", cfg.HTTPPort)
	log.Printf("Internal API started on port %d", cfg.InternalPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down run ledger service...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown both servers
	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown public server gracefully: %v", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown internal server gracefully: %v", err)
	}

	log.Println("Run ledger service stopped")
}
