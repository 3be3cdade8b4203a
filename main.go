package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andi/stepline/backend/api"
	"github.com/andi/stepline/backend/bridge"
	"github.com/andi/stepline/backend/config"
	"github.com/andi/stepline/backend/database"
	"github.com/andi/stepline/backend/session"
	"github.com/andi/stepline/backend/watcher"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env before reading env overrides; missing file is fine
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	if err := os.MkdirAll(cfg.Logging.Dir, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logFile, err := os.OpenFile(cfg.Logging.AppLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)

	log.Println("=== Stepline Starting ===")

	// Initialize database
	// cfg.Database.DSN supports both SQLite and MySQL:
	// - SQLite: "./data/stepline.db" or any path ending with .db
	// - MySQL: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	log.Println("Database initialized")

	// Initialize session manager
	sessions := session.New(cfg.Sessions.IdleTimeout.Std(), cfg.Sessions.SweepInterval.Std())
	sessions.Start()
	defer sessions.Stop()
	log.Println("Session manager initialized and started")

	// Initialize live-update bridge
	liveBridge := bridge.New()
	log.Println("Live-update bridge initialized")

	// Initialize API server
	server := api.New(db, sessions, liveBridge, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Initialize config watcher for hot-reloadable settings. Failure here
	// is non-fatal, the service just keeps the startup values.
	cfgWatch, err := watcher.New(cfgPath, server.ApplyConfig)
	if err != nil {
		log.Printf("Warning: config watcher unavailable: %v", err)
	} else if err := cfgWatch.Start(); err != nil {
		log.Printf("Warning: config watcher failed to start: %v", err)
	} else {
		defer cfgWatch.Stop()
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		fmt.Printf("Stepline server is running on http://%s\n", addr)
		if err := server.Start(addr); err != nil {
			serverErrors <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)
	case sig := <-quit:
		log.Printf("Received signal: %v", sig)
		log.Println("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Println("Stopping HTTP server...")
		if err := server.Shutdown(); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}

		log.Println("Stopping session manager...")
		sessions.Stop()

		log.Println("Closing database connections...")
		db.Close()

		<-ctx.Done()
		log.Println("Shutdown complete")
	}
}
