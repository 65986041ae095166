package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"options_watchlist_backend/config"
	"options_watchlist_backend/controllers"
	"options_watchlist_backend/market"
	"options_watchlist_backend/models"
	"options_watchlist_backend/routes"
	"options_watchlist_backend/scheduler"
	"options_watchlist_backend/scoring"
	"options_watchlist_backend/services"
	"options_watchlist_backend/services/marketdata"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	log.Println("==============================================")
	log.Println("  Options Watchlist API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Run database migrations
	log.Println("Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database migrations completed successfully")

	// Wire services
	registry := services.NewSymbolRegistry(db)
	store := services.NewSnapshotStore(db)
	cache := services.NewResponseCache()
	scorer := scoring.NewEngine()
	calendar := market.NewCalendar()
	client := marketdata.NewFinnhubClient(cfg.FinnhubBaseURL, cfg.FinnhubAPIKey, cfg.FetchTimeout)

	refresh := services.NewRefreshScheduler(db, registry, store, cache, scorer, calendar, client)
	refresh.FetchTimeout = cfg.FetchTimeout
	refresh.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures

	// Seed default watchlist symbols as preferred
	seedDefaultSymbols(registry, cfg.DefaultSymbols)

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	setupHealthEndpoints(router, db)

	optionsController := controllers.NewOptionsController(registry, store, cache, refresh, cfg.CacheTTL)
	routes.SetupRoutes(router, optionsController)

	// Start background scheduler
	jobScheduler := scheduler.NewScheduler(refresh, cfg.RefreshInterval)
	jobScheduler.Start()

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(server, jobScheduler, db)
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := models.MigrateTrackingModels(db); err != nil {
		return err
	}
	if err := models.MigrateSnapshotModels(db); err != nil {
		return err
	}
	return nil
}

// seedDefaultSymbols registers the configured startup symbols as
// preferred. Re-running is harmless; registration is idempotent.
func seedDefaultSymbols(registry *services.SymbolRegistry, symbols []string) {
	for _, sym := range symbols {
		if _, err := registry.AddOrUpdate(sym, true); err != nil {
			log.Printf("Warning: could not seed symbol %s: %v", sym, err)
		}
	}
	if len(symbols) > 0 {
		log.Printf("Seeded %d default symbols", len(symbols))
	}
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Options Watchlist API",
			"version": "1.0.0",
		})
	})

	// Readiness probe - checks the database connection
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, db *gorm.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop scheduler first
	if jobScheduler != nil {
		jobScheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
		log.Println("Database connection closed")
	}

	log.Println("Server shutdown completed")
}
