package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"market_reader_backend/config"
	"market_reader_backend/models"
	"market_reader_backend/routes"
	"market_reader_backend/scheduler"
	"market_reader_backend/services/cache"
	"market_reader_backend/services/calendar"
	"market_reader_backend/services/gateway"

	"github.com/gin-gonic/gin"
)

// dbInitialized tracks whether database has been successfully initialized.
// Guarded by dbInitMutex so the /ready endpoint can check it from any
// goroutine.
var dbInitialized bool
var dbInitMutex sync.RWMutex

// The scheduler and cache come up in the background goroutine after the
// server is already listening. Shutdown must read whatever exists at signal
// time, so they live behind a mutex instead of being captured early.
var (
	appMu        sync.Mutex
	jobScheduler *scheduler.Scheduler
	cacheSvc     *cache.Service
)

func setAppComponents(s *scheduler.Scheduler, c *cache.Service) {
	appMu.Lock()
	defer appMu.Unlock()
	jobScheduler, cacheSvc = s, c
}

func appComponents() (*scheduler.Scheduler, *cache.Service) {
	appMu.Lock()
	defer appMu.Unlock()
	return jobScheduler, cacheSvc
}

func main() {
	log.Println("==============================================")
	log.Println("  Market Reader Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up; database is initialized in the background
	setupHealthEndpoints(router)

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

	// Initialize database, cache and scheduler in background
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Response cache is best-effort; a nil service disables it
		redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
		redisDB, _ := strconv.Atoi(cfg.RedisDB)
		cacheSvc, err := cache.NewService(redisAddr, redisDB)
		if err != nil {
			log.Printf("Cache not configured or unreachable: %v", err)
			cacheSvc = nil
		}

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// The gateway dialer is shared: the API uses it for stock
		// onboarding, the scheduler for the sync cycle
		dialer := gateway.NewWSDialer(cfg.GatewayHost, cfg.GatewayPort, calendar.NewYork)
		sessions := gateway.NewSessionManager(dialer)

		// Setup all API routes
		routes.SetupRoutes(router, db, sessions, cacheSvc)

		// Start background scheduler
		jobScheduler := scheduler.NewScheduler(db, dialer)
		go jobScheduler.Start()

		setAppComponents(jobScheduler, cacheSvc)
		log.Println("Application fully initialized with database")
	}()

	// Graceful shutdown
	gracefulShutdown(server)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateContractModels(db); err != nil {
		return err
	}
	if err := models.MigratePriceBarModels(db); err != nil {
		return err
	}

	return nil
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Reader Backend",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
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
		if path == "/health" || path == "/ready" {
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

// gracefulShutdown waits for a termination signal, then tears down whatever
// the background initialization managed to bring up by that point.
func gracefulShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	jobScheduler, cacheSvc := appComponents()
	shutdownApp(server, jobScheduler, cacheSvc)
}

// shutdownApp tears the process down in dependency order: scheduler, HTTP
// server, cache, database.
func shutdownApp(server *http.Server, jobScheduler *scheduler.Scheduler, cacheSvc *cache.Service) {
	// Stop scheduler first so no new gateway sessions open mid-shutdown
	if jobScheduler != nil {
		jobScheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close cache and database connections
	if cacheSvc != nil {
		cacheSvc.Close()
	}
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
