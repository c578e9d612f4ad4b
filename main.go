package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AnTengye/dealpipe/backend/config"
	"github.com/AnTengye/dealpipe/backend/handler"
	"github.com/AnTengye/dealpipe/backend/middleware"
	"github.com/AnTengye/dealpipe/backend/pkg/logger"
	"github.com/AnTengye/dealpipe/backend/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize MINIO service", "error", err)
		os.Exit(1)
	}

	// Ensure bucket exists
	if err := minioSvc.EnsureBucket(context.Background()); err != nil {
		slog.Error("failed to ensure MINIO bucket", "error", err)
		os.Exit(1)
	}

	extractSvc := service.NewExtractService(&cfg.Extract)

	// Initialize aggregate stores with config
	service.InitStores(&cfg.Store)

	pipeline := service.NewContractPipeline(service.GetContractStore())
	dealDesk := service.NewDealDeskEngine(service.GetDealDeskStore())

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(pipeline)
	dealDeskHandler := handler.NewDealDeskHandler(dealDesk)
	intakeHandler := handler.NewIntakeHandler(minioSvc, extractSvc)
	callbackHandler := handler.NewCallbackHandler(extractSvc)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(noCacheMiddleware())                    // Cache control
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/extract/callback", callbackHandler.HandleCallback)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		// Contract approval pipeline
		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.POST("/contracts/:id/submit-to-tech", contractHandler.SubmitToTech)
		protected.POST("/contracts/:id/tech-review", contractHandler.TechReview)
		protected.POST("/contracts/:id/submit-pricing", contractHandler.SubmitPricing)
		protected.POST("/contracts/:id/approve", contractHandler.Approve)
		protected.POST("/contracts/:id/reject", contractHandler.Reject)
		protected.POST("/contracts/:id/dispatch", contractHandler.Dispatch)
		protected.POST("/contracts/:id/calculate-commission", contractHandler.CalculateCommission)

		// Deal desk quoting
		protected.POST("/dealdesk", dealDeskHandler.Create)
		protected.GET("/dealdesk", dealDeskHandler.List)
		protected.GET("/dealdesk/:id", dealDeskHandler.Get)
		protected.PATCH("/dealdesk/:id/bom", dealDeskHandler.UpdateBOM)
		protected.POST("/dealdesk/:id/submit", dealDeskHandler.Submit)
		protected.POST("/dealdesk/:id/approve", dealDeskHandler.Approve)
		protected.POST("/dealdesk/:id/reject", dealDeskHandler.Reject)
		protected.POST("/dealdesk/:id/verify", dealDeskHandler.Verify)

		// BOM document intake
		protected.POST("/intake/upload", intakeHandler.Upload)
		protected.GET("/intake/:id", intakeHandler.GetStatus)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// noCacheMiddleware keeps API responses out of intermediary caches
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
