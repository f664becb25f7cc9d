package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"reev-api/config"
	"reev-api/controllers"
	"reev-api/middleware"
	"reev-api/routes"
	"reev-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logFile, _ := config.InitLogging(settings.LogDir)
	if logFile != nil {
		defer logFile.Close()
	}

	config.InitDB(settings)

	runtime, err := services.NewSubmissionRuntime(config.DB, settings)
	if err != nil {
		log.Fatalf("Failed to set up submission runtime: %v", err)
	}

	// Set Gin mode
	if settings.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = config.LogWriter

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	routes.SetupRoutes(router, routes.Controllers{
		SubmittingOrgs:       controllers.NewSubmittingOrgController(services.NewSubmittingOrgService(config.DB, runtime.Cipher)),
		SubmissionThreads:    controllers.NewSubmissionThreadController(services.NewSubmissionThreadService(config.DB)),
		SubmissionActivities: controllers.NewSubmissionActivityController(services.NewSubmissionActivityService(config.DB, runtime.Scheduler)),
	}, settings.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	if settings.EmbeddedWorker {
		go func() {
			defer close(workersDone)
			go runtime.RunSweeper(ctx)
			if err := runtime.Worker.Run(ctx); err != nil {
				log.Printf("Submission worker stopped with error: %v", err)
			}
		}()
	} else {
		close(workersDone)
		log.Printf("Embedded submission worker disabled, run cmd/submission-worker separately")
	}

	srv := &http.Server{
		Addr:    ":" + settings.ServerPort,
		Handler: router,
	}
	go func() {
		log.Printf("Server starting on port %s (%s)", settings.ServerPort, settings.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	<-workersDone
}
