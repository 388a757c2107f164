package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lessonsync_go/config"
	"lessonsync_go/controllers"
	"lessonsync_go/database"
	"lessonsync_go/database/seeders"
	"lessonsync_go/middleware"
	"lessonsync_go/routes"
	"lessonsync_go/services"
	"lessonsync_go/services/backend"
	"lessonsync_go/services/backend/inmem"
	"lessonsync_go/services/rulestore"
	"lessonsync_go/services/scheduling"
	"lessonsync_go/services/websocket"
	"lessonsync_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// schoolBackend is everything the service needs from the school REST API
type schoolBackend interface {
	controllers.LessonService
	scheduling.BindingStore
	scheduling.BindingDeleter
	scheduling.EnrollmentStore
	services.BackendPinger
}

func init() {
	config.LoadConfig()
	setupLogging()
	database.Connect()
}

func main() {
	cfg := config.AppConfig

	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	var api schoolBackend
	var memBackend *inmem.Backend
	backendName := cfg.BackendBaseURL
	if cfg.InMemoryBackend() {
		logrus.Warn("BACKEND_BASE_URL=memory - using the in-process school backend")
		memBackend = inmem.New()
		api = memBackend
	} else {
		api = backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)
	}

	rules := rulestore.NewFromConnections(cfg.RuleStore, database.GetDB(), database.GetRedisClient())
	if cfg.AppEnv == "development" {
		seeders.SeedAll(context.Background(), rules, memBackend)
	}

	engine := scheduling.NewEngine(scheduling.Deps{
		Lessons:       api,
		Bindings:      api,
		Deleter:       api,
		Enrollments:   api,
		Rules:         rules,
		Publisher:     wsHub,
		Location:      cfg.Location(),
		OrphanGroupID: cfg.OrphanGroupID,
	})

	// S3 is optional; exports are streamed and audit archives skipped without it
	var exportStorage services.ExportStorage
	var archiveUploader services.ArchiveUploader
	if cfg.S3BucketName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := storage.NewStorageService(ctx, cfg.AWSRegion, cfg.S3BucketName)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("S3 storage unavailable")
		} else {
			exportStorage = store
			archiveUploader = store
		}
	}

	auditService := services.NewAuditService(database.GetRedisClient(), database.GetDB(), archiveUploader)
	if err := auditService.Start(cfg.AuditFlushSpec); err != nil {
		logrus.WithError(err).Fatal("Failed to schedule audit log maintenance")
	}

	healthService := services.NewHealthService(services.HealthOptions{
		Environment: cfg.AppEnv,
		DB:          database.GetDB(),
		Redis:       database.GetRedisClient(),
		Backend:     api,
		BackendName: backendName,
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, routes.Controllers{
		Scheduling:     controllers.NewSchedulingController(engine, api, rules),
		ScheduleConfig: controllers.NewScheduleConfigController(rules),
		Export:         controllers.NewExportController(services.NewExportService(api, api, exportStorage, cfg.Location())),
		Health:         controllers.NewHealthController(healthService),
		WebSocket:      controllers.NewWebSocketController(wsHub, cfg.JWTSecret),
	}, cfg.JWTSecret)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logrus.Info("Shutting down")
		auditService.Stop()
		wsHub.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.AppEnv,
		"backend":     backendName,
		"timezone":    cfg.Timezone,
	}).Info("Lesson sync API starting")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
	database.Close()
}

// setupLogging configures the logging system
func setupLogging() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Log to stdout in development, to the log file otherwise
	if config.AppConfig.AppEnv == "development" || config.AppConfig.LogFile == "" {
		logrus.SetOutput(os.Stdout)
		return
	}
	if err := os.MkdirAll(filepath.Dir(config.AppConfig.LogFile), 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}
	file, err := os.OpenFile(config.AppConfig.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		logrus.SetOutput(file)
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":      err.Error(),
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"status":     code,
		"request_id": middleware.RequestID(c),
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
