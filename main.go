package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"palaver/internal/handlers"
	"palaver/internal/models"
	"palaver/internal/notify"
	"palaver/internal/repositories"
	"palaver/internal/services"
	"palaver/pkg/eventbus"
)

// NewApp assembles the Fiber application from configuration: store, notify
// registry, optional event bus, services, and routes. The returned registry
// is shared by the websocket handler and the relation engine.
func NewApp(v *viper.Viper) (*fiber.App, *notify.Registry, func(), error) {
	userRepo, cleanupStore, err := openStore(v)
	if err != nil {
		return nil, nil, nil, err
	}

	registry := notify.NewRegistry()

	// The event bus is an optional sink: a missing broker downgrades to
	// in-process delivery only.
	var bus services.EventPublisher
	var busClient *eventbus.Client
	if url := v.GetString("RABBITMQ_URL"); url != "" {
		busClient, err = eventbus.NewClient(eventbus.Config{URL: url})
		if err != nil {
			log.Printf("Event bus unavailable, continuing without it: %v", err)
		} else {
			bus = busClient
		}
	}

	authService := services.NewAuthService(userRepo, v.GetString("JWT_SECRET"))
	userService := services.NewUserService(userRepo, registry)
	relationService := services.NewRelationService(userRepo, registry, bus)

	authHandler := handlers.NewAuthHandler(authService, userService)
	userHandler := handlers.NewUserHandler(authService, userService)
	relationHandler := handlers.NewRelationHandler(authService, relationService)
	wsHandler := handlers.NewWsHandler(authService, registry)

	app := fiber.New()
	app.Use(logger.New())

	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)
	userHandler.RegisterRoutes(apiV1)
	relationHandler.RegisterRoutes(apiV1)

	api := app.Group("/api")
	wsHandler.RegisterRoutes(api)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	cleanup := func() {
		if busClient != nil {
			if err := busClient.Close(); err != nil {
				log.Printf("Error closing event bus: %v", err)
			}
		}
		cleanupStore()
	}

	return app, registry, cleanup, nil
}

// openStore picks the user repository implementation from config:
// sqlite (default), postgres, or memory for broker-less local runs.
func openStore(v *viper.Viper) (repositories.UserRepository, func(), error) {
	driver := v.GetString("STORE_DRIVER")
	switch driver {
	case "memory":
		return repositories.NewMockUserRepository(), func() {}, nil

	case "postgres":
		db, err := gorm.Open(postgres.Open(v.GetString("DATABASE_DSN")), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return repositories.NewGORMUserRepository(db), func() {}, nil

	case "sqlite", "":
		db, err := gorm.Open(sqlite.Open(v.GetString("SQLITE_PATH")), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := db.AutoMigrate(&models.User{}); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate: %w", err)
		}
		return repositories.NewGORMUserRepository(db), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("STORE_DRIVER", "sqlite")
	viper.SetDefault("SQLITE_PATH", "palaver.db")
	viper.SetDefault("DATABASE_DSN", "host=127.0.0.1 user=postgres password=postgres dbname=palaver port=5432 sslmode=disable")
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.AutomaticEnv()

	appPort := viper.GetString("APP_PORT")

	app, _, cleanup, err := NewApp(viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to assemble app: %v", err)
	}
	defer cleanup()

	// --- Optional relation-event consumer for local debugging ---
	if url := viper.GetString("RABBITMQ_URL"); url != "" && viper.GetBool("CONSUME_RELATION_EVENTS") {
		go func() {
			client, err := eventbus.NewClient(eventbus.Config{URL: url})
			if err != nil {
				log.Printf("Failed to start relation-event consumer: %v", err)
				return
			}
			err = client.ConsumeRelationEvents(func(msg amqp.Delivery) error {
				log.Printf("Relation event (tag %d): %s", msg.DeliveryTag, string(msg.Body))
				return nil
			})
			if err != nil {
				log.Printf("Relation-event consumer error: %v", err)
			}
		}()
	}

	// --- Start HTTP server with graceful shutdown ---
	log.Printf("Starting server on port %s", appPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}
