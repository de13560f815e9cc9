package main

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spms-dev/spms/db"
	"github.com/spms-dev/spms/internal/auth"
	"github.com/spms-dev/spms/internal/cache"
	"github.com/spms-dev/spms/internal/handlers"
	"github.com/spms-dev/spms/internal/router"
	"github.com/spms-dev/spms/internal/services"
	"go.uber.org/zap"
)

func main() {
	var err error

	err = godotenv.Load()

	if err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	if err = auth.InitJWTSecret(); err != nil {
		log.Fatalf("Failed to initialize JWT secret: %v", err)
	}

	dsn := os.Getenv("DATABASE_URL")

	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if err = db.ConnectDatabase(dsn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err = db.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	audit, err := zap.NewProduction()

	if err != nil {
		log.Fatalf("Failed to build audit logger: %v", err)
	}
	defer audit.Sync()

	kv := newCache()

	caretakers := services.NewCaretakerService(db.DB, kv, audit)
	workflow := services.NewWorkflow(db.DB, caretakers, audit)
	resolver := services.NewResolver(db.DB, caretakers)
	aggregator := services.NewAggregator(db.DB, audit)

	handlers.Configure(workflow, caretakers, resolver, aggregator)

	r := router.NewRouter()

	var port string

	if port = os.Getenv("PORT"); port == "" {
		port = "3000"
		log.Println("PORT not set, defaulting to 3000")
	}

	if err = r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newCache picks Redis when configured, otherwise the in-process store.
func newCache() cache.KV {
	addr := os.Getenv("REDIS_ADDR")

	if addr == "" {
		log.Println("REDIS_ADDR not set, using in-memory caretaker cache")
		return cache.NewMemory()
	}

	database := 0

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid REDIS_DB value %q: %v", raw, err)
		}
		database = parsed
	}

	return cache.NewRedis(addr, os.Getenv("REDIS_PASSWORD"), database)
}
