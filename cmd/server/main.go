package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/config"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/handlers"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/middleware"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/routes"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL (branches, admins, appointments)
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis (sessions, change notifications, ack cache)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB (message documents)
	log.Printf("Connecting to MongoDB...")
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	if err := services.EnsureMessageIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure message indexes: %v", err)
	} else {
		log.Println("✅ Message indexes ensured")
	}

	// Wire the document store and chat services
	docStore := store.NewMongoStore(database.DB, database.RedisClient)
	ackCache := services.NewRedisAckCache(database.RedisClient)
	handlers.InitChatServices(docStore, ackCache)
	log.Println("✅ Chat services initialized")

	handlers.InitCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)

	// Setup router
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Production: security headers + in-memory per-IP limiting.
	// Non-production: Redis-based rate limit only.
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, per-IP + login rate limiting)")
	} else {
		r.Use(middleware.RateLimitMiddleware)
	}

	routes.Setup(r)

	log.Printf("🚀 Jam Beauty Lounge backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
