package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"enrollpay_echo/internal/handlers"
	"enrollpay_echo/internal/middleware"
	"enrollpay_echo/internal/services"
	"enrollpay_echo/internal/timepolicy"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis (optional: the engine degrades to uncached reads and
	// no event publishing without it)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	}

	policy := timepolicy.FromEnv()

	// Engine services. Domain events are emitted by the worker's jobs; the
	// server only mutates ledger state.
	ledger := services.NewLedgerService(db, cache, policy)
	access := services.NewAccessService(db, cache, policy)
	restructure := services.NewRestructureService(db, cache)

	var chargeSvc services.ChargeService
	var midtransSvc *services.MidtransService
	if os.Getenv("MIDTRANS_SERVER_KEY") != "" {
		midtransSvc = services.NewMidtransService()
		chargeSvc = services.NewMidtransChargeService(db, midtransSvc)
	}

	// Echo setup
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	scheduleHandler := handlers.NewScheduleHandler(db, ledger)
	callbackHandler := handlers.NewCallbackHandler(db, ledger, midtransSvc)
	adminHandler := handlers.NewAdminHandler(ledger, restructure)
	accessHandler := handlers.NewAccessHandler(access)
	chargeHandler := handlers.NewChargeHandler(chargeSvc)

	api := e.Group("/api")
	api.POST("/enrollments/:id/schedule", scheduleHandler.CreateSchedule)
	api.GET("/enrollments/:id/schedule", scheduleHandler.GetSchedule)
	api.GET("/enrollments/:id/access", accessHandler.HasAccess)
	api.POST("/enrollments/:id/restructure", adminHandler.Restructure)
	api.POST("/obligations/:id/pause", adminHandler.PauseObligation)
	api.POST("/obligations/:id/resume", adminHandler.ResumeObligation)
	api.POST("/obligations/:id/charge", chargeHandler.InitiateCharge)
	api.POST("/callbacks/charge", callbackHandler.ChargeOutcome)
	api.POST("/callbacks/refund", callbackHandler.Refund)
	api.POST("/callbacks/midtrans", callbackHandler.MidtransCallback)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting server on :%s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
