package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vantora/brokerage-api/internal/auth"
	"github.com/vantora/brokerage-api/internal/config"
	"github.com/vantora/brokerage-api/internal/database"
	"github.com/vantora/brokerage-api/internal/events"
	"github.com/vantora/brokerage-api/internal/investment"
	"github.com/vantora/brokerage-api/internal/ledger"
	"github.com/vantora/brokerage-api/internal/market"
	"github.com/vantora/brokerage-api/internal/trading"
	"github.com/vantora/brokerage-api/internal/transactions"
	"github.com/vantora/brokerage-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the brokerage API server with graceful shutdown
// support. It sets up the database, services, background processors, and routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	if err := database.Seed(db); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed database")
	}

	// Initialize router
	router := gin.Default()

	// Domain event bus; the notification layer subscribes here
	bus := events.NewBus()
	bus.Subscribe(events.TradeExecuted, logNotifier("trade executed"))
	bus.Subscribe(events.InvestmentMatured, logNotifier("investment matured"))
	bus.Subscribe(events.TransactionReviewed, logNotifier("transaction reviewed"))

	// Initialize services and handlers
	authService := auth.NewService(db, cfg.JWT.Secret)
	authHandlers := auth.NewGinHandlers(authService)

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	transactionService := transactions.NewService(db, ledgerService, bus)
	transactionHandlers := transactions.NewGinHandlers(transactionService)

	tradingService := trading.NewService(db, ledgerService, bus)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	investmentService := investment.NewService(db, ledgerService, bus)
	investmentHandlers := investment.NewGinHandlers(investmentService)

	marketService := market.NewService(db, cfg.Market.TickInterval)
	marketHandlers := market.NewGinHandlers(marketService)

	// Background processors
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	settlementProcessor := investment.NewProcessor(
		investmentService,
		tradingService,
		cfg.Settlement.Interval,
		cfg.Settlement.InitialDelay,
	)
	go settlementProcessor.Start(processorCtx)
	go marketService.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWT.Secret,
		authHandlers, ledgerHandlers, transactionHandlers,
		tradingHandlers, investmentHandlers, marketHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop background processors before draining requests
	processorCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// logNotifier is the stand-in for the out-of-scope email/notification layer.
func logNotifier(message string) events.Handler {
	return func(evt events.Event) {
		zlog.Info().
			Str("component", "notifier").
			Str("user_id", evt.UserID).
			Str("resource_id", evt.ResourceID).
			Msg(message)
	}
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for registration and login
// - User routes: Protected by JWT authentication
// - Admin routes: Protected by the admin claim
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	transactionHandlers *transactions.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	investmentHandlers *investment.GinHandlers,
	marketHandlers *market.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Market data routes
		assets := v1.Group("/assets")
		{
			assets.GET("", marketHandlers.ListAssetsHandler())
			assets.GET("/:asset_id", marketHandlers.GetAssetHandler())
		}

		// User routes
		user := v1.Group("")
		user.Use(middleware.JWTAuth(jwtSecret))
		{
			user.GET("/balance", ledgerHandlers.GetBalanceHandler())

			user.POST("/transactions/deposit", transactionHandlers.RequestDepositHandler())
			user.POST("/transactions/withdrawal", transactionHandlers.RequestWithdrawalHandler())
			user.GET("/transactions", transactionHandlers.ListTransactionsHandler())

			user.POST("/trades", tradingHandlers.PlaceTradeHandler())
			user.GET("/trades", tradingHandlers.ListTradesHandler())
			user.GET("/trades/:trade_id", tradingHandlers.GetTradeHandler())

			user.POST("/traders", tradingHandlers.RegisterTraderHandler())
			user.POST("/copy", tradingHandlers.FollowHandler())
			user.POST("/copy/:relationship_id/status", tradingHandlers.SetCopyStatusHandler())

			user.GET("/plans", investmentHandlers.ListPlansHandler())
			user.POST("/investments", investmentHandlers.OpenInvestmentHandler())
			user.GET("/investments", investmentHandlers.ListInvestmentsHandler())
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(jwtSecret))
		{
			admin.GET("/transactions/pending", transactionHandlers.PendingReviewsHandler())
			admin.POST("/transactions/:transaction_id/review", transactionHandlers.ReviewHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.AdminAuth(jwtSecret))
		{
			internal.POST("/execution/:trade_id", tradingHandlers.ExecuteTradeHandler())
			internal.POST("/settlement/sweep", investmentHandlers.RunSweepHandler())
		}
	}
}
