package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"prediction-chain/internal/auth"
	"prediction-chain/internal/blockchain"
	"prediction-chain/internal/config"
	"prediction-chain/internal/database"
	"prediction-chain/internal/handlers"
	"prediction-chain/internal/jobs"
	"prediction-chain/internal/repository"
	"prediction-chain/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Token escrow: on-chain when a wallet is configured, ledger-only otherwise
	var escrow services.TokenEscrow
	if cfg.Solana.EscrowWalletPrivateKey != "" {
		escrow = blockchain.NewSolanaEscrow(
			cfg.Solana.Network,
			cfg.Solana.TokenMintAddress,
			cfg.Solana.EscrowWalletPrivateKey,
		)
	} else {
		log.Println("No escrow wallet configured, running ledger-only")
		escrow = blockchain.NewLedgerOnlyEscrow()
	}

	// Initialize repository and services
	repo := repository.NewChainRepository(database.GetDB())
	userService := services.NewUserService(database.GetDB(), repo)
	marketService := services.NewMarketService(database.GetDB(), escrow, cfg.Protocol)
	investmentService := services.NewInvestmentService(database.GetDB(), escrow)
	collateralService := services.NewCollateralService(database.GetDB(), repo, cfg.Protocol)
	settlementService := services.NewSettlementService(database.GetDB(), escrow)
	eventService := services.NewEventService(database.GetDB())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	marketHandler := handlers.NewMarketHandler(marketService, userService, eventService)
	tradingHandler := handlers.NewTradingHandler(investmentService, settlementService, userService)
	chainHandler := handlers.NewChainHandler(collateralService, userService, repo)

	// Start the liquidation monitor
	monitor := jobs.NewLiquidationMonitor(collateralService, repo, time.Minute)
	go monitor.Start()

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Authentication routes
	router.POST("/auth/wallet", authHandler.WalletLogin)

	authProtected := router.Group("/auth")
	authProtected.Use(auth.AuthMiddleware())
	{
		authProtected.GET("/me", authHandler.GetMe)
	}

	// Public read surface
	router.GET("/api/predictions", marketHandler.GetActivePredictions)
	router.GET("/api/predictions/:id", marketHandler.GetPrediction)
	router.GET("/api/predictions/:id/prices", marketHandler.GetCurrentPrices)
	router.GET("/api/predictions/:id/liquidity", marketHandler.GetTotalLiquidity)
	router.GET("/api/predictions/:id/investments", tradingHandler.GetPredictionInvestments)
	router.GET("/api/events", marketHandler.GetEvents)

	// Protected API routes
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		// Market lifecycle
		api.POST("/predictions", marketHandler.CreatePrediction)
		api.POST("/predictions/:id/resolve", marketHandler.ResolvePrediction)

		// Trading and settlement
		api.POST("/predictions/:id/invest", tradingHandler.InvestInPrediction)
		api.POST("/predictions/:id/claim", tradingHandler.Claim)
		api.POST("/investments/:investmentId/claim", tradingHandler.ClaimInvestment)
		api.GET("/predictions/:id/investments/me", tradingHandler.GetUserInvestments)
		api.GET("/predictions/:id/investments/me/total", tradingHandler.GetUserInvestmentTotals)
		api.GET("/predictions/:id/position-value", chainHandler.GetPositionValue)

		// Collateral chain
		chain := api.Group("/chain")
		{
			chain.GET("", chainHandler.GetUserChain)
			chain.GET("/parents", chainHandler.GetParentPredictions)
			chain.GET("/portfolio", chainHandler.GetPortfolio)
			chain.GET("/positions/:parentId", chainHandler.GetCollateralPosition)
			chain.GET("/positions/:parentId/liquidatable", chainHandler.IsPositionLiquidatable)
			chain.POST("/extend", chainHandler.ExtendChain)
			chain.POST("/liquidate", chainHandler.Liquidate)
		}

		// Wallet
		api.POST("/wallet/withdraw", tradingHandler.Withdraw)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	monitor.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
