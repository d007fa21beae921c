package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Gsaudx/Advision-sub001/controllers"
	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/services"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/advision.db"
	}

	storage, err := database.NewStorage(dbPath)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer storage.Close()

	audit := services.NewGormAuditRecorder()
	events := services.NewGormEventRecorder()
	ledger := services.NewLedger(storage, audit, events)
	assets := services.NewDatabaseAssetResolver(storage)
	market := services.NewStaticMarketData()

	wallets := services.NewWalletService(storage, ledger, events)
	trading := services.NewTradingEngine(storage, ledger, assets)
	derivatives := services.NewDerivativesEngine(storage, ledger, assets)
	lifecycle := services.NewOptionLifecycleEngine(storage, ledger, market)
	strategies := services.NewStrategyEngine(storage, ledger, assets, market)

	walletController := controllers.NewWalletController(wallets)
	tradingController := controllers.NewTradingController(trading)
	optionsController := controllers.NewOptionsController(derivatives, lifecycle)
	strategyController := controllers.NewStrategyController(strategies)

	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		v1.GET("/wallets/:walletId", walletController.HandleGetWallet)
		v1.POST("/wallets/:walletId/deposits", walletController.HandleDeposit)
		v1.POST("/wallets/:walletId/withdrawals", walletController.HandleWithdraw)

		v1.POST("/wallets/:walletId/trades/buy", tradingController.HandleBuy)
		v1.POST("/wallets/:walletId/trades/sell", tradingController.HandleSell)

		v1.POST("/wallets/:walletId/options/buy", optionsController.HandleBuyOption)
		v1.POST("/wallets/:walletId/options/sell", optionsController.HandleSellOption)
		v1.POST("/wallets/:walletId/options/close", optionsController.HandleCloseOption)

		v1.POST("/wallets/:walletId/positions/:positionId/exercise", optionsController.HandleExercise)
		v1.POST("/wallets/:walletId/positions/:positionId/assign", optionsController.HandleAssign)
		v1.POST("/wallets/:walletId/positions/:positionId/expire", optionsController.HandleExpire)

		v1.POST("/wallets/:walletId/strategies", strategyController.HandleExecuteStrategy)
		v1.POST("/strategies/preview", strategyController.HandlePreviewStrategy)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Infof("Starting server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}
