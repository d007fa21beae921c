package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gsaudx/Advision-sub001/services"
)

// TradingController handles buy/sell of simple assets
type TradingController struct {
	trading *services.TradingEngine
}

// NewTradingController creates a new trading controller
func NewTradingController(trading *services.TradingEngine) *TradingController {
	return &TradingController{
		trading: trading,
	}
}

// HandleBuy executes a buy order
// POST /api/v1/wallets/:walletId/trades/buy
func (tc *TradingController) HandleBuy(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := tc.trading.Buy(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleSell executes a sell order
// POST /api/v1/wallets/:walletId/trades/sell
func (tc *TradingController) HandleSell(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := tc.trading.Sell(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
