package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gsaudx/Advision-sub001/services"
)

// StrategyController handles structured multi-leg operations
type StrategyController struct {
	strategies *services.StrategyEngine
}

// NewStrategyController creates a new strategy controller
func NewStrategyController(strategies *services.StrategyEngine) *StrategyController {
	return &StrategyController{
		strategies: strategies,
	}
}

// HandleExecuteStrategy executes a structured operation atomically
// POST /api/v1/wallets/:walletId/strategies
func (sc *StrategyController) HandleExecuteStrategy(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.StrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := sc.strategies.ExecuteStrategy(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandlePreviewStrategy computes cost and risk without persisting
// POST /api/v1/strategies/preview
func (sc *StrategyController) HandlePreviewStrategy(c *gin.Context) {
	var req services.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	preview, err := sc.strategies.PreviewStrategy(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}
