package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gsaudx/Advision-sub001/services"
)

// OptionsController handles option trades and lifecycle transitions
type OptionsController struct {
	derivatives *services.DerivativesEngine
	lifecycle   *services.OptionLifecycleEngine
}

// NewOptionsController creates a new options controller
func NewOptionsController(derivatives *services.DerivativesEngine, lifecycle *services.OptionLifecycleEngine) *OptionsController {
	return &OptionsController{
		derivatives: derivatives,
		lifecycle:   lifecycle,
	}
}

func positionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("positionId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid position id",
		})
		return 0, false
	}
	return uint(id), true
}

// HandleBuyOption opens or increases a long option position
// POST /api/v1/wallets/:walletId/options/buy
func (oc *OptionsController) HandleBuyOption(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.OptionTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.derivatives.BuyOption(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleSellOption opens or increases a short option position
// POST /api/v1/wallets/:walletId/options/sell
func (oc *OptionsController) HandleSellOption(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.OptionTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.derivatives.SellOption(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleCloseOption closes part or all of an option position
// POST /api/v1/wallets/:walletId/options/close
func (oc *OptionsController) HandleCloseOption(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.OptionCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.derivatives.CloseOption(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleExercise exercises a long option position
// POST /api/v1/wallets/:walletId/positions/:positionId/exercise
func (oc *OptionsController) HandleExercise(c *gin.Context) {
	wID, ok := walletID(c)
	if !ok {
		return
	}
	pID, ok := positionID(c)
	if !ok {
		return
	}

	var req services.LifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.lifecycle.Exercise(c.Request.Context(), wID, pID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleAssign settles an assignment against a short option position
// POST /api/v1/wallets/:walletId/positions/:positionId/assign
func (oc *OptionsController) HandleAssign(c *gin.Context) {
	wID, ok := walletID(c)
	if !ok {
		return
	}
	pID, ok := positionID(c)
	if !ok {
		return
	}

	var req services.LifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.lifecycle.Assign(c.Request.Context(), wID, pID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleExpire processes expiration of an option position
// POST /api/v1/wallets/:walletId/positions/:positionId/expire
func (oc *OptionsController) HandleExpire(c *gin.Context) {
	wID, ok := walletID(c)
	if !ok {
		return
	}
	pID, ok := positionID(c)
	if !ok {
		return
	}

	var req services.ExpirationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.lifecycle.ProcessExpiration(c.Request.Context(), wID, pID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
