package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Gsaudx/Advision-sub001/services"
)

// WalletController handles cash operations on wallets
type WalletController struct {
	wallets *services.WalletService
}

// NewWalletController creates a new wallet controller
func NewWalletController(wallets *services.WalletService) *WalletController {
	return &WalletController{
		wallets: wallets,
	}
}

func walletID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("walletId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid wallet id",
		})
		return 0, false
	}
	return uint(id), true
}

// HandleGetWallet returns a wallet's balances
// GET /api/v1/wallets/:walletId
func (wc *WalletController) HandleGetWallet(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	wallet, err := wc.wallets.GetWallet(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// HandleDeposit credits cash into a wallet
// POST /api/v1/wallets/:walletId/deposits
func (wc *WalletController) HandleDeposit(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.CashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := wc.wallets.Deposit(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleWithdraw debits cash from a wallet
// POST /api/v1/wallets/:walletId/withdrawals
func (wc *WalletController) HandleWithdraw(c *gin.Context) {
	id, ok := walletID(c)
	if !ok {
		return
	}

	var req services.CashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	result, err := wc.wallets.Withdraw(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
