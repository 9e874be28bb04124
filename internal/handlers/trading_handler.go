package handlers

import (
	"net/http"

	"prediction-chain/internal/auth"
	"prediction-chain/internal/models"
	"prediction-chain/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TradingHandler struct {
	investmentService *services.InvestmentService
	settlementService *services.SettlementService
	userService       *services.UserService
}

func NewTradingHandler(investmentService *services.InvestmentService, settlementService *services.SettlementService, userService *services.UserService) *TradingHandler {
	return &TradingHandler{
		investmentService: investmentService,
		settlementService: settlementService,
		userService:       userService,
	}
}

// InvestInPrediction stakes collateral on one side of a market
// POST /api/predictions/:id/invest
func (h *TradingHandler) InvestInPrediction(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	var req models.InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	investment, err := h.investmentService.Invest(c.Request.Context(), user, marketID, &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, investment)
}

// Claim settles all of the caller's unclaimed investments in a resolved market
// POST /api/predictions/:id/claim
func (h *TradingHandler) Claim(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	result, err := h.settlementService.ClaimAll(c.Request.Context(), user, marketID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ClaimInvestment settles one of the caller's investments by id
// POST /api/investments/:investmentId/claim
func (h *TradingHandler) ClaimInvestment(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	investmentID, err := uuid.Parse(c.Param("investmentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid investment id"})
		return
	}

	result, err := h.settlementService.Claim(c.Request.Context(), user, investmentID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Withdraw pays out withdrawable balance to the caller's wallet
// POST /api/wallet/withdraw
func (h *TradingHandler) Withdraw(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	signature, err := h.settlementService.Withdraw(c.Request.Context(), user, req.Amount)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": signature})
}

// GetPredictionInvestments returns all investments in a market
// GET /api/predictions/:id/investments
func (h *TradingHandler) GetPredictionInvestments(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	limit := parseQueryInt(c, "limit", 50, 200)
	offset := parseQueryInt(c, "offset", 0, 1<<30)

	investments, err := h.investmentService.GetMarketInvestments(c.Request.Context(), marketID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch investments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"investments": investments,
		"count":       len(investments),
	})
}

// GetUserInvestments returns the caller's investments in a market
// GET /api/predictions/:id/investments/me
func (h *TradingHandler) GetUserInvestments(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	investments, err := h.investmentService.GetUserInvestments(c.Request.Context(), userID, marketID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch investments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"investments": investments,
		"count":       len(investments),
	})
}

// GetUserInvestmentTotals returns the caller's aggregate stake in a market
// GET /api/predictions/:id/investments/me/total
func (h *TradingHandler) GetUserInvestmentTotals(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	totals, err := h.investmentService.GetUserInvestmentTotals(c.Request.Context(), userID, marketID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch totals"})
		return
	}

	c.JSON(http.StatusOK, totals)
}

func (h *TradingHandler) requireUser(c *gin.Context) (*models.User, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return user, true
}
