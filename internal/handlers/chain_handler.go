package handlers

import (
	"net/http"
	"strconv"

	"prediction-chain/internal/auth"
	"prediction-chain/internal/models"
	"prediction-chain/internal/repository"
	"prediction-chain/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ChainHandler struct {
	collateralService *services.CollateralService
	userService       *services.UserService
	repo              *repository.ChainRepository
}

func NewChainHandler(collateralService *services.CollateralService, userService *services.UserService, repo *repository.ChainRepository) *ChainHandler {
	return &ChainHandler{
		collateralService: collateralService,
		userService:       userService,
		repo:              repo,
	}
}

// ExtendChain pledges parent collateral into a child prediction
// POST /api/chain/extend
func (h *ChainHandler) ExtendChain(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req models.ExtendChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	investment, err := h.collateralService.ExtendChain(c.Request.Context(), user, &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, investment)
}

// GetUserChain returns the caller's aggregate chain data
// GET /api/chain
func (h *ChainHandler) GetUserChain(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	chain, err := h.userService.GetUserChain(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, chain)
}

// GetParentPredictions returns the markets the caller has pledged against
// GET /api/chain/parents
func (h *ChainHandler) GetParentPredictions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ids, err := h.repo.ParentMarketIDs(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch parent predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"parent_prediction_ids": ids,
		"count":                 len(ids),
	})
}

// GetCollateralPosition returns one chain link with derived health values
// GET /api/chain/positions/:parentId
func (h *ChainHandler) GetCollateralPosition(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	parentID, ok := parseParentID(c)
	if !ok {
		return
	}

	position, err := h.collateralService.GetPosition(c.Request.Context(), userID, parentID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, position)
}

// IsPositionLiquidatable reports whether a position is below the health threshold
// GET /api/chain/positions/:parentId/liquidatable
func (h *ChainHandler) IsPositionLiquidatable(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	parentID, ok := parseParentID(c)
	if !ok {
		return
	}

	liquidatable, err := h.collateralService.IsLiquidatable(c.Request.Context(), userID, parentID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"liquidatable": liquidatable})
}

// Liquidate triggers liquidation of an unhealthy position. Permissionless:
// any authenticated caller may liquidate any user's position.
// POST /api/chain/liquidate
func (h *ChainHandler) Liquidate(c *gin.Context) {
	liquidatorID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		UserID         uint `json:"user_id" binding:"required"`
		ParentMarketID uint `json:"parent_market_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.collateralService.Liquidate(c.Request.Context(), req.UserID, req.ParentMarketID, liquidatorID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"liquidated": true})
}

// GetPositionValue returns the mark-to-market value of the caller's stake
// GET /api/predictions/:id/position-value
func (h *ChainHandler) GetPositionValue(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	value, err := h.collateralService.PositionValue(c.Request.Context(), userID, marketID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position_value": value})
}

// GetPortfolio returns every market the caller holds with its mark-to-market value
// GET /api/chain/portfolio
func (h *ChainHandler) GetPortfolio(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	marketIDs, err := h.repo.InvestedMarketIDs(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch portfolio"})
		return
	}

	type holding struct {
		MarketID uint            `json:"market_id"`
		Value    decimal.Decimal `json:"position_value"`
	}

	holdings := make([]holding, 0, len(marketIDs))
	for _, id := range marketIDs {
		value, err := h.collateralService.PositionValue(c.Request.Context(), userID, id)
		if err != nil {
			continue
		}
		holdings = append(holdings, holding{MarketID: id, Value: value})
	}

	c.JSON(http.StatusOK, gin.H{
		"holdings": holdings,
		"count":    len(holdings),
	})
}

func (h *ChainHandler) requireUser(c *gin.Context) (*models.User, bool) {
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

// parseParentID reads the :parentId path param, writing the error response itself
func parseParentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("parentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parent market id"})
		return 0, false
	}
	return uint(id), true
}
