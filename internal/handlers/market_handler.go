package handlers

import (
	"net/http"
	"strconv"

	"prediction-chain/internal/auth"
	"prediction-chain/internal/models"
	"prediction-chain/internal/pricing"
	"prediction-chain/internal/services"

	"github.com/gin-gonic/gin"
)

type MarketHandler struct {
	marketService *services.MarketService
	userService   *services.UserService
	eventService  *services.EventService
}

func NewMarketHandler(marketService *services.MarketService, userService *services.UserService, eventService *services.EventService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
		userService:   userService,
		eventService:  eventService,
	}
}

// GetActivePredictions returns active markets with spot prices
// GET /api/predictions
func (h *MarketHandler) GetActivePredictions(c *gin.Context) {
	category := c.Query("category")
	limit := parseQueryInt(c, "limit", 50, 200)
	offset := parseQueryInt(c, "offset", 0, 1<<30)

	markets, err := h.marketService.GetActiveMarkets(c.Request.Context(), category, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch markets"})
		return
	}

	responses := make([]*models.MarketResponse, len(markets))
	for i := range markets {
		responses[i] = h.marketService.ToMarketResponse(&markets[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": responses,
		"count":       len(responses),
	})
}

// GetPrediction returns one market
// GET /api/predictions/:id
func (h *MarketHandler) GetPrediction(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	market, err := h.marketService.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.marketService.ToMarketResponse(market))
}

// GetCurrentPrices returns the spot YES/NO prices of a market
// GET /api/predictions/:id/prices
func (h *MarketHandler) GetCurrentPrices(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	market, err := h.marketService.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	yesPrice, noPrice := pricing.Prices(market.YesLiquidity, market.NoLiquidity)
	c.JSON(http.StatusOK, gin.H{
		"yes_price": yesPrice,
		"no_price":  noPrice,
	})
}

// GetTotalLiquidity returns the combined pool balance of a market
// GET /api/predictions/:id/liquidity
func (h *MarketHandler) GetTotalLiquidity(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	market, err := h.marketService.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_liquidity": market.TotalLiquidity(),
		"yes_liquidity":   market.YesLiquidity,
		"no_liquidity":    market.NoLiquidity,
	})
}

// CreatePrediction creates a new market
// POST /api/predictions
func (h *MarketHandler) CreatePrediction(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req models.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.marketService.CreateMarket(c.Request.Context(), user, &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.marketService.ToMarketResponse(market))
}

// ResolvePrediction resolves a market with its final outcome
// POST /api/predictions/:id/resolve
func (h *MarketHandler) ResolvePrediction(c *gin.Context) {
	user, ok := h.requireUser(c)
	if !ok {
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	var req models.ResolveMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.marketService.ResolveMarket(c.Request.Context(), marketID, req.Outcome, user)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.marketService.ToMarketResponse(market))
}

// GetEvents returns domain events after the given id, for UI polling
// GET /api/events?after=<id>&limit=<n>
func (h *MarketHandler) GetEvents(c *gin.Context) {
	after := parseQueryInt(c, "after", 0, 1<<30)
	limit := parseQueryInt(c, "limit", 100, 500)

	events, err := h.eventService.After(uint(after), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func (h *MarketHandler) requireUser(c *gin.Context) (*models.User, bool) {
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

// parseMarketID reads the :id path param, writing the error response itself
func parseMarketID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market id"})
		return 0, false
	}
	return uint(id), true
}

func parseQueryInt(c *gin.Context, key string, def, max int) int {
	value := def
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 && v <= max {
			value = v
		}
	}
	return value
}
