package handlers

import (
	"errors"
	"net/http"

	"prediction-chain/internal/services"

	"github.com/gin-gonic/gin"
)

// statusForError maps the service error taxonomy onto HTTP status codes so the
// UI can tell corrective-action failures from hard stops
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrMarketNotFound),
		errors.Is(err, services.ErrPositionNotFound),
		errors.Is(err, services.ErrInvestmentNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAlreadyResolved),
		errors.Is(err, services.ErrNotYetResolvable),
		errors.Is(err, services.ErrNotResolved),
		errors.Is(err, services.ErrAlreadyClaimed),
		errors.Is(err, services.ErrCyclicChain),
		errors.Is(err, services.ErrMarketClosed),
		errors.Is(err, services.ErrPositionLiquidated),
		errors.Is(err, services.ErrNotLiquidatable):
		return http.StatusConflict
	case errors.Is(err, services.ErrInsufficientCollateral),
		errors.Is(err, services.ErrSlippageExceeded),
		errors.Is(err, services.ErrInsufficientLiquidity),
		errors.Is(err, services.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidResolutionTime):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the uniform error response body
func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
