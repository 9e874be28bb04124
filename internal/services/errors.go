package services

import "errors"

// Typed failures returned by the mutating ledger operations. Handlers match on
// these with errors.Is to pick a precise HTTP status and message.
var (
	// Validation failures (bad input shape, zero amounts)
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrInvalidResolutionTime = errors.New("resolution time must be in the future")

	// State failures (operation illegal in the entity's current lifecycle state)
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrNotYetResolvable   = errors.New("market resolution time has not been reached")
	ErrNotResolved        = errors.New("market is not resolved")
	ErrAlreadyClaimed     = errors.New("investment already claimed")
	ErrCyclicChain        = errors.New("child prediction is an ancestor of the parent")
	ErrMarketClosed       = errors.New("market is not active")
	ErrPositionLiquidated = errors.New("collateral position is liquidated")
	ErrNotLiquidatable    = errors.New("position health ratio is not below the liquidation threshold")

	// Economic failures
	ErrInsufficientCollateral = errors.New("insufficient available collateral")
	ErrSlippageExceeded       = errors.New("expected votes below the requested minimum")
	ErrInsufficientLiquidity  = errors.New("initial liquidity below the protocol minimum")
	ErrInsufficientBalance    = errors.New("insufficient withdrawable balance")

	// Authorization failures
	ErrUnauthorized = errors.New("caller is not authorized for this operation")

	// Not-found failures
	ErrMarketNotFound     = errors.New("market not found")
	ErrPositionNotFound   = errors.New("collateral position not found")
	ErrInvestmentNotFound = errors.New("investment not found")
	ErrUserNotFound       = errors.New("user not found")
)
