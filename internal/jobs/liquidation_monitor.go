package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"prediction-chain/internal/repository"
	"prediction-chain/internal/services"
)

// System keeper identity for liquidations triggered by the monitor
const keeperUserID uint = 0

// LiquidationMonitor periodically scans open collateral positions and
// liquidates any whose health ratio has fallen below 1. Liquidation itself is
// permissionless; this job just makes sure it happens even with no external
// keepers watching.
type LiquidationMonitor struct {
	collateralService *services.CollateralService
	repo              *repository.ChainRepository
	interval          time.Duration
	stopChan          chan struct{}
}

// NewLiquidationMonitor creates a new liquidation monitor job
func NewLiquidationMonitor(collateralService *services.CollateralService, repo *repository.ChainRepository, interval time.Duration) *LiquidationMonitor {
	return &LiquidationMonitor{
		collateralService: collateralService,
		repo:              repo,
		interval:          interval,
		stopChan:          make(chan struct{}),
	}
}

// Start begins the liquidation scan loop
func (lm *LiquidationMonitor) Start() {
	log.Printf("[LiquidationMonitor] Starting liquidation scan job (interval: %v)", lm.interval)

	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.scanPositions()
		case <-lm.stopChan:
			log.Println("[LiquidationMonitor] Stopping liquidation scan job")
			return
		}
	}
}

// Stop stops the liquidation scan loop
func (lm *LiquidationMonitor) Stop() {
	close(lm.stopChan)
}

// scanPositions checks every open position and liquidates the unhealthy ones
func (lm *LiquidationMonitor) scanPositions() {
	ctx := context.Background()

	positions, err := lm.repo.OpenPositions(ctx, 500)
	if err != nil {
		log.Printf("[LiquidationMonitor] Error fetching open positions: %v", err)
		return
	}

	for _, position := range positions {
		liquidatable, err := lm.collateralService.IsLiquidatable(ctx, position.UserID, position.ParentMarketID)
		if err != nil {
			log.Printf("[LiquidationMonitor] Error checking position user=%d parent=%d: %v",
				position.UserID, position.ParentMarketID, err)
			continue
		}
		if !liquidatable {
			continue
		}

		err = lm.collateralService.Liquidate(ctx, position.UserID, position.ParentMarketID, keeperUserID)
		if err != nil && !errors.Is(err, services.ErrNotLiquidatable) {
			log.Printf("[LiquidationMonitor] Error liquidating position user=%d parent=%d: %v",
				position.UserID, position.ParentMarketID, err)
			continue
		}
		if err == nil {
			log.Printf("[LiquidationMonitor] Liquidated position user=%d parent=%d",
				position.UserID, position.ParentMarketID)
		}
	}
}
