package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"prediction-chain/internal/config"
	"prediction-chain/internal/models"
	"prediction-chain/internal/pricing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var two = decimal.NewFromInt(2)

// MarketService implements the market registry: creation, resolution and reads.
// Markets are append-only; resolution is the single terminal mutation.
type MarketService struct {
	db       *gorm.DB
	escrow   TokenEscrow
	protocol config.ProtocolConfig
}

// NewMarketService creates a new market service
func NewMarketService(db *gorm.DB, escrow TokenEscrow, protocol config.ProtocolConfig) *MarketService {
	return &MarketService{db: db, escrow: escrow, protocol: protocol}
}

// CreateMarket registers a new market, pulling the initial liquidity deposit
// from the creator and splitting it 50/50 between the YES and NO pools.
func (s *MarketService) CreateMarket(ctx context.Context, creator *models.User, req *models.CreateMarketRequest) (*models.Market, error) {
	if req.InitialLiquidity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if req.InitialLiquidity.LessThan(s.protocol.MinimumLiquidity) {
		return nil, ErrInsufficientLiquidity
	}
	if !req.ResolutionTime.After(time.Now()) {
		return nil, ErrInvalidResolutionTime
	}

	if _, err := s.escrow.Deposit(ctx, creator.WalletAddress, req.InitialLiquidity); err != nil {
		return nil, fmt.Errorf("failed to pull initial liquidity: %w", err)
	}

	half := req.InitialLiquidity.Div(two)
	market := &models.Market{
		Title:          req.Title,
		Category:       req.Category,
		MetadataCID:    req.MetadataCID,
		CreatedBy:      creator.ID,
		ResolutionTime: req.ResolutionTime,
		YesLiquidity:   half,
		NoLiquidity:    req.InitialLiquidity.Sub(half),
		Active:         true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(market).Error; err != nil {
			return fmt.Errorf("failed to create market: %w", err)
		}
		return appendEvent(tx, models.EventPredictionCreated, &market.ID, &creator.ID, &req.InitialLiquidity, map[string]interface{}{
			"title":    market.Title,
			"category": market.Category,
		})
	})
	if err != nil {
		// Ledger rejected the market; send the pulled liquidity back
		if _, releaseErr := s.escrow.Release(ctx, creator.WalletAddress, req.InitialLiquidity); releaseErr != nil {
			log.Printf("[Market] failed to refund rejected liquidity for user %d: %v", creator.ID, releaseErr)
		}
		return nil, err
	}

	return market, nil
}

// ResolveMarket resolves a market with its final outcome. Only the market
// creator or the configured oracle wallet may resolve. Pools are frozen from
// this point and only used for payout accounting.
func (s *MarketService) ResolveMarket(ctx context.Context, marketID uint, outcome bool, resolver *models.User) (*models.Market, error) {
	var market models.Market

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&market, "id = ?", marketID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMarketNotFound
			}
			return fmt.Errorf("failed to load market: %w", err)
		}

		if market.Resolved {
			return ErrAlreadyResolved
		}
		if time.Now().Before(market.ResolutionTime) {
			return ErrNotYetResolvable
		}
		if resolver.ID != market.CreatedBy && resolver.WalletAddress != s.protocol.OracleWallet {
			return ErrUnauthorized
		}

		now := time.Now()
		market.Resolved = true
		market.Outcome = &outcome
		market.Active = false
		market.ResolvedAt = &now

		if err := tx.Save(&market).Error; err != nil {
			return fmt.Errorf("failed to resolve market: %w", err)
		}

		return appendEvent(tx, models.EventPredictionResolved, &market.ID, &resolver.ID, nil, map[string]interface{}{
			"outcome": outcome,
		})
	})
	if err != nil {
		return nil, err
	}

	return &market, nil
}

// GetMarket retrieves a market by id
func (s *MarketService) GetMarket(ctx context.Context, marketID uint) (*models.Market, error) {
	var market models.Market
	if err := s.db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return &market, nil
}

// GetActiveMarkets retrieves active markets, optionally filtered by category
func (s *MarketService) GetActiveMarkets(ctx context.Context, category string, limit, offset int) ([]models.Market, error) {
	var markets []models.Market
	query := s.db.WithContext(ctx).Where("active = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&markets).Error; err != nil {
		return nil, fmt.Errorf("failed to get markets: %w", err)
	}
	return markets, nil
}

// ToMarketResponse converts a Market to its API response format with spot prices
func (s *MarketService) ToMarketResponse(market *models.Market) *models.MarketResponse {
	yesPrice, noPrice := pricing.Prices(market.YesLiquidity, market.NoLiquidity)
	return &models.MarketResponse{
		ID:             market.ID,
		Title:          market.Title,
		Category:       market.Category,
		MetadataCID:    market.MetadataCID,
		CreatedBy:      market.CreatedBy,
		ResolutionTime: market.ResolutionTime,
		YesLiquidity:   market.YesLiquidity,
		NoLiquidity:    market.NoLiquidity,
		YesPrice:       yesPrice,
		NoPrice:        noPrice,
		Resolved:       market.Resolved,
		Outcome:        market.Outcome,
		Active:         market.Active,
		CreatedAt:      market.CreatedAt,
		ResolvedAt:     market.ResolvedAt,
	}
}
