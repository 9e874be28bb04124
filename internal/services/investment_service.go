package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"prediction-chain/internal/models"
	"prediction-chain/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvestmentService handles direct cash stakes into markets and the
// investment read surface. Collateral-funded stakes go through the
// CollateralService instead.
type InvestmentService struct {
	db     *gorm.DB
	escrow TokenEscrow
}

// NewInvestmentService creates a new investment service
func NewInvestmentService(db *gorm.DB, escrow TokenEscrow) *InvestmentService {
	return &InvestmentService{db: db, escrow: escrow}
}

// Invest stakes amount on one side of a market. The stake is converted to
// expected votes at the pre-trade price and the chosen pool grows by amount.
// minExpectedVotes is the caller's slippage guard.
func (s *InvestmentService) Invest(ctx context.Context, user *models.User, marketID uint, req *models.InvestRequest) (*models.Investment, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	if _, err := s.escrow.Deposit(ctx, user.WalletAddress, req.Amount); err != nil {
		return nil, fmt.Errorf("failed to pull stake: %w", err)
	}

	var investment *models.Investment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		investment, err = createInvestment(tx, user.ID, marketID, req.Amount, req.Side, req.MinExpectedVotes, false, nil)
		return err
	})
	if err != nil {
		// Ledger rejected the trade; send the pulled stake back
		if _, releaseErr := s.escrow.Release(ctx, user.WalletAddress, req.Amount); releaseErr != nil {
			log.Printf("[Investment] failed to refund rejected stake for user %d: %v", user.ID, releaseErr)
		}
		return nil, err
	}

	return investment, nil
}

// createInvestment applies the invest state transition inside an open
// transaction: validates the market, checks slippage, shifts the pool, records
// the investment row and the event, and bumps the user aggregate. Shared by
// direct investing and chain extension.
func createInvestment(tx *gorm.DB, userID, marketID uint, amount decimal.Decimal, side bool, minExpectedVotes decimal.Decimal, collateralBased bool, parentMarketID *uint) (*models.Investment, error) {
	var market models.Market
	if err := tx.First(&market, "id = ?", marketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to load market: %w", err)
	}

	if !market.Active || market.Resolved {
		return nil, ErrMarketClosed
	}

	price := pricing.SidePrice(market.YesLiquidity, market.NoLiquidity, side)
	votes := pricing.ExpectedVotes(amount, price)
	if votes.LessThan(minExpectedVotes) {
		return nil, ErrSlippageExceeded
	}

	if side {
		market.YesLiquidity = market.YesLiquidity.Add(amount)
	} else {
		market.NoLiquidity = market.NoLiquidity.Add(amount)
	}
	if err := tx.Save(&market).Error; err != nil {
		return nil, fmt.Errorf("failed to update pools: %w", err)
	}

	investment := &models.Investment{
		ID:                uuid.New(),
		MarketID:          marketID,
		UserID:            userID,
		Amount:            amount,
		Side:              side,
		EntryPrice:        price,
		ExpectedVotes:     votes,
		IsCollateralBased: collateralBased,
		ParentMarketID:    parentMarketID,
	}
	if err := tx.Create(investment).Error; err != nil {
		return nil, fmt.Errorf("failed to record investment: %w", err)
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("total_invested", gorm.Expr("total_invested + ?", amount)).Error; err != nil {
		return nil, fmt.Errorf("failed to update user totals: %w", err)
	}

	eventType := models.EventInvestmentMade
	if collateralBased {
		eventType = models.EventChainExtended
	}
	if err := appendEvent(tx, eventType, &marketID, &userID, &amount, map[string]interface{}{
		"investment_id":  investment.ID.String(),
		"side":           side,
		"expected_votes": votes.String(),
	}); err != nil {
		return nil, err
	}

	return investment, nil
}

// ExpectedVotes quotes the vote conversion for a stake without executing it
func (s *InvestmentService) ExpectedVotes(ctx context.Context, marketID uint, amount decimal.Decimal, side bool) (decimal.Decimal, error) {
	var market models.Market
	if err := s.db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMarketNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to load market: %w", err)
	}

	price := pricing.SidePrice(market.YesLiquidity, market.NoLiquidity, side)
	return pricing.ExpectedVotes(amount, price), nil
}

// GetMarketInvestments retrieves all investments in a market, newest first
func (s *InvestmentService) GetMarketInvestments(ctx context.Context, marketID uint, limit, offset int) ([]models.Investment, error) {
	var investments []models.Investment
	if err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("failed to get investments: %w", err)
	}
	return investments, nil
}

// GetUserInvestments retrieves one user's investments in a market
func (s *InvestmentService) GetUserInvestments(ctx context.Context, userID, marketID uint) ([]models.Investment, error) {
	var investments []models.Investment
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND market_id = ?", userID, marketID).
		Order("created_at ASC").
		Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("failed to get user investments: %w", err)
	}
	return investments, nil
}

// GetUserInvestmentTotals aggregates a user's stakes in a market by side
func (s *InvestmentService) GetUserInvestmentTotals(ctx context.Context, userID, marketID uint) (*models.InvestmentTotals, error) {
	investments, err := s.GetUserInvestments(ctx, userID, marketID)
	if err != nil {
		return nil, err
	}

	totals := &models.InvestmentTotals{
		TotalAmount: decimal.Zero,
		YesAmount:   decimal.Zero,
		NoAmount:    decimal.Zero,
	}
	for _, inv := range investments {
		totals.TotalAmount = totals.TotalAmount.Add(inv.Amount)
		if inv.Side {
			totals.YesAmount = totals.YesAmount.Add(inv.Amount)
		} else {
			totals.NoAmount = totals.NoAmount.Add(inv.Amount)
		}
	}
	return totals, nil
}
