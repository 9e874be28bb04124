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
	"prediction-chain/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CollateralService is the chain state machine: it issues loans against parent
// stakes, keeps the parent/child relation acyclic, computes health ratios and
// runs liquidations. Every mutation is one transaction; all preconditions are
// re-validated inside it so racing callers cannot overdraw a collateral
// snapshot they read earlier.
type CollateralService struct {
	db       *gorm.DB
	repo     *repository.ChainRepository
	protocol config.ProtocolConfig
}

// NewCollateralService creates a new collateral service
func NewCollateralService(db *gorm.DB, repo *repository.ChainRepository, protocol config.ProtocolConfig) *CollateralService {
	return &CollateralService{db: db, repo: repo, protocol: protocol}
}

// ExtendChain pledges part of the user's stake in the parent market as a loan
// that funds a new investment in the child market. The loan principal is
// capped by r*stake - totalUsed; the child stake equals the principal,
// implementing S_{i+1} = L_i = r*S_i.
func (s *CollateralService) ExtendChain(ctx context.Context, user *models.User, req *models.ExtendChainRequest) (*models.Investment, error) {
	if req.CollateralAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if req.ParentMarketID == req.ChildMarketID {
		return nil, ErrCyclicChain
	}

	var investment *models.Investment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stake, err := parentStake(tx, user.ID, req.ParentMarketID)
		if err != nil {
			return err
		}
		if stake.IsZero() {
			return ErrPositionNotFound
		}

		position, err := findOrCreatePosition(tx, user.ID, req.ParentMarketID)
		if err != nil {
			return err
		}
		if position.Status != models.PositionStatusOpen {
			return ErrPositionLiquidated
		}

		ancestors, err := repository.AncestorMarketIDs(tx, user.ID, req.ParentMarketID)
		if err != nil {
			return err
		}
		if _, cyclic := ancestors[req.ChildMarketID]; cyclic {
			return ErrCyclicChain
		}

		available := pricing.AvailableCollateral(stake, position.TotalUsed, s.protocol.CollateralRatio)
		if req.CollateralAmount.GreaterThan(available) {
			return ErrInsufficientCollateral
		}

		parentID := req.ParentMarketID
		investment, err = createInvestment(tx, user.ID, req.ChildMarketID, req.CollateralAmount, req.Side, req.MinExpectedVotes, true, &parentID)
		if err != nil {
			return err
		}

		loan := &models.Loan{
			ID:             uuid.New(),
			UserID:         user.ID,
			ParentMarketID: req.ParentMarketID,
			ChildMarketID:  req.ChildMarketID,
			InvestmentID:   investment.ID,
			Principal:      req.CollateralAmount,
			Obligation:     pricing.LoanObligation(req.CollateralAmount, s.protocol.LoanFeeRate),
			RepaidAmount:   decimal.Zero,
			Status:         models.LoanStatusActive,
			IssuedAt:       time.Now(),
		}
		if err := tx.Create(loan).Error; err != nil {
			return fmt.Errorf("failed to issue loan: %w", err)
		}

		position.Stake = stake
		position.TotalUsed = position.TotalUsed.Add(req.CollateralAmount)
		position.UpdatedAt = time.Now()
		if err := tx.Save(position).Error; err != nil {
			return fmt.Errorf("failed to update collateral position: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return investment, nil
}

// parentStake is the book value of the user's live stake in a market: the sum
// of their unclaimed investment amounts. Loan capacity is sized off this, not
// off mark-to-market, so a chain extension cannot inflate its own collateral
// through entry slippage.
func parentStake(tx *gorm.DB, userID, marketID uint) (decimal.Decimal, error) {
	var investments []models.Investment
	if err := tx.Where("user_id = ? AND market_id = ? AND claimed = ?", userID, marketID, false).
		Find(&investments).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load parent stake: %w", err)
	}

	stake := decimal.Zero
	for _, inv := range investments {
		stake = stake.Add(inv.Amount)
	}
	return stake, nil
}

func findOrCreatePosition(tx *gorm.DB, userID, parentMarketID uint) (*models.CollateralPosition, error) {
	var position models.CollateralPosition
	err := tx.Where("user_id = ? AND parent_market_id = ?", userID, parentMarketID).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		position = models.CollateralPosition{
			ID:             uuid.New(),
			UserID:         userID,
			ParentMarketID: parentMarketID,
			Stake:          decimal.Zero,
			TotalUsed:      decimal.Zero,
			Status:         models.PositionStatusOpen,
		}
		if err := tx.Create(&position).Error; err != nil {
			return nil, fmt.Errorf("failed to create collateral position: %w", err)
		}
		return &position, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collateral position: %w", err)
	}
	return &position, nil
}

// PositionValue is the mark-to-market value of the user's live stake in a
// market: votes priced at the current pool prices while unresolved, the
// realized payout (or zero) once resolved.
func (s *CollateralService) PositionValue(ctx context.Context, userID, marketID uint) (decimal.Decimal, error) {
	var market models.Market
	if err := s.db.WithContext(ctx).First(&market, "id = ?", marketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrMarketNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to load market: %w", err)
	}

	investments, err := s.repo.UnclaimedInvestments(ctx, userID, marketID)
	if err != nil {
		return decimal.Zero, err
	}

	return markValue(&market, investments).Round(ledgerScale), nil
}

func markValue(market *models.Market, investments []models.Investment) decimal.Decimal {
	value := decimal.Zero
	for _, inv := range investments {
		if market.Resolved {
			if market.Outcome != nil && inv.Side == *market.Outcome {
				winning, losing := resolvedPools(market)
				value = value.Add(pricing.WinningPayout(inv.Amount, winning, losing))
			}
			continue
		}
		price := pricing.SidePrice(market.YesLiquidity, market.NoLiquidity, inv.Side)
		value = value.Add(inv.ExpectedVotes.Mul(price))
	}
	return value
}

func resolvedPools(market *models.Market) (winning, losing decimal.Decimal) {
	if market.Outcome != nil && *market.Outcome {
		return market.YesLiquidity, market.NoLiquidity
	}
	return market.NoLiquidity, market.YesLiquidity
}

// HealthRatio returns positionValue / aggregate outstanding obligation for one
// parent position. defined is false when no loans are outstanding (HR treated
// as +infinity).
func (s *CollateralService) HealthRatio(ctx context.Context, userID, parentMarketID uint) (hr decimal.Decimal, defined bool, err error) {
	value, err := s.PositionValue(ctx, userID, parentMarketID)
	if err != nil {
		return decimal.Zero, false, err
	}

	obligation, err := s.outstandingObligation(ctx, userID, parentMarketID)
	if err != nil {
		return decimal.Zero, false, err
	}

	hr, defined = pricing.HealthRatio(value, obligation)
	return hr, defined, nil
}

// IsLiquidatable reports whether the position's health ratio is below 1
func (s *CollateralService) IsLiquidatable(ctx context.Context, userID, parentMarketID uint) (bool, error) {
	value, err := s.PositionValue(ctx, userID, parentMarketID)
	if err != nil {
		return false, err
	}

	obligation, err := s.outstandingObligation(ctx, userID, parentMarketID)
	if err != nil {
		return false, err
	}

	return pricing.Liquidatable(value, obligation), nil
}

func (s *CollateralService) outstandingObligation(ctx context.Context, userID, parentMarketID uint) (decimal.Decimal, error) {
	loans, err := s.repo.ActiveLoans(ctx, userID, parentMarketID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, loan := range loans {
		total = total.Add(loan.Obligation.Sub(loan.RepaidAmount))
	}
	return total, nil
}

// Liquidate seizes an unhealthy parent position: the stake's mark-to-market
// value repays outstanding loans in issuance (FIFO) order, loans that cannot
// be covered are marked defaulted, and any remainder is returned to the user
// as withdrawable equity. Calling it again on an already-liquidated position
// is a no-op so competing liquidators race benignly.
func (s *CollateralService) Liquidate(ctx context.Context, userID, parentMarketID uint, liquidatorID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var position models.CollateralPosition
		err := tx.Where("user_id = ? AND parent_market_id = ?", userID, parentMarketID).First(&position).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPositionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load position: %w", err)
		}

		if position.Status != models.PositionStatusOpen {
			// Terminal already; tolerate the race among competing liquidators
			return nil
		}

		var market models.Market
		if err := tx.First(&market, "id = ?", parentMarketID).Error; err != nil {
			return fmt.Errorf("failed to load parent market: %w", err)
		}

		var investments []models.Investment
		if err := tx.Where("user_id = ? AND market_id = ? AND claimed = ?", userID, parentMarketID, false).
			Order("created_at ASC").
			Find(&investments).Error; err != nil {
			return fmt.Errorf("failed to load parent investments: %w", err)
		}

		var loans []models.Loan
		if err := tx.Where("user_id = ? AND parent_market_id = ? AND status = ?", userID, parentMarketID, models.LoanStatusActive).
			Order("issued_at ASC").
			Find(&loans).Error; err != nil {
			return fmt.Errorf("failed to load active loans: %w", err)
		}

		value := markValue(&market, investments).Round(ledgerScale)
		obligation := decimal.Zero
		for _, loan := range loans {
			obligation = obligation.Add(loan.Obligation.Sub(loan.RepaidAmount))
		}

		if !pricing.Liquidatable(value, obligation) {
			return ErrNotLiquidatable
		}

		now := time.Now()

		// Seize the whole stake: parent investments are consumed here and can
		// no longer be claimed
		for i := range investments {
			investments[i].Claimed = true
			investments[i].ClaimedAt = &now
			if err := tx.Save(&investments[i]).Error; err != nil {
				return fmt.Errorf("failed to seize investment: %w", err)
			}
		}

		// Repay in issuance order until the seized value runs out
		remaining := value
		repaid := decimal.Zero
		for i := range loans {
			outstanding := loans[i].Obligation.Sub(loans[i].RepaidAmount)
			pay := decimal.Min(remaining, outstanding)

			loans[i].RepaidAmount = loans[i].RepaidAmount.Add(pay)
			loans[i].SettledAt = &now
			if loans[i].RepaidAmount.GreaterThanOrEqual(loans[i].Obligation) {
				loans[i].Status = models.LoanStatusRepaid
			} else {
				loans[i].Status = models.LoanStatusDefaulted
			}
			if err := tx.Save(&loans[i]).Error; err != nil {
				return fmt.Errorf("failed to settle loan: %w", err)
			}

			remaining = remaining.Sub(pay)
			repaid = repaid.Add(pay)
		}

		// Remainder after full repayment flows back to the user
		if remaining.GreaterThan(decimal.Zero) {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).
				Update("withdrawable_balance", gorm.Expr("withdrawable_balance + ?", remaining)).Error; err != nil {
				return fmt.Errorf("failed to return remainder: %w", err)
			}
		}

		position.Status = models.PositionStatusLiquidated
		position.LiquidatedAt = &now
		position.UpdatedAt = now
		if err := tx.Save(&position).Error; err != nil {
			return fmt.Errorf("failed to mark position liquidated: %w", err)
		}

		log.Printf("[Collateral] position liquidated: user=%d parent=%d seized=%s repaid=%s remainder=%s liquidator=%d",
			userID, parentMarketID, value.String(), repaid.String(), remaining.String(), liquidatorID)

		return appendEvent(tx, models.EventPositionLiquidated, &parentMarketID, &userID, &value, map[string]interface{}{
			"repaid":        repaid.String(),
			"remainder":     remaining.String(),
			"liquidator_id": liquidatorID,
		})
	})
}

// GetPosition builds the API view of one chain link, including derived values
func (s *CollateralService) GetPosition(ctx context.Context, userID, parentMarketID uint) (*models.CollateralPositionResponse, error) {
	position, err := s.repo.Position(ctx, userID, parentMarketID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	value, err := s.PositionValue(ctx, userID, parentMarketID)
	if err != nil {
		return nil, err
	}

	obligation, err := s.outstandingObligation(ctx, userID, parentMarketID)
	if err != nil {
		return nil, err
	}

	children, err := s.repo.ChildMarketIDs(ctx, userID, parentMarketID)
	if err != nil {
		return nil, err
	}

	resp := &models.CollateralPositionResponse{
		UserID:              position.UserID,
		ParentMarketID:      position.ParentMarketID,
		Stake:               position.Stake,
		TotalUsed:           position.TotalUsed,
		AvailableCollateral: pricing.AvailableCollateral(position.Stake, position.TotalUsed, s.protocol.CollateralRatio),
		PositionValue:       value,
		Liquidatable:        pricing.Liquidatable(value, obligation),
		Status:              position.Status,
		ChildMarketIDs:      children,
	}

	if hr, defined := pricing.HealthRatio(value, obligation); defined {
		resp.HealthRatio = &hr
	}

	return resp, nil
}
