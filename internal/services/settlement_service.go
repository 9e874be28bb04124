package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"prediction-chain/internal/models"
	"prediction-chain/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Decimal places of the ledger's money columns. Amounts are rounded to this
// scale before they are credited so arithmetic is deterministic across drivers.
const ledgerScale = 8

// SettlementService pays out resolved markets. A winning claim takes the
// principal plus a proportional share of the losing pool; claims funded by a
// loan first retire the loan's obligation, the stake's own secured loans are
// charged next, and only the residual reaches the user's withdrawable balance.
type SettlementService struct {
	db     *gorm.DB
	escrow TokenEscrow
}

// NewSettlementService creates a new settlement service
func NewSettlementService(db *gorm.DB, escrow TokenEscrow) *SettlementService {
	return &SettlementService{db: db, escrow: escrow}
}

// Claim settles one investment in a resolved market
func (s *SettlementService) Claim(ctx context.Context, user *models.User, investmentID uuid.UUID) (*models.ClaimResponse, error) {
	var resp *models.ClaimResponse

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resp, err = s.claimInTx(tx, user, investmentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ClaimAll settles every unclaimed investment the user holds in one market and
// returns the aggregate
func (s *SettlementService) ClaimAll(ctx context.Context, user *models.User, marketID uint) (*models.ClaimResponse, error) {
	total := &models.ClaimResponse{
		Payout:     decimal.Zero,
		LoanRepaid: decimal.Zero,
		NetToUser:  decimal.Zero,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var investments []models.Investment
		if err := tx.Where("user_id = ? AND market_id = ? AND claimed = ?", user.ID, marketID, false).
			Order("created_at ASC").
			Find(&investments).Error; err != nil {
			return fmt.Errorf("failed to load investments: %w", err)
		}
		if len(investments) == 0 {
			var held int64
			if err := tx.Model(&models.Investment{}).
				Where("user_id = ? AND market_id = ?", user.ID, marketID).
				Count(&held).Error; err != nil {
				return fmt.Errorf("failed to count investments: %w", err)
			}
			if held > 0 {
				return ErrAlreadyClaimed
			}
			return ErrInvestmentNotFound
		}

		for _, inv := range investments {
			resp, err := s.claimInTx(tx, user, inv.ID)
			if err != nil {
				return err
			}
			total.InvestmentID = resp.InvestmentID
			total.Payout = total.Payout.Add(resp.Payout)
			total.LoanRepaid = total.LoanRepaid.Add(resp.LoanRepaid)
			total.NetToUser = total.NetToUser.Add(resp.NetToUser)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return total, nil
}

func (s *SettlementService) claimInTx(tx *gorm.DB, user *models.User, investmentID uuid.UUID) (*models.ClaimResponse, error) {
	var investment models.Investment
	err := tx.First(&investment, "id = ?", investmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load investment: %w", err)
	}

	if investment.UserID != user.ID {
		return nil, ErrUnauthorized
	}
	if investment.Claimed {
		return nil, ErrAlreadyClaimed
	}

	var market models.Market
	if err := tx.First(&market, "id = ?", investment.MarketID).Error; err != nil {
		return nil, fmt.Errorf("failed to load market: %w", err)
	}
	if !market.Resolved || market.Outcome == nil {
		return nil, ErrNotResolved
	}

	payout := decimal.Zero
	if investment.Side == *market.Outcome {
		winning, losing := resolvedPools(&market)
		// Rounded to the ledger's 8-decimal scale so balances stay exact
		// across drivers
		payout = pricing.WinningPayout(investment.Amount, winning, losing).Round(ledgerScale)
	}

	now := time.Now()
	investment.Claimed = true
	investment.ClaimedAt = &now
	if err := tx.Save(&investment).Error; err != nil {
		return nil, fmt.Errorf("failed to mark investment claimed: %w", err)
	}

	loanRepaid := decimal.Zero
	net := payout
	if investment.IsCollateralBased {
		net, loanRepaid, err = s.settleLoan(tx, &investment, payout, now)
		if err != nil {
			return nil, err
		}
	}

	// The claimed stake may itself secure loans to child markets; its payout
	// is charged with those obligations before anything reaches the user
	securedRepaid, err := s.repaySecuredLoans(tx, user.ID, investment.MarketID, net, now)
	if err != nil {
		return nil, err
	}
	net = net.Sub(securedRepaid)
	loanRepaid = loanRepaid.Add(securedRepaid)

	if net.GreaterThan(decimal.Zero) {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"total_claimed":        gorm.Expr("total_claimed + ?", net),
				"withdrawable_balance": gorm.Expr("withdrawable_balance + ?", net),
			}).Error; err != nil {
			return nil, fmt.Errorf("failed to credit payout: %w", err)
		}
	}

	if err := closePositionIfSettled(tx, user.ID, investment.MarketID); err != nil {
		return nil, err
	}

	if err := appendEvent(tx, models.EventWinningsClaimed, &investment.MarketID, &user.ID, &payout, map[string]interface{}{
		"investment_id": investment.ID.String(),
		"loan_repaid":   loanRepaid.String(),
		"net_to_user":   net.String(),
	}); err != nil {
		return nil, err
	}

	return &models.ClaimResponse{
		InvestmentID: investment.ID,
		Payout:       payout,
		LoanRepaid:   loanRepaid,
		NetToUser:    net,
	}, nil
}

// repaySecuredLoans charges a claimed parent payout with the outstanding
// obligations of the loans that stake secured, oldest first. A loan the payout
// cannot cover in full stays active, still collectible from its child's
// winnings; a fully retired one releases its pledge on the parent capacity.
func (s *SettlementService) repaySecuredLoans(tx *gorm.DB, userID, marketID uint, available decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !available.GreaterThan(decimal.Zero) {
		return decimal.Zero, nil
	}

	var loans []models.Loan
	if err := tx.Where("user_id = ? AND parent_market_id = ? AND status = ?", userID, marketID, models.LoanStatusActive).
		Order("issued_at ASC").
		Find(&loans).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to load secured loans: %w", err)
	}

	repaid := decimal.Zero
	for i := range loans {
		if !available.GreaterThan(decimal.Zero) {
			break
		}
		outstanding := loans[i].Obligation.Sub(loans[i].RepaidAmount)
		pay := decimal.Min(available, outstanding)

		loans[i].RepaidAmount = loans[i].RepaidAmount.Add(pay)
		if loans[i].RepaidAmount.GreaterThanOrEqual(loans[i].Obligation) {
			loans[i].Status = models.LoanStatusRepaid
			loans[i].SettledAt = &now
		}
		if err := tx.Save(&loans[i]).Error; err != nil {
			return decimal.Zero, fmt.Errorf("failed to repay secured loan: %w", err)
		}

		if loans[i].Status == models.LoanStatusRepaid {
			if err := tx.Model(&models.CollateralPosition{}).
				Where("user_id = ? AND parent_market_id = ? AND status = ?", userID, marketID, models.PositionStatusOpen).
				Update("total_used", gorm.Expr("total_used - ?", loans[i].Principal)).Error; err != nil {
				return decimal.Zero, fmt.Errorf("failed to release parent collateral: %w", err)
			}
		}

		available = available.Sub(pay)
		repaid = repaid.Add(pay)
	}

	return repaid, nil
}

// settleLoan retires the loan that funded a collateral-based investment from
// its payout. A fully repaid loan releases the pledged collateral on the
// parent; a shortfall stays on the parent's totalUsed as a realized loss.
func (s *SettlementService) settleLoan(tx *gorm.DB, investment *models.Investment, payout decimal.Decimal, now time.Time) (net, repaid decimal.Decimal, err error) {
	var loan models.Loan
	err = tx.Where("investment_id = ?", investment.ID).First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Loan already seized through liquidation; nothing left to retire here
		return payout, decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to load funding loan: %w", err)
	}

	if loan.Status != models.LoanStatusActive {
		return payout, decimal.Zero, nil
	}

	outstanding := loan.Obligation.Sub(loan.RepaidAmount)
	repaid = decimal.Min(payout, outstanding)

	loan.RepaidAmount = loan.RepaidAmount.Add(repaid)
	loan.SettledAt = &now
	if loan.RepaidAmount.GreaterThanOrEqual(loan.Obligation) {
		loan.Status = models.LoanStatusRepaid
	} else {
		loan.Status = models.LoanStatusWrittenOff
	}
	if err := tx.Save(&loan).Error; err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to settle loan: %w", err)
	}

	if loan.Status == models.LoanStatusRepaid {
		// Pledged collateral is released back to the parent's capacity
		if err := tx.Model(&models.CollateralPosition{}).
			Where("user_id = ? AND parent_market_id = ? AND status = ?", loan.UserID, loan.ParentMarketID, models.PositionStatusOpen).
			Update("total_used", gorm.Expr("total_used - ?", loan.Principal)).Error; err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("failed to release parent collateral: %w", err)
		}
	} else {
		log.Printf("[Settlement] loan %s written off: payout %s < obligation %s (user=%d parent=%d)",
			loan.ID, payout.String(), loan.Obligation.String(), loan.UserID, loan.ParentMarketID)
	}

	if err := closePositionIfSettled(tx, loan.UserID, loan.ParentMarketID); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return payout.Sub(repaid), repaid, nil
}

// closePositionIfSettled moves an open collateral position to Closed once its
// market is resolved, the stake is fully claimed and no loans remain active
func closePositionIfSettled(tx *gorm.DB, userID, marketID uint) error {
	var position models.CollateralPosition
	err := tx.Where("user_id = ? AND parent_market_id = ?", userID, marketID).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load position: %w", err)
	}
	if position.Status != models.PositionStatusOpen {
		return nil
	}

	var market models.Market
	if err := tx.First(&market, "id = ?", marketID).Error; err != nil {
		return fmt.Errorf("failed to load market: %w", err)
	}
	if !market.Resolved {
		return nil
	}

	var activeLoans int64
	if err := tx.Model(&models.Loan{}).
		Where("user_id = ? AND parent_market_id = ? AND status = ?", userID, marketID, models.LoanStatusActive).
		Count(&activeLoans).Error; err != nil {
		return fmt.Errorf("failed to count active loans: %w", err)
	}
	if activeLoans > 0 {
		return nil
	}

	var unclaimed int64
	if err := tx.Model(&models.Investment{}).
		Where("user_id = ? AND market_id = ? AND claimed = ?", userID, marketID, false).
		Count(&unclaimed).Error; err != nil {
		return fmt.Errorf("failed to count unclaimed investments: %w", err)
	}
	if unclaimed > 0 {
		return nil
	}

	position.Status = models.PositionStatusClosed
	position.UpdatedAt = time.Now()
	return tx.Save(&position).Error
}

// Withdraw pays out withdrawable balance through the token escrow
func (s *SettlementService) Withdraw(ctx context.Context, user *models.User, amount decimal.Decimal) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.User
		if err := tx.First(&current, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if current.WithdrawableBalance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("withdrawable_balance", gorm.Expr("withdrawable_balance - ?", amount)).Error; err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}

		return appendEvent(tx, models.EventBalanceWithdrawn, nil, &user.ID, &amount, nil)
	})
	if err != nil {
		return "", err
	}

	sig, err := s.escrow.Release(ctx, user.WalletAddress, amount)
	if err != nil {
		// Balance was already debited; put it back so the user can retry
		log.Printf("[Settlement] escrow release failed for user %d, re-crediting %s: %v", user.ID, amount.String(), err)
		if creditErr := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
			Update("withdrawable_balance", gorm.Expr("withdrawable_balance + ?", amount)).Error; creditErr != nil {
			log.Printf("[Settlement] failed to re-credit user %d: %v", user.ID, creditErr)
		}
		return "", fmt.Errorf("failed to release funds: %w", err)
	}

	return sig, nil
}
