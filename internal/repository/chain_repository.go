package repository

import (
	"context"
	"errors"
	"fmt"

	"prediction-chain/internal/models"

	"gorm.io/gorm"
)

// ChainRepository bundles the read queries over collateral positions, loans and
// investments shared by the services, handlers and the liquidation keeper.
type ChainRepository struct {
	db *gorm.DB
}

// NewChainRepository creates a new chain repository
func NewChainRepository(db *gorm.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

// Position returns the collateral position for (user, parent market)
func (r *ChainRepository) Position(ctx context.Context, userID, parentMarketID uint) (*models.CollateralPosition, error) {
	var position models.CollateralPosition
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND parent_market_id = ?", userID, parentMarketID).
		First(&position).Error
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// OpenPositions returns open collateral positions, oldest first. Used by the
// liquidation keeper to scan for unhealthy chains.
func (r *ChainRepository) OpenPositions(ctx context.Context, limit int) ([]models.CollateralPosition, error) {
	var positions []models.CollateralPosition
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.PositionStatusOpen).
		Order("created_at ASC").
		Limit(limit).
		Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to get open positions: %w", err)
	}
	return positions, nil
}

// ActiveLoans returns the outstanding loans issued against one parent
// position, in issuance order (the FIFO repayment order).
func (r *ChainRepository) ActiveLoans(ctx context.Context, userID, parentMarketID uint) ([]models.Loan, error) {
	var loans []models.Loan
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND parent_market_id = ? AND status = ?", userID, parentMarketID, models.LoanStatusActive).
		Order("issued_at ASC").
		Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("failed to get active loans: %w", err)
	}
	return loans, nil
}

// LoanByInvestment returns the loan that funded a collateral-based investment
func (r *ChainRepository) LoanByInvestment(ctx context.Context, investmentID string) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Where("investment_id = ?", investmentID).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// UnclaimedInvestments returns a user's live (not yet claimed or seized)
// investments in a market
func (r *ChainRepository) UnclaimedInvestments(ctx context.Context, userID, marketID uint) ([]models.Investment, error) {
	var investments []models.Investment
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND market_id = ? AND claimed = ?", userID, marketID, false).
		Order("created_at ASC").
		Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("failed to get unclaimed investments: %w", err)
	}
	return investments, nil
}

// ParentMarketIDs returns the markets a user has pledged collateral against
func (r *ChainRepository) ParentMarketIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.CollateralPosition{}).
		Where("user_id = ?", userID).
		Order("parent_market_id ASC").
		Pluck("parent_market_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get parent market ids: %w", err)
	}
	return ids, nil
}

// ChildMarketIDs returns the child markets funded from one parent position
func (r *ChainRepository) ChildMarketIDs(ctx context.Context, userID, parentMarketID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND parent_market_id = ?", userID, parentMarketID).
		Order("issued_at ASC").
		Pluck("child_market_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get child market ids: %w", err)
	}
	return ids, nil
}

// InvestedMarketIDs returns every market the user holds any investment in
func (r *ChainRepository) InvestedMarketIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Investment{}).
		Distinct("market_id").
		Where("user_id = ?", userID).
		Order("market_id ASC").
		Pluck("market_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get invested market ids: %w", err)
	}
	return ids, nil
}

// AncestorMarketIDs walks the user's chain upwards from marketID, following
// the parent pointer of every collateral-based investment, and returns every
// market reachable that way including marketID itself. The walk is what keeps
// the chain a DAG: a child may not appear among its own ancestors.
func AncestorMarketIDs(tx *gorm.DB, userID, marketID uint) (map[uint]struct{}, error) {
	ancestors := map[uint]struct{}{marketID: {}}
	queue := []uint{marketID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var parents []uint
		err := tx.Model(&models.Investment{}).
			Where("user_id = ? AND market_id = ? AND is_collateral_based = ? AND parent_market_id IS NOT NULL", userID, current, true).
			Pluck("parent_market_id", &parents).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to walk chain ancestors: %w", err)
		}

		for _, parent := range parents {
			if _, seen := ancestors[parent]; seen {
				continue
			}
			ancestors[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}

	return ancestors, nil
}
