package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"prediction-chain/internal/models"
	"prediction-chain/internal/repository"
)

func newChainFixture(t *testing.T) (*CollateralService, *InvestmentService, *repository.ChainRepository) {
	t.Helper()

	db := setupTestDB(t)
	repo := repository.NewChainRepository(db)
	collateral := NewCollateralService(db, repo, testProtocol())
	investments := NewInvestmentService(db, &stubEscrow{})
	return collateral, investments, repo
}

func TestExtendChainPropagation(t *testing.T) {
	collateral, investments, _ := newChainFixture(t)
	db := collateral.db
	ctx := context.Background()

	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "chain-wallet")
	marketA := createTestMarket(t, db, creator.ID, "1000", "1000")
	marketB := createTestMarket(t, db, creator.ID, "50", "50")
	marketC := createTestMarket(t, db, creator.ID, "50", "50")

	// Cash stake of 100 in A allows borrowing 60, which staked in B allows 36
	if _, err := investments.Invest(ctx, user, marketA.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("100"),
		Side:   true,
	}); err != nil {
		t.Fatalf("Invest failed: %v", err)
	}

	invB, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketB.ID,
		CollateralAmount: decimal.RequireFromString("60"),
		Side:             true,
	})
	if err != nil {
		t.Fatalf("ExtendChain A->B failed: %v", err)
	}
	decimalEq(t, invB.Amount, decimal.RequireFromString("60"), "child stake in B")
	if !invB.IsCollateralBased || invB.ParentMarketID == nil || *invB.ParentMarketID != marketA.ID {
		t.Errorf("expected collateral-based investment with parent %d, got %+v", marketA.ID, invB)
	}

	posA, err := collateral.GetPosition(ctx, user.ID, marketA.ID)
	if err != nil {
		t.Fatalf("GetPosition A failed: %v", err)
	}
	decimalEq(t, posA.Stake, decimal.RequireFromString("100"), "stake on A")
	decimalEq(t, posA.TotalUsed, decimal.RequireFromString("60"), "used on A")
	decimalEq(t, posA.AvailableCollateral, decimal.Zero, "available on A")

	// A is fully drawn
	_, err = collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketC.ID,
		CollateralAmount: decimal.RequireFromString("1"),
		Side:             true,
	})
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Errorf("expected ErrInsufficientCollateral, got %v", err)
	}

	// The borrowed stake in B supports the next hop: 0.6 * 60 = 36
	invC, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketB.ID,
		ChildMarketID:    marketC.ID,
		CollateralAmount: decimal.RequireFromString("36"),
		Side:             true,
	})
	if err != nil {
		t.Fatalf("ExtendChain B->C failed: %v", err)
	}
	decimalEq(t, invC.Amount, decimal.RequireFromString("36"), "child stake in C")

	posB, err := collateral.GetPosition(ctx, user.ID, marketB.ID)
	if err != nil {
		t.Fatalf("GetPosition B failed: %v", err)
	}
	decimalEq(t, posB.Stake, decimal.RequireFromString("60"), "stake on B")
	decimalEq(t, posB.AvailableCollateral, decimal.Zero, "available on B")

	// Each hop carries the flat origination fee
	var loan models.Loan
	if err := db.Where("child_market_id = ?", marketB.ID).First(&loan).Error; err != nil {
		t.Fatalf("failed to load loan A->B: %v", err)
	}
	decimalEq(t, loan.Principal, decimal.RequireFromString("60"), "loan principal")
	decimalEq(t, loan.Obligation, decimal.RequireFromString("63"), "loan obligation")
}

func TestExtendChainRequiresParentStake(t *testing.T) {
	collateral, _, _ := newChainFixture(t)
	db := collateral.db
	ctx := context.Background()

	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "chain-wallet")
	marketA := createTestMarket(t, db, creator.ID, "50", "50")
	marketB := createTestMarket(t, db, creator.ID, "50", "50")

	_, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketB.ID,
		CollateralAmount: decimal.RequireFromString("10"),
		Side:             true,
	})
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestExtendChainRejectsCycles(t *testing.T) {
	collateral, investments, _ := newChainFixture(t)
	db := collateral.db
	ctx := context.Background()

	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "chain-wallet")
	marketA := createTestMarket(t, db, creator.ID, "1000", "1000")
	marketB := createTestMarket(t, db, creator.ID, "50", "50")

	if _, err := investments.Invest(ctx, user, marketA.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("100"),
		Side:   true,
	}); err != nil {
		t.Fatalf("Invest failed: %v", err)
	}

	// Self-link
	_, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketA.ID,
		CollateralAmount: decimal.RequireFromString("10"),
		Side:             true,
	})
	if !errors.Is(err, ErrCyclicChain) {
		t.Errorf("expected ErrCyclicChain for self-link, got %v", err)
	}

	if _, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketB.ID,
		CollateralAmount: decimal.RequireFromString("50"),
		Side:             true,
	}); err != nil {
		t.Fatalf("ExtendChain A->B failed: %v", err)
	}

	// B's ancestor A cannot become B's child
	_, err = collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketB.ID,
		ChildMarketID:    marketA.ID,
		CollateralAmount: decimal.RequireFromString("10"),
		Side:             true,
	})
	if !errors.Is(err, ErrCyclicChain) {
		t.Errorf("expected ErrCyclicChain for back-edge, got %v", err)
	}
}

func TestLiquidationLifecycle(t *testing.T) {
	collateral, investments, _ := newChainFixture(t)
	db := collateral.db
	ctx := context.Background()

	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "chain-wallet")
	whale := createTestUser(t, db, "whale-wallet")
	marketA := createTestMarket(t, db, creator.ID, "1000", "1000")
	marketB := createTestMarket(t, db, creator.ID, "50", "50")

	if _, err := investments.Invest(ctx, user, marketA.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("100"),
		Side:   true,
	}); err != nil {
		t.Fatalf("Invest failed: %v", err)
	}

	if _, err := collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketB.ID,
		CollateralAmount: decimal.RequireFromString("60"),
		Side:             true,
	}); err != nil {
		t.Fatalf("ExtendChain failed: %v", err)
	}

	// Healthy position cannot be liquidated
	liquidatable, err := collateral.IsLiquidatable(ctx, user.ID, marketA.ID)
	if err != nil {
		t.Fatalf("IsLiquidatable failed: %v", err)
	}
	if liquidatable {
		t.Fatalf("expected healthy position")
	}
	if err := collateral.Liquidate(ctx, user.ID, marketA.ID, 0); !errors.Is(err, ErrNotLiquidatable) {
		t.Errorf("expected ErrNotLiquidatable, got %v", err)
	}

	// A large same-side trade crushes the mark price of the stake
	if _, err := investments.Invest(ctx, whale, marketA.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("2000"),
		Side:   true,
	}); err != nil {
		t.Fatalf("whale invest failed: %v", err)
	}

	liquidatable, err = collateral.IsLiquidatable(ctx, user.ID, marketA.ID)
	if err != nil {
		t.Fatalf("IsLiquidatable failed: %v", err)
	}
	if !liquidatable {
		t.Fatalf("expected position to be underwater")
	}

	hr, defined, err := collateral.HealthRatio(ctx, user.ID, marketA.ID)
	if err != nil {
		t.Fatalf("HealthRatio failed: %v", err)
	}
	if !defined || hr.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		t.Errorf("expected defined health ratio below 1, got %s (defined=%v)", hr.String(), defined)
	}

	seizedValue, err := collateral.PositionValue(ctx, user.ID, marketA.ID)
	if err != nil {
		t.Fatalf("PositionValue failed: %v", err)
	}

	if err := collateral.Liquidate(ctx, user.ID, marketA.ID, 0); err != nil {
		t.Fatalf("Liquidate failed: %v", err)
	}

	// Idempotent for racing liquidators
	if err := collateral.Liquidate(ctx, user.ID, marketA.ID, 0); err != nil {
		t.Errorf("expected repeat liquidation to be a no-op, got %v", err)
	}

	var position models.CollateralPosition
	if err := db.Where("user_id = ? AND parent_market_id = ?", user.ID, marketA.ID).First(&position).Error; err != nil {
		t.Fatalf("failed to load position: %v", err)
	}
	if position.Status != models.PositionStatusLiquidated {
		t.Errorf("expected LIQUIDATED position, got %s", position.Status)
	}

	// The seized value did not cover the obligation, so the loan defaulted
	var loan models.Loan
	if err := db.Where("user_id = ? AND parent_market_id = ?", user.ID, marketA.ID).First(&loan).Error; err != nil {
		t.Fatalf("failed to load loan: %v", err)
	}
	if loan.Status != models.LoanStatusDefaulted {
		t.Errorf("expected DEFAULTED loan, got %s", loan.Status)
	}
	decimalEq(t, loan.RepaidAmount, seizedValue, "recovered amount")

	// Seized parent stake is consumed
	var unclaimed int64
	if err := db.Model(&models.Investment{}).
		Where("user_id = ? AND market_id = ? AND claimed = ?", user.ID, marketA.ID, false).
		Count(&unclaimed).Error; err != nil {
		t.Fatalf("failed to count investments: %v", err)
	}
	if unclaimed != 0 {
		t.Errorf("expected all parent investments seized, %d still unclaimed", unclaimed)
	}

	// A liquidated position never lends again, even against fresh stake
	if _, err := investments.Invest(ctx, user, marketA.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("10"),
		Side:   true,
	}); err != nil {
		t.Fatalf("re-invest failed: %v", err)
	}
	marketC := createTestMarket(t, db, creator.ID, "50", "50")
	_, err = collateral.ExtendChain(ctx, user, &models.ExtendChainRequest{
		ParentMarketID:   marketA.ID,
		ChildMarketID:    marketC.ID,
		CollateralAmount: decimal.RequireFromString("5"),
		Side:             true,
	})
	if !errors.Is(err, ErrPositionLiquidated) {
		t.Errorf("expected ErrPositionLiquidated, got %v", err)
	}
}

func TestLiquidateMissingPosition(t *testing.T) {
	collateral, _, _ := newChainFixture(t)

	err := collateral.Liquidate(context.Background(), 42, 42, 0)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}
