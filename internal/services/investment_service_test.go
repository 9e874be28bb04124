package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"prediction-chain/internal/models"
)

func TestInvestConvertsAtPreTradePrice(t *testing.T) {
	db := setupTestDB(t)
	escrow := &stubEscrow{}
	service := NewInvestmentService(db, escrow)
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "50", "50")

	inv, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("50"),
		Side:   true,
	})
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}

	// Balanced pools quote 0.5; the quote is taken before the pool shifts
	decimalEq(t, inv.EntryPrice, decimal.RequireFromString("0.5"), "entry price")
	decimalEq(t, inv.ExpectedVotes, decimal.RequireFromString("100"), "expected votes")

	var updated models.Market
	if err := db.First(&updated, "id = ?", market.ID).Error; err != nil {
		t.Fatalf("failed to reload market: %v", err)
	}
	decimalEq(t, updated.YesLiquidity, decimal.RequireFromString("100"), "yes pool after invest")
	decimalEq(t, updated.NoLiquidity, decimal.RequireFromString("50"), "no pool after invest")

	var reloaded models.User
	if err := db.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	decimalEq(t, reloaded.TotalInvested, decimal.RequireFromString("50"), "total invested")

	if len(escrow.deposits) != 1 {
		t.Errorf("expected one escrow deposit, got %d", len(escrow.deposits))
	}
}

func TestInvestSlippageGuard(t *testing.T) {
	db := setupTestDB(t)
	escrow := &stubEscrow{}
	service := NewInvestmentService(db, escrow)
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "50", "50")

	// 50 at price 0.5 yields exactly 100 votes; demanding more must fail
	_, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
		Amount:           decimal.RequireFromString("50"),
		Side:             true,
		MinExpectedVotes: decimal.RequireFromString("101"),
	})
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Errorf("expected ErrSlippageExceeded, got %v", err)
	}

	// Failed trades must not move the pools
	var unchanged models.Market
	if err := db.First(&unchanged, "id = ?", market.ID).Error; err != nil {
		t.Fatalf("failed to reload market: %v", err)
	}
	decimalEq(t, unchanged.YesLiquidity, decimal.RequireFromString("50"), "yes pool after rejected trade")

	// The pulled stake goes back to the wallet on rejection
	if len(escrow.deposits) != 1 || len(escrow.releases) != 1 {
		t.Fatalf("expected one deposit and one release, got %d/%d", len(escrow.deposits), len(escrow.releases))
	}
	decimalEq(t, escrow.releases[0], decimal.RequireFromString("50"), "refunded stake")
}

func TestInvestRefundsOnClosedMarket(t *testing.T) {
	db := setupTestDB(t)
	escrow := &stubEscrow{}
	service := NewInvestmentService(db, escrow)
	marketService := NewMarketService(db, &stubEscrow{}, testProtocol())
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "50", "50")

	makeResolvable(t, db, market.ID)
	if _, err := marketService.ResolveMarket(context.Background(), market.ID, true, creator); err != nil {
		t.Fatalf("ResolveMarket failed: %v", err)
	}

	_, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("25"),
		Side:   true,
	})
	if !errors.Is(err, ErrMarketClosed) {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
	if len(escrow.releases) != 1 || !escrow.releases[0].Equal(decimal.RequireFromString("25")) {
		t.Errorf("expected the stake to be released back, got %v", escrow.releases)
	}
}

func TestInvestRejectsClosedMarket(t *testing.T) {
	db := setupTestDB(t)
	service := NewInvestmentService(db, &stubEscrow{})
	marketService := NewMarketService(db, &stubEscrow{}, testProtocol())
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "50", "50")

	makeResolvable(t, db, market.ID)
	if _, err := marketService.ResolveMarket(context.Background(), market.ID, true, creator); err != nil {
		t.Fatalf("ResolveMarket failed: %v", err)
	}

	_, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
		Amount: decimal.RequireFromString("10"),
		Side:   true,
	})
	if !errors.Is(err, ErrMarketClosed) {
		t.Errorf("expected ErrMarketClosed, got %v", err)
	}
}

func TestInvestRejectsZeroAmount(t *testing.T) {
	db := setupTestDB(t)
	service := NewInvestmentService(db, &stubEscrow{})
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "50", "50")

	_, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
		Amount: decimal.Zero,
		Side:   true,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGetUserInvestmentTotals(t *testing.T) {
	db := setupTestDB(t)
	service := NewInvestmentService(db, &stubEscrow{})
	creator := createTestUser(t, db, "creator-wallet")
	user := createTestUser(t, db, "trader-wallet")
	market := createTestMarket(t, db, creator.ID, "500", "500")

	for _, stake := range []struct {
		amount string
		side   bool
	}{
		{"30", true},
		{"20", true},
		{"10", false},
	} {
		if _, err := service.Invest(context.Background(), user, market.ID, &models.InvestRequest{
			Amount: decimal.RequireFromString(stake.amount),
			Side:   stake.side,
		}); err != nil {
			t.Fatalf("Invest failed: %v", err)
		}
	}

	totals, err := service.GetUserInvestmentTotals(context.Background(), user.ID, market.ID)
	if err != nil {
		t.Fatalf("GetUserInvestmentTotals failed: %v", err)
	}
	decimalEq(t, totals.TotalAmount, decimal.RequireFromString("60"), "total amount")
	decimalEq(t, totals.YesAmount, decimal.RequireFromString("50"), "yes amount")
	decimalEq(t, totals.NoAmount, decimal.RequireFromString("10"), "no amount")
}
