package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prediction-chain/internal/config"
	"prediction-chain/internal/database"
	"prediction-chain/internal/models"
)

// setupTestDB opens a per-test in-memory database. The database is named
// after the test so parallel tests never share state.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func testProtocol() config.ProtocolConfig {
	return config.ProtocolConfig{
		CollateralRatio:  decimal.RequireFromString("0.6"),
		LoanFeeRate:      decimal.RequireFromString("0.05"),
		MinimumLiquidity: decimal.RequireFromString("10"),
		OracleWallet:     "oracle-wallet",
	}
}

// stubEscrow records token movements instead of touching a chain
type stubEscrow struct {
	deposits    []decimal.Decimal
	releases    []decimal.Decimal
	failRelease bool
}

func (e *stubEscrow) Deposit(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	e.deposits = append(e.deposits, amount)
	return "stub-deposit", nil
}

func (e *stubEscrow) Release(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	if e.failRelease {
		return "", errors.New("escrow unavailable")
	}
	e.releases = append(e.releases, amount)
	return "stub-release", nil
}

func createTestUser(t *testing.T, db *gorm.DB, wallet string) *models.User {
	t.Helper()

	user := &models.User{
		WalletAddress:       wallet,
		Nickname:            "trader_" + wallet,
		TotalInvested:       decimal.Zero,
		TotalClaimed:        decimal.Zero,
		WithdrawableBalance: decimal.Zero,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// createTestMarket seeds a market with explicit pools, bypassing the creation
// flow so tests control the pricing state exactly
func createTestMarket(t *testing.T, db *gorm.DB, createdBy uint, yes, no string) *models.Market {
	t.Helper()

	market := &models.Market{
		Title:          "test market",
		Category:       "Crypto",
		CreatedBy:      createdBy,
		ResolutionTime: time.Now().Add(24 * time.Hour),
		YesLiquidity:   decimal.RequireFromString(yes),
		NoLiquidity:    decimal.RequireFromString(no),
		Active:         true,
	}
	if err := db.Create(market).Error; err != nil {
		t.Fatalf("failed to create market: %v", err)
	}
	return market
}

// makeResolvable rewinds a market's resolution time into the past
func makeResolvable(t *testing.T, db *gorm.DB, marketID uint) {
	t.Helper()

	if err := db.Model(&models.Market{}).Where("id = ?", marketID).
		Update("resolution_time", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("failed to rewind resolution time: %v", err)
	}
}

func decimalEq(t *testing.T, got, want decimal.Decimal, label string) {
	t.Helper()

	if !got.Equal(want) {
		t.Errorf("%s: expected %s, got %s", label, want.String(), got.String())
	}
}
