package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Investment is one immutable stake in a market. Only Claimed ever flips after creation.
type Investment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID          uint            `gorm:"not null;index" json:"market_id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"amount"`
	Side              bool            `gorm:"not null" json:"side"` // true = YES
	EntryPrice        decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"entry_price"`
	ExpectedVotes     decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"expected_votes"`
	Claimed           bool            `gorm:"not null;default:false" json:"claimed"`
	IsCollateralBased bool            `gorm:"not null;default:false;index" json:"is_collateral_based"`
	ParentMarketID    *uint           `gorm:"index" json:"parent_market_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ClaimedAt         *time.Time      `json:"claimed_at,omitempty"`
}

// TableName specifies the table name for Investment model
func (Investment) TableName() string {
	return "investments"
}

// ---- Request/Response DTOs ----

// InvestRequest is the request body for a direct investment
type InvestRequest struct {
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	Side             bool            `json:"side"`
	MinExpectedVotes decimal.Decimal `json:"min_expected_votes"`
}

// InvestmentTotals aggregates a user's stakes in one market
type InvestmentTotals struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	YesAmount   decimal.Decimal `json:"yes_amount"`
	NoAmount    decimal.Decimal `json:"no_amount"`
}

// ClaimResponse is the API response for a claim
type ClaimResponse struct {
	InvestmentID uuid.UUID       `json:"investment_id"`
	Payout       decimal.Decimal `json:"payout"`
	LoanRepaid   decimal.Decimal `json:"loan_repaid"`
	NetToUser    decimal.Decimal `json:"net_to_user"`
}
