package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Collateral position status constants
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "OPEN"
	PositionStatusLiquidated PositionStatus = "LIQUIDATED"
	PositionStatusClosed     PositionStatus = "CLOSED"
)

// Loan status constants
type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "ACTIVE"
	LoanStatusRepaid     LoanStatus = "REPAID"
	LoanStatusWrittenOff LoanStatus = "WRITTEN_OFF"
	LoanStatusDefaulted  LoanStatus = "DEFAULTED"
)

// CollateralPosition tracks how much of a user's stake in a parent market is
// pledged to child predictions. One row per (user, parent market).
type CollateralPosition struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uint            `gorm:"not null;uniqueIndex:idx_user_parent" json:"user_id"`
	ParentMarketID uint            `gorm:"not null;uniqueIndex:idx_user_parent" json:"parent_market_id"`
	Stake          decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"stake"` // book value of the parent stake at last extension
	TotalUsed      decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"total_used"`
	Status         PositionStatus  `gorm:"size:20;not null;default:OPEN;index" json:"status"`
	LiquidatedAt   *time.Time      `json:"liquidated_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for CollateralPosition model
func (CollateralPosition) TableName() string {
	return "collateral_positions"
}

// Loan is issued against a parent stake to fund a child investment
type Loan struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	ParentMarketID uint            `gorm:"not null;index" json:"parent_market_id"`
	ChildMarketID  uint            `gorm:"not null;index" json:"child_market_id"`
	InvestmentID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"investment_id"`
	Principal      decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"principal"`
	Obligation     decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"obligation"` // principal plus the flat origination fee
	RepaidAmount   decimal.Decimal `gorm:"type:decimal(30,8);not null;default:0" json:"repaid_amount"`
	Status         LoanStatus      `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	IssuedAt       time.Time       `gorm:"not null;index" json:"issued_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
}

// TableName specifies the table name for Loan model
func (Loan) TableName() string {
	return "loans"
}

// ---- Request/Response DTOs ----

// ExtendChainRequest is the request body for pledging parent collateral into a child market
type ExtendChainRequest struct {
	ParentMarketID   uint            `json:"parent_market_id" binding:"required"`
	ChildMarketID    uint            `json:"child_market_id" binding:"required"`
	CollateralAmount decimal.Decimal `json:"collateral_amount" binding:"required"`
	Side             bool            `json:"side"`
	MinExpectedVotes decimal.Decimal `json:"min_expected_votes"`
}

// CollateralPositionResponse is the API view of one chain link
type CollateralPositionResponse struct {
	UserID              uint             `json:"user_id"`
	ParentMarketID      uint             `json:"parent_market_id"`
	Stake               decimal.Decimal  `json:"stake"`
	TotalUsed           decimal.Decimal  `json:"total_used"`
	AvailableCollateral decimal.Decimal  `json:"available_collateral"`
	PositionValue       decimal.Decimal  `json:"position_value"`
	HealthRatio         *decimal.Decimal `json:"health_ratio,omitempty"` // nil when no loans outstanding
	Liquidatable        bool             `json:"liquidatable"`
	Status              PositionStatus   `json:"status"`
	ChildMarketIDs      []uint           `json:"child_market_ids"`
}
