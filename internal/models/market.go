package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market represents a binary YES/NO prediction market with AMM-style liquidity pools
type Market struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Title          string          `gorm:"size:500;not null" json:"title"`
	Category       string          `gorm:"size:50;not null;index" json:"category"` // Politics, Sports, Crypto, Solana
	MetadataCID    string          `gorm:"size:255" json:"metadata_cid"`           // IPFS content id for the long description
	CreatedBy      uint            `gorm:"not null;index" json:"created_by"`
	Creator        *User           `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	ResolutionTime time.Time       `gorm:"not null" json:"resolution_time"`
	YesLiquidity   decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"yes_liquidity"`
	NoLiquidity    decimal.Decimal `gorm:"type:decimal(30,8);not null" json:"no_liquidity"`
	Resolved       bool            `gorm:"not null;default:false;index" json:"resolved"`
	Outcome        *bool           `json:"outcome,omitempty"` // set once resolved; true = YES
	Active         bool            `gorm:"not null;default:true;index" json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// TotalLiquidity returns the combined YES+NO pool balance
func (m *Market) TotalLiquidity() decimal.Decimal {
	return m.YesLiquidity.Add(m.NoLiquidity)
}

// ---- Request/Response DTOs ----

// CreateMarketRequest is the request body for creating a market
type CreateMarketRequest struct {
	Title            string          `json:"title" binding:"required"`
	Category         string          `json:"category" binding:"required"`
	MetadataCID      string          `json:"metadata_cid"`
	ResolutionTime   time.Time       `json:"resolution_time" binding:"required"`
	InitialLiquidity decimal.Decimal `json:"initial_liquidity" binding:"required"`
}

// ResolveMarketRequest is the request body for resolving a market
type ResolveMarketRequest struct {
	Outcome bool `json:"outcome"`
}

// MarketResponse is the API response for a market, including spot prices
type MarketResponse struct {
	ID             uint            `json:"id"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	MetadataCID    string          `json:"metadata_cid"`
	CreatedBy      uint            `json:"created_by"`
	ResolutionTime time.Time       `json:"resolution_time"`
	YesLiquidity   decimal.Decimal `json:"yes_liquidity"`
	NoLiquidity    decimal.Decimal `json:"no_liquidity"`
	YesPrice       decimal.Decimal `json:"yes_price"`
	NoPrice        decimal.Decimal `json:"no_price"`
	Resolved       bool            `json:"resolved"`
	Outcome        *bool           `json:"outcome,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}
