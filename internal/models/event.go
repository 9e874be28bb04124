package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event type constants, mirroring the contract ABI events the UI already consumes
type EventType string

const (
	EventPredictionCreated  EventType = "PredictionCreated"
	EventInvestmentMade     EventType = "InvestmentMade"
	EventChainExtended      EventType = "ChainExtended"
	EventPredictionResolved EventType = "PredictionResolved"
	EventPositionLiquidated EventType = "PositionLiquidated"
	EventWinningsClaimed    EventType = "WinningsClaimed"
	EventBalanceWithdrawn   EventType = "BalanceWithdrawn"
)

// LedgerEvent is one append-only domain event row. The UI polls these for live updates.
type LedgerEvent struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	Type      EventType        `gorm:"size:50;not null;index" json:"type"`
	MarketID  *uint            `gorm:"index" json:"market_id,omitempty"`
	UserID    *uint            `gorm:"index" json:"user_id,omitempty"`
	Amount    *decimal.Decimal `gorm:"type:decimal(30,8)" json:"amount,omitempty"`
	Payload   string           `gorm:"type:text" json:"payload,omitempty"` // JSON detail blob
	CreatedAt time.Time        `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for LedgerEvent model
func (LedgerEvent) TableName() string {
	return "ledger_events"
}
