package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a wallet-identified participant
type User struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	WalletAddress       string          `gorm:"uniqueIndex;not null" json:"wallet_address"`
	Nickname            string          `gorm:"uniqueIndex;not null" json:"nickname"`
	TotalInvested       decimal.Decimal `gorm:"type:decimal(30,8);default:0" json:"total_invested"`
	TotalClaimed        decimal.Decimal `gorm:"type:decimal(30,8);default:0" json:"total_claimed"`
	WithdrawableBalance decimal.Decimal `gorm:"type:decimal(30,8);default:0" json:"withdrawable_balance"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// UserChainData is the aggregate chain view for one user
type UserChainData struct {
	UserID              uint            `json:"user_id"`
	WalletAddress       string          `json:"wallet_address"`
	PredictionIDs       []uint          `json:"prediction_ids"`
	TotalInvested       decimal.Decimal `json:"total_invested"`
	TotalClaimed        decimal.Decimal `json:"total_claimed"`
	WithdrawableBalance decimal.Decimal `json:"withdrawable_balance"`
}

// WalletLoginRequest is the request body for wallet-based login
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
}
