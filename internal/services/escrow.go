package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// TokenEscrow moves the collateral token between user wallets and the protocol
// escrow. The on-chain implementation lives in internal/blockchain; tests use a
// stub. Errors from the escrow abort the surrounding ledger transaction.
type TokenEscrow interface {
	// Deposit pulls amount from the wallet into escrow and returns the tx signature
	Deposit(ctx context.Context, wallet string, amount decimal.Decimal) (string, error)
	// Release pays amount from escrow out to the wallet and returns the tx signature
	Release(ctx context.Context, wallet string, amount decimal.Decimal) (string, error)
}
