// Package pricing holds the pure economic math of the prediction chain: pool
// pricing, vote conversion, payout shares, loan obligations and health ratios.
// Everything here is deterministic decimal arithmetic with no storage access.
package pricing

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Prices returns (yesPrice, noPrice) from the pool balances.
// yesPrice = noLiquidity / (yes + no), so the scarce side is the expensive one.
// yesPrice + noPrice == 1 whenever the pools are non-empty.
func Prices(yesLiquidity, noLiquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	total := yesLiquidity.Add(noLiquidity)
	if total.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	yesPrice := noLiquidity.Div(total)
	return yesPrice, one.Sub(yesPrice)
}

// SidePrice returns the spot price for one side (true = YES)
func SidePrice(yesLiquidity, noLiquidity decimal.Decimal, side bool) decimal.Decimal {
	yesPrice, noPrice := Prices(yesLiquidity, noLiquidity)
	if side {
		return yesPrice
	}
	return noPrice
}

// ExpectedVotes converts a cash stake into synthetic outcome shares at the given price
func ExpectedVotes(amount, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return amount.Div(price)
}

// WinningPayout is the standard binary-AMM payout for a winning stake:
// the principal back plus a proportional share of the losing pool.
func WinningPayout(amount, winningPool, losingPool decimal.Decimal) decimal.Decimal {
	if winningPool.IsZero() {
		return amount
	}
	return amount.Add(amount.Div(winningPool).Mul(losingPool))
}

// LoanObligation is the gross repayment due on a loan. Accrual policy is a flat
// per-hop origination fee; feeRate is the fraction, e.g. 0.05.
func LoanObligation(principal, feeRate decimal.Decimal) decimal.Decimal {
	return principal.Mul(one.Add(feeRate))
}

// AvailableCollateral is the unpledged borrowing capacity of a parent stake:
// r*stake - totalUsed. May be negative if the stake shrank after issuance.
func AvailableCollateral(stake, totalUsed, collateralRatio decimal.Decimal) decimal.Decimal {
	return collateralRatio.Mul(stake).Sub(totalUsed)
}

// HealthRatio returns positionValue / totalObligation and whether it is defined.
// With no outstanding obligation the ratio is undefined (treated as +infinity).
func HealthRatio(positionValue, totalObligation decimal.Decimal) (decimal.Decimal, bool) {
	if totalObligation.IsZero() {
		return decimal.Zero, false
	}
	return positionValue.Div(totalObligation), true
}

// Liquidatable reports whether a position with the given mark-to-market value
// and aggregate obligation is below the HR < 1 threshold
func Liquidatable(positionValue, totalObligation decimal.Decimal) bool {
	hr, ok := HealthRatio(positionValue, totalObligation)
	if !ok {
		return false
	}
	return hr.LessThan(one)
}
