// Package payout computes what the winner of a staked session receives.
package payout

import (
	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the house share of the pot.
var DefaultFeeRate = decimal.RequireFromString("0.025")

var two = decimal.NewFromInt(2)

// Pot is the sum of both stakes.
func Pot(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(two)
}

// Fee is the house share withheld from the pot.
func Fee(stake, feeRate decimal.Decimal) decimal.Decimal {
	return Pot(stake).Mul(feeRate)
}

// Amount is the pot minus the fee: 2 * stake * (1 - feeRate).
func Amount(stake, feeRate decimal.Decimal) decimal.Decimal {
	return Pot(stake).Mul(decimal.NewFromInt(1).Sub(feeRate))
}
