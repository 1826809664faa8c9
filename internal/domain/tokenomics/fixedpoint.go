// Package tokenomics holds the presale settlement arithmetic: bonus tiers,
// the cliff-plus-linear vesting curve, and the fixed-point helpers both are
// built on. Everything here is pure and integer-only. Off-chain engines and
// the on-chain settlement contract must agree on these numbers to the unit,
// so no float enters any computation.
//
// Units:
//   - USD amounts are cents.
//   - Token amounts are micro-tokens (1e-6 token).
//   - Token price is nano-USD per token (1e-9 USD).
//   - Percentages are basis points (10000 = 100%).
package tokenomics

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// MicroTokensPerToken is the fixed-point scale for token amounts.
	MicroTokensPerToken = 1_000_000

	// NanoUSDPerCent converts USD cents into nano-USD.
	NanoUSDPerCent = 10_000_000

	// BpsDenominator is the basis-points scale.
	BpsDenominator = 10_000
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOverflow      = errors.New("amount overflows int64")
)

// mulDiv computes a*b/den with an arbitrary-precision intermediate, so the
// product never wraps before the division. Truncates toward zero, which is
// the rounding the settlement contract uses.
func mulDiv(a, b, den int64) (int64, error) {
	if den == 0 {
		return 0, fmt.Errorf("mulDiv: zero denominator")
	}

	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(out, big.NewInt(den))
	if !out.IsInt64() {
		return 0, ErrOverflow
	}
	return out.Int64(), nil
}

// BaseTokens converts a USD amount into micro-tokens at the given price.
func BaseTokens(amountCents, priceNanoUSD int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}
	if priceNanoUSD <= 0 {
		return 0, fmt.Errorf("invalid token price: %d", priceNanoUSD)
	}

	nanoUSD, err := mulDiv(amountCents, NanoUSDPerCent, 1)
	if err != nil {
		return 0, err
	}
	return mulDiv(nanoUSD, MicroTokensPerToken, priceNanoUSD)
}

// ApplyBps returns amount*bps/10000.
func ApplyBps(amount, bps int64) (int64, error) {
	if amount < 0 || bps < 0 {
		return 0, ErrInvalidAmount
	}
	return mulDiv(amount, bps, BpsDenominator)
}
