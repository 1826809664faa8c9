package tokenomics

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidTierTable = errors.New("invalid bonus tier table")

// BonusTier maps a minimum purchase amount onto a bonus percentage.
// Amounts at or above MinCents (and below the next tier's MinCents)
// earn Bps extra tokens.
type BonusTier struct {
	MinCents int64 `yaml:"min_cents"`
	Bps      int64 `yaml:"bps"`
}

// BonusCalculator resolves a purchase amount to a bonus percentage and a
// full token quote. Two modes: tiered-by-amount (the table) and flat opt-in
// (a single percentage the buyer chooses explicitly). Both are deployment
// configuration, never hard-coded.
type BonusCalculator struct {
	tiers        []BonusTier
	flatBonusBps int64
	priceNanoUSD int64
}

// Quote is the settled token split for one purchase.
type Quote struct {
	BaseTokens  int64
	BonusBps    int64
	BonusTokens int64
	TotalTokens int64
}

func NewBonusCalculator(tiers []BonusTier, flatBonusBps, priceNanoUSD int64) (*BonusCalculator, error) {
	if priceNanoUSD <= 0 {
		return nil, fmt.Errorf("token price must be positive, got %d", priceNanoUSD)
	}
	if flatBonusBps < 0 || flatBonusBps > BpsDenominator {
		return nil, fmt.Errorf("%w: flat bonus %d bps out of range", ErrInvalidTierTable, flatBonusBps)
	}

	sorted := make([]BonusTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinCents < sorted[j].MinCents })

	for i, tier := range sorted {
		if tier.MinCents < 0 || tier.Bps < 0 || tier.Bps > BpsDenominator {
			return nil, fmt.Errorf("%w: tier %d out of range", ErrInvalidTierTable, i)
		}
		if i > 0 {
			if tier.MinCents == sorted[i-1].MinCents {
				return nil, fmt.Errorf("%w: duplicate tier threshold %d", ErrInvalidTierTable, tier.MinCents)
			}
			if tier.Bps < sorted[i-1].Bps {
				return nil, fmt.Errorf("%w: tier table is not monotonic at threshold %d", ErrInvalidTierTable, tier.MinCents)
			}
		}
	}

	return &BonusCalculator{
		tiers:        sorted,
		flatBonusBps: flatBonusBps,
		priceNanoUSD: priceNanoUSD,
	}, nil
}

// BonusBps resolves the bonus percentage for an amount. When the buyer opted
// into the flat bonus, the flat rate replaces the tier lookup entirely.
func (c *BonusCalculator) BonusBps(amountCents int64, flatOptIn bool) int64 {
	if flatOptIn {
		return c.flatBonusBps
	}

	var bps int64
	for _, tier := range c.tiers {
		if amountCents < tier.MinCents {
			break
		}
		bps = tier.Bps
	}
	return bps
}

// Quote computes the full token split for a purchase amount.
func (c *BonusCalculator) Quote(amountCents int64, flatOptIn bool) (Quote, error) {
	base, err := BaseTokens(amountCents, c.priceNanoUSD)
	if err != nil {
		return Quote{}, err
	}

	bps := c.BonusBps(amountCents, flatOptIn)
	bonus, err := ApplyBps(base, bps)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		BaseTokens:  base,
		BonusBps:    bps,
		BonusTokens: bonus,
		TotalTokens: base + bonus,
	}, nil
}
