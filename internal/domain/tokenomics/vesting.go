package tokenomics

import (
	"fmt"
	"time"
)

// Schedule pins a deployment's vesting regime: the immediate unlock share
// and the cliff/linear durations. Deployments disagree on these numbers, so
// they are configuration, never constants.
type Schedule struct {
	ImmediateBps    int64
	CliffDuration   time.Duration
	VestingDuration time.Duration
}

// Unlock is the vesting state of one purchase at a point in time.
type Unlock struct {
	UnlockedTokens int64
	ProgressBps    int64
	InCliff        bool
}

func NewSchedule(immediateBps int64, cliff, vesting time.Duration) (Schedule, error) {
	if immediateBps < 0 || immediateBps > BpsDenominator {
		return Schedule{}, fmt.Errorf("immediate share %d bps out of range", immediateBps)
	}
	if cliff < 0 || vesting < 0 {
		return Schedule{}, fmt.Errorf("negative vesting duration")
	}
	return Schedule{
		ImmediateBps:    immediateBps,
		CliffDuration:   cliff,
		VestingDuration: vesting,
	}, nil
}

// Split divides a purchase into the immediately unlocked part and the part
// subject to vesting. The two always sum to totalTokens exactly: the vested
// share is the remainder, not an independent percentage.
func (s Schedule) Split(totalTokens int64) (immediate, vested int64, err error) {
	if totalTokens < 0 {
		return 0, 0, ErrInvalidAmount
	}
	immediate, err = ApplyBps(totalTokens, s.ImmediateBps)
	if err != nil {
		return 0, 0, err
	}
	return immediate, totalTokens - immediate, nil
}

// Unlocked computes how many tokens are unlocked at `now` for a purchase
// settled at `purchaseTime`. The curve: immediate share at once, nothing
// more through the cliff (the cliff boundary itself still counts as inside
// the cliff), then linear release over the vesting window. Non-decreasing
// in `now`; a purchaseTime recorded in the future yields the immediate
// share only.
func (s Schedule) Unlocked(purchaseTime, now time.Time, totalTokens int64) (Unlock, error) {
	immediate, vested, err := s.Split(totalTokens)
	if err != nil {
		return Unlock{}, err
	}

	elapsed := now.Sub(purchaseTime)
	if elapsed <= 0 {
		return Unlock{UnlockedTokens: immediate, ProgressBps: 0, InCliff: s.CliffDuration > 0}, nil
	}

	total := s.CliffDuration + s.VestingDuration
	progress := int64(BpsDenominator)
	if total > 0 {
		progress, err = mulDiv(int64(elapsed), BpsDenominator, int64(total))
		if err != nil {
			return Unlock{}, err
		}
		if progress > BpsDenominator {
			progress = BpsDenominator
		}
	}

	if elapsed <= s.CliffDuration && s.CliffDuration > 0 {
		return Unlock{UnlockedTokens: immediate, ProgressBps: progress, InCliff: true}, nil
	}

	vestingElapsed := elapsed - s.CliffDuration
	var fromVesting int64
	if vestingElapsed >= s.VestingDuration {
		fromVesting = vested
	} else {
		fromVesting, err = mulDiv(vested, int64(vestingElapsed), int64(s.VestingDuration))
		if err != nil {
			return Unlock{}, err
		}
	}

	return Unlock{
		UnlockedTokens: immediate + fromVesting,
		ProgressBps:    progress,
		InCliff:        false,
	}, nil
}

// Claimable is the unlocked amount not yet disbursed, floored at zero.
func (s Schedule) Claimable(purchaseTime, now time.Time, totalTokens, claimedTokens int64) (int64, error) {
	unlock, err := s.Unlocked(purchaseTime, now, totalTokens)
	if err != nil {
		return 0, err
	}
	claimable := unlock.UnlockedTokens - claimedTokens
	if claimable < 0 {
		claimable = 0
	}
	return claimable, nil
}
