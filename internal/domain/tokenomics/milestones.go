package tokenomics

import "time"

// Milestone is one display checkpoint of the unlock curve. The milestone
// list is for dashboards only; settlement reads Unlocked directly.
type Milestone struct {
	DayOffset      int
	At             time.Time
	UnlockedTokens int64
	PercentBps     int64
}

// Milestones returns the unlock checkpoints for a purchase in ascending
// order: day zero, the cliff end, quartile points of the vesting window,
// and the full-unlock day.
func (s Schedule) Milestones(purchaseTime time.Time, totalTokens int64) ([]Milestone, error) {
	offsets := []time.Duration{0}
	if s.CliffDuration > 0 {
		offsets = append(offsets, s.CliffDuration)
	}
	if s.VestingDuration > 0 {
		for _, q := range []int64{1, 2, 3} {
			offsets = append(offsets, s.CliffDuration+time.Duration(q)*s.VestingDuration/4)
		}
	}
	offsets = append(offsets, s.CliffDuration+s.VestingDuration)

	milestones := make([]Milestone, 0, len(offsets))
	seen := make(map[time.Duration]struct{}, len(offsets))
	for _, offset := range offsets {
		if _, dup := seen[offset]; dup {
			continue
		}
		seen[offset] = struct{}{}

		at := purchaseTime.Add(offset)
		// Sample just past the offset so the cliff-end checkpoint reports
		// the post-cliff amount despite the inclusive cliff boundary.
		unlock, err := s.Unlocked(purchaseTime, at.Add(time.Second), totalTokens)
		if err != nil {
			return nil, err
		}

		percent := int64(0)
		if totalTokens > 0 {
			percent, err = mulDiv(unlock.UnlockedTokens, BpsDenominator, totalTokens)
			if err != nil {
				return nil, err
			}
		}

		milestones = append(milestones, Milestone{
			DayOffset:      int(offset / (24 * time.Hour)),
			At:             at,
			UnlockedTokens: unlock.UnlockedTokens,
			PercentBps:     percent,
		})
	}

	return milestones, nil
}
