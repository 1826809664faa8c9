package fraud

// Signal carries the behavioral inputs for one purchase attempt. Scoring is
// pure: collecting these values (and failing open when a source is down) is
// the service's job, not the scorer's.
type Signal struct {
	WalletAddress         string
	IP                    string
	UserAgent             string
	AmountCents           int64
	RecentPurchaseCount   int
	DistinctWalletsForIP  int
	SignalSourcesDegraded bool
}

// Thresholds bound each contribution. Every weight is an independent cap:
// the score is a sum, so one weak signal alone can never cross the reject
// line.
type Thresholds struct {
	RecentPurchaseLimit int
	WalletsPerIPLimit   int
	HighValueCents      int64
	RejectScore         int
	VerifyScore         int
}

const (
	weightRecentPurchases = 30
	weightWalletsPerIP    = 30
	weightHighValue       = 25
	weightMissingUA       = 15

	maxScore = 100
)

// Outcome is the policy verdict for a scored purchase attempt.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeVerify Outcome = "verify"
	OutcomeReject Outcome = "reject"
)

// Assessment is the scored, explainable result: the bounded score plus the
// reason tags that produced it.
type Assessment struct {
	Score   int
	Reasons []string
	Outcome Outcome
}

// Score evaluates a signal against the thresholds. Contributions are
// additive and individually capped; the total clamps at 100.
func Score(sig Signal, th Thresholds) Assessment {
	score := 0
	var reasons []string

	if th.RecentPurchaseLimit > 0 && sig.RecentPurchaseCount > th.RecentPurchaseLimit {
		score += weightRecentPurchases
		reasons = append(reasons, "recent_purchase_volume")
	}
	if th.WalletsPerIPLimit > 0 && sig.DistinctWalletsForIP > th.WalletsPerIPLimit {
		score += weightWalletsPerIP
		reasons = append(reasons, "wallets_per_ip")
	}
	if th.HighValueCents > 0 && sig.AmountCents > th.HighValueCents {
		score += weightHighValue
		reasons = append(reasons, "high_value")
	}
	if sig.UserAgent == "" {
		score += weightMissingUA
		reasons = append(reasons, "missing_user_agent")
	}
	// Fail-open: a degraded source is tagged for review but contributes
	// nothing to the score.
	if sig.SignalSourcesDegraded {
		reasons = append(reasons, "signal_sources_degraded")
	}

	if score > maxScore {
		score = maxScore
	}

	outcome := OutcomeAccept
	switch {
	case score > th.RejectScore:
		outcome = OutcomeReject
	case score > th.VerifyScore:
		outcome = OutcomeVerify
	}

	return Assessment{Score: score, Reasons: reasons, Outcome: outcome}
}
