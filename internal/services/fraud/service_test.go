package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScoreIsAdditiveAndBounded(t *testing.T) {
	th := Thresholds{
		RecentPurchaseLimit: 3,
		WalletsPerIPLimit:   3,
		HighValueCents:      1_000_000,
		RejectScore:         80,
		VerifyScore:         50,
	}

	clean := Score(Signal{
		WalletAddress:        "0xabc",
		UserAgent:            "Mozilla/5.0",
		AmountCents:          50_000,
		RecentPurchaseCount:  1,
		DistinctWalletsForIP: 1,
	}, th)
	if clean.Score != 0 || clean.Outcome != OutcomeAccept {
		t.Fatalf("clean signal: score=%d outcome=%s", clean.Score, clean.Outcome)
	}

	// One strong signal alone never reaches the reject line.
	single := Score(Signal{
		UserAgent:            "Mozilla/5.0",
		AmountCents:          50_000,
		RecentPurchaseCount:  100,
		DistinctWalletsForIP: 1,
	}, th)
	if single.Outcome == OutcomeReject {
		t.Fatalf("single signal must not reject, score=%d", single.Score)
	}

	all := Score(Signal{
		AmountCents:          2_000_000,
		RecentPurchaseCount:  100,
		DistinctWalletsForIP: 100,
	}, th)
	if all.Score != 100 {
		t.Fatalf("all signals: expected clamped 100, got %d", all.Score)
	}
	if all.Outcome != OutcomeReject {
		t.Fatalf("all signals: expected reject, got %s", all.Outcome)
	}
	if len(all.Reasons) != 4 {
		t.Fatalf("expected 4 reasons, got %v", all.Reasons)
	}
}

func TestScorePolicyBands(t *testing.T) {
	th := Thresholds{
		RecentPurchaseLimit: 3,
		WalletsPerIPLimit:   3,
		HighValueCents:      1_000_000,
		RejectScore:         80,
		VerifyScore:         50,
	}

	// 30 + 25 = 55: over the verify line, under reject.
	verify := Score(Signal{
		UserAgent:            "Mozilla/5.0",
		AmountCents:          2_000_000,
		RecentPurchaseCount:  10,
		DistinctWalletsForIP: 1,
	}, th)
	if verify.Outcome != OutcomeVerify {
		t.Fatalf("expected verify outcome, got %s (score %d)", verify.Outcome, verify.Score)
	}

	// 30 + 30 + 25 = 85: reject.
	reject := Score(Signal{
		UserAgent:            "Mozilla/5.0",
		AmountCents:          2_000_000,
		RecentPurchaseCount:  10,
		DistinctWalletsForIP: 10,
	}, th)
	if reject.Outcome != OutcomeReject {
		t.Fatalf("expected reject outcome, got %s (score %d)", reject.Outcome, reject.Score)
	}
}

type activityStub struct {
	count int
	err   error
}

func (s *activityStub) CountCompletedSince(context.Context, string, time.Time) (int, error) {
	return s.count, s.err
}

type ipSignalStub struct {
	wallets  int
	err      error
	recorded int
}

func (s *ipSignalStub) DistinctWallets(context.Context, string) (int, error) {
	return s.wallets, s.err
}

func (s *ipSignalStub) RecordWallet(context.Context, string, string) error {
	s.recorded++
	return nil
}

type suspiciousLogStub struct {
	entries int
}

func (s *suspiciousLogStub) Append(context.Context, string, string, int, []string, int64) error {
	s.entries++
	return nil
}

func TestAssessFailsOpenOnSignalSourceErrors(t *testing.T) {
	activity := &activityStub{err: errors.New("postgres down")}
	ipSignals := &ipSignalStub{err: errors.New("redis down")}
	suspicious := &suspiciousLogStub{}

	svc := NewService(activity, ipSignals, suspicious, Config{
		RecentPurchaseLimit: 3,
		WalletsPerIPLimit:   3,
		HighValueCents:      1_000_000,
	}, zap.NewNop())

	assessment := svc.Assess(context.Background(), Input{
		WalletAddress: "0xabc",
		IP:            "203.0.113.9",
		UserAgent:     "Mozilla/5.0",
		AmountCents:   50_000,
	})

	if assessment.Outcome != OutcomeAccept {
		t.Fatalf("degraded signals must not block a clean purchase, got %s (score %d)", assessment.Outcome, assessment.Score)
	}
	if assessment.Score != 0 {
		t.Fatalf("degraded sources must not contribute to the score, got %d", assessment.Score)
	}
	found := false
	for _, reason := range assessment.Reasons {
		if reason == "signal_sources_degraded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("degraded sources not tagged in reasons: %v", assessment.Reasons)
	}
	if suspicious.entries != 0 {
		t.Fatalf("no suspicious entry expected, got %d", suspicious.entries)
	}
}

func TestAssessRejectAppendsSuspiciousEntry(t *testing.T) {
	activity := &activityStub{count: 50}
	ipSignals := &ipSignalStub{wallets: 50}
	suspicious := &suspiciousLogStub{}

	svc := NewService(activity, ipSignals, suspicious, Config{
		RecentPurchaseLimit: 3,
		WalletsPerIPLimit:   3,
		HighValueCents:      1_000_000,
	}, zap.NewNop())

	assessment := svc.Assess(context.Background(), Input{
		WalletAddress: "0xabc",
		IP:            "203.0.113.9",
		AmountCents:   2_000_000,
	})

	if assessment.Outcome != OutcomeReject {
		t.Fatalf("expected reject, got %s (score %d)", assessment.Outcome, assessment.Score)
	}
	if suspicious.entries != 1 {
		t.Fatalf("expected 1 suspicious entry, got %d", suspicious.entries)
	}
}
