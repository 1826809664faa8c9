package redis

import (
	"context"
	"testing"
	"time"
)

func TestSignalRepoCountsDistinctWallets(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewSignalRepo(client, time.Hour)
	ctx := context.Background()

	for _, wallet := range []string{"0xaa", "0xbb", "0xBB", "0xcc"} {
		if err := repo.RecordWallet(ctx, "203.0.113.9", wallet); err != nil {
			t.Fatalf("record wallet %s: %v", wallet, err)
		}
	}

	count, err := repo.DistinctWallets(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("distinct wallets: %v", err)
	}
	// Wallet addresses are case-normalized, so 0xbb and 0xBB are one wallet.
	if count != 3 {
		t.Fatalf("expected 3 distinct wallets, got %d", count)
	}

	other, err := repo.DistinctWallets(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("distinct wallets other ip: %v", err)
	}
	if other != 0 {
		t.Fatalf("expected 0 wallets for unseen ip, got %d", other)
	}
}

func TestSignalRepoWindowExpires(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewSignalRepo(client, time.Minute)
	ctx := context.Background()

	if err := repo.RecordWallet(ctx, "203.0.113.9", "0xaa"); err != nil {
		t.Fatalf("record wallet: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	count, err := repo.DistinctWallets(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("distinct wallets: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected signal to expire, got %d wallets", count)
	}
}
