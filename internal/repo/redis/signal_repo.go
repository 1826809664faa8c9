package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const ipWalletsPrefix = "fraud:ipwallets:"

// SignalRepo keeps the fast fraud counters: the set of wallet addresses an
// IP has been seen purchasing with, bounded by a sliding TTL.
type SignalRepo struct {
	client *goredis.Client
	window time.Duration
}

func NewSignalRepo(client *goredis.Client, window time.Duration) *SignalRepo {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &SignalRepo{client: client, window: window}
}

func (r *SignalRepo) DistinctWallets(ctx context.Context, ip string) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return 0, fmt.Errorf("ip is required")
	}

	count, err := r.client.SCard(ctx, ipWalletsKey(ip)).Result()
	if err != nil {
		return 0, fmt.Errorf("count wallets for ip: %w", err)
	}
	return int(count), nil
}

func (r *SignalRepo) RecordWallet(ctx context.Context, ip, walletAddress string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ip = strings.TrimSpace(ip)
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if ip == "" || walletAddress == "" {
		return fmt.Errorf("invalid ip wallet signal payload")
	}

	key := ipWalletsKey(ip)
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, walletAddress)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record ip wallet signal: %w", err)
	}
	return nil
}

func ipWalletsKey(ip string) string {
	return ipWalletsPrefix + ip
}
