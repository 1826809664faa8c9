package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "webhook:seen:"

// IdempotencyRepo is the dedup ledger for gateway event references. Consume
// is a single SET NX, so concurrent deliveries of the same reference race on
// one atomic operation and exactly one caller wins.
type IdempotencyRepo struct {
	client    *goredis.Client
	retention time.Duration
}

func NewIdempotencyRepo(client *goredis.Client, retention time.Duration) *IdempotencyRepo {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &IdempotencyRepo{client: client, retention: retention}
}

// Consume claims an external reference. Returns true for the first caller
// ever to present it; every later (or concurrently racing) caller gets
// false and must treat the event as already handled.
func (r *IdempotencyRepo) Consume(ctx context.Context, gateway, reference string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	reference = strings.TrimSpace(reference)
	if gateway == "" || reference == "" {
		return false, fmt.Errorf("invalid idempotency reference")
	}

	consumedAt := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	firstSeen, err := r.client.SetNX(ctx, idempotencyKey(gateway, reference), consumedAt, r.retention).Result()
	if err != nil {
		return false, fmt.Errorf("consume idempotency reference: %w", err)
	}
	return firstSeen, nil
}

// Release undoes a Consume so a later retry of the same delivery can claim
// the reference again. Used when the event could not be applied downstream.
func (r *IdempotencyRepo) Release(ctx context.Context, gateway, reference string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.client.Del(ctx, idempotencyKey(strings.ToLower(strings.TrimSpace(gateway)), strings.TrimSpace(reference))).Err(); err != nil {
		return fmt.Errorf("release idempotency reference: %w", err)
	}
	return nil
}

// Seen reports whether a reference was already consumed, without claiming it.
func (r *IdempotencyRepo) Seen(ctx context.Context, gateway, reference string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	n, err := r.client.Exists(ctx, idempotencyKey(strings.ToLower(strings.TrimSpace(gateway)), strings.TrimSpace(reference))).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency reference: %w", err)
	}
	return n > 0, nil
}

func idempotencyKey(gateway, reference string) string {
	return idempotencyPrefix + gateway + ":" + reference
}
