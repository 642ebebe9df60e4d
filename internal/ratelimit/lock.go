// Package ratelimit guards against redundant outbound provider calls under
// retry storms. It is explicitly NOT in the path of any correctness
// invariant — those are enforced by storage-level uniqueness constraints
// per spec §5 — it only suppresses wasted network round-trips to a rail
// provider when a caller retries faster than the first call returned.
// Grounded in the donor's internal/ratelimit/lock.go Redis SETNX lock.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SubmitGuard suppresses concurrent duplicate calls to a rail provider for
// the same idempotency key while the first call is still in flight.
type SubmitGuard struct {
	client *redis.Client
	script *redis.Script
}

func NewSubmitGuard(client *redis.Client) *SubmitGuard {
	if client == nil {
		return nil
	}
	return &SubmitGuard{client: client, script: redis.NewScript(releaseScript)}
}

// TryAcquire attempts to claim the guard key for ttl. ok is false if another
// in-flight call already holds it; the caller should treat that as "wait and
// re-check the instruction's persisted state" rather than calling the
// provider again.
func (g *SubmitGuard) TryAcquire(ctx context.Context, idempotencyKey string, ttl time.Duration) (token string, ok bool, err error) {
	if g == nil || g.client == nil {
		// No Redis configured: degrade to "always acquired". Correctness is
		// unaffected because the provider contract and storage uniqueness
		// still dedupe; this guard is a latency optimization only.
		return "", true, nil
	}
	if idempotencyKey == "" {
		return "", false, errors.New("ratelimit: idempotency key is empty")
	}
	token = uuid.NewString()
	acquired, err := g.client.SetNX(ctx, guardKey(idempotencyKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, acquired, nil
}

// Release frees the guard key, if held by token.
func (g *SubmitGuard) Release(ctx context.Context, idempotencyKey, token string) error {
	if g == nil || g.client == nil || token == "" {
		return nil
	}
	return g.script.Run(ctx, g.client, []string{guardKey(idempotencyKey)}, token).Err()
}

func guardKey(idempotencyKey string) string {
	return "pspcore:submit-guard:" + idempotencyKey
}
