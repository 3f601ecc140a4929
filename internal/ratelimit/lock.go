package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const keyGenerateJobLock = "generate:lock:%s:%s"

// The release script only deletes the key when the caller still holds
// it, so an expired lock reacquired by another request is never freed
// by the first holder.
const jobLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

func jobLockKey(customerID, jobID string) string {
	return fmt.Sprintf(keyGenerateJobLock, strings.TrimSpace(customerID), strings.TrimSpace(jobID))
}

// TryLockJob claims the (customer, job) pair for the duration of one
// render call. A second request for the same pair while the lock is
// held gets locked=false and must not reach the backend.
func (l *GenerateLimiter) TryLockJob(ctx context.Context, customerID, jobID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, jobLockKey(customerID, jobID), token, l.lockTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseJob frees the claim once the render call returned. Best
// effort; an unreleased lock expires with the TTL.
func (l *GenerateLimiter) ReleaseJob(ctx context.Context, customerID, jobID, token string) {
	if !l.Enabled() || token == "" {
		return
	}
	_ = l.release.Run(ctx, l.client, []string{jobLockKey(customerID, jobID)}, token).Err()
}
