package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the lock only while it still belongs to owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// MergeLock keeps two admins from merging the same source suggestion at once.
type MergeLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewMergeLock(client *redis.Client, ttl time.Duration) *MergeLock {
	return &MergeLock{Client: client, TTL: ttl}
}

func mergeLockKey(sourceID int64) string {
	return fmt.Sprintf("suggestions:merge_lock:%d", sourceID)
}

// Acquire reports false when another owner holds the lock.
func (l *MergeLock) Acquire(ctx context.Context, sourceID int64, owner string) (bool, error) {
	return l.Client.SetNX(ctx, mergeLockKey(sourceID), owner, l.TTL).Result()
}

// Release is a no-op when the lock expired or was taken over.
func (l *MergeLock) Release(ctx context.Context, sourceID int64, owner string) error {
	return releaseScript.Run(ctx, l.Client, []string{mergeLockKey(sourceID)}, owner).Err()
}
