package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reminders:lock:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Storage struct {
	redis *redis.Client
}

func NewStorage(client *redis.Client) *Storage {
	return &Storage{
		redis: client,
	}
}

// Acquire takes the named lock for ttl. It returns the token needed to
// release it, or ok=false when someone else holds the lock.
func (s *Storage) Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = s.redis.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if it is still held under token.
func (s *Storage) Release(ctx context.Context, name, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.redis, []string{keyPrefix + name}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return n == 1, nil
}
