package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AdvanceLocker is a cross-instance room transition lock built on SET NX PX.
type AdvanceLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewAdvanceLocker(client *redis.Client, ttl time.Duration, log *slog.Logger) *AdvanceLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdvanceLocker{client: client, ttl: ttl, log: log}
}

func (l *AdvanceLocker) TryLock(ctx context.Context, roomID string) (func(), bool, error) {
	key := "room:" + roomID + ":advance"
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Warn("advance lock release failed", "room_id", roomID, "error", err)
			}
		})
	}
	return release, true, nil
}
