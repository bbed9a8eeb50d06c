package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/models"
)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it still holds our token
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

const retryInterval = 200 * time.Millisecond

// RedisLocker is a RunLocker shared by every replica of the service
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
	log    *logrus.Entry
}

// NewRedisLocker creates a locker whose locks expire after ttl. A busy key
// is retried for up to wait before ErrRunInProgress is returned.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration, log *logrus.Entry) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		prefix: "quantity-sync:lock:",
		log:    log,
	}
}

func (l *RedisLocker) key(store string) string {
	return l.prefix + store
}

// Acquire takes the lock for key and returns its release function
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: store=%s", models.ErrRunInProgress, key)
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := releaseScript.Run(releaseCtx, l.client, []string{l.key(key)}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				l.log.WithError(err).WithField("store", key).Warn("Failed to release run lock")
			}
		})
	}
	return release, nil
}

// keepAlive pushes the lock expiry forward every ttl/3 until stop is closed
// or the lock is found to belong to someone else.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := max(l.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := l.log.WithField("store", key)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		renewed, err := renewScript.Run(ctx, l.client, []string{l.key(key)}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			log.WithError(err).Warn("Failed to renew run lock")
			continue
		}
		if renewed == 0 {
			log.Warn("Run lock was lost before the run finished")
			return
		}
	}
}
