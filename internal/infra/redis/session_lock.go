package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireWrite claims the writer key and then reports how many unexpired
// readers are left. -1 means another writer holds the key.
var acquireWrite = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[3]) then
		return -1
	end
end
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
return redis.call('ZCARD', KEYS[2])
`)

// acquireRead registers a reader unless a writer holds or waits for the lock.
var acquireRead = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + tonumber(ARGV[3]), ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
return 1
`)

var releaseWrite = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionLocker is a readers-writer lock per session shared by every
// instance using the same Redis.
//
//	session:{id}:lock:w  SET token NX PX lease   writer, also blocks new readers
//	session:{id}:lock:r  ZADD expiry token       live readers
//
// Holders lease the lock; a crashed holder stops blocking others once its
// lease runs out.
type SessionLocker struct {
	client *redis.Client
	lease  time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewSessionLocker builds a locker. Acquisition gives up with
// domain.ErrSessionBusy after wait.
func NewSessionLocker(client *redis.Client, lease, wait time.Duration) *SessionLocker {
	if lease <= 0 {
		lease = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &SessionLocker{client: client, lease: lease, wait: wait, retry: 5 * time.Millisecond}
}

func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	keys := lockKeys(sessionID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		n, err := acquireWrite.Run(ctx, l.client, keys, token, nowMillis(), l.leaseMillis()).Int()
		if err != nil {
			l.releaseWriter(context.WithoutCancel(ctx), keys, token)
			return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
		}
		if n == 0 {
			detached := context.WithoutCancel(ctx)
			return func() { l.releaseWriter(detached, keys, token) }, nil
		}
		if err := l.pause(ctx, deadline); err != nil {
			if n > 0 {
				l.releaseWriter(context.WithoutCancel(ctx), keys, token)
			}
			return nil, err
		}
	}
}

func (l *SessionLocker) RLock(ctx context.Context, sessionID string) (func(), error) {
	keys := lockKeys(sessionID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := acquireRead.Run(ctx, l.client, keys, token, nowMillis(), l.leaseMillis()).Int()
		if err != nil {
			return nil, fmt.Errorf("read-lock session %s: %w", sessionID, err)
		}
		if ok == 1 {
			detached := context.WithoutCancel(ctx)
			return func() { _ = l.client.ZRem(detached, keys[1], token).Err() }, nil
		}
		if err := l.pause(ctx, deadline); err != nil {
			return nil, err
		}
	}
}

func (l *SessionLocker) releaseWriter(ctx context.Context, keys []string, token string) {
	_ = releaseWrite.Run(ctx, l.client, keys[:1], token).Err()
}

func (l *SessionLocker) pause(ctx context.Context, deadline time.Time) error {
	if time.Now().After(deadline) {
		return domain.ErrSessionBusy
	}
	t := time.NewTimer(l.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrSessionBusy
		}
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *SessionLocker) leaseMillis() string {
	return strconv.FormatInt(l.lease.Milliseconds(), 10)
}

func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func lockKeys(sessionID string) []string {
	return []string{"session:" + sessionID + ":lock:w", "session:" + sessionID + ":lock:r"}
}
