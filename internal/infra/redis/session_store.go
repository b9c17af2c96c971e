package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/redis/go-redis/v9"
)

// releaseCode deletes the join code index only while it still points at the
// session being completed.
var releaseCode = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SessionStore keeps session records in Redis so every instance sees the same
// lifecycle state.
// Records are stored as: SET session:{id} <json>
// Live join codes as:    SET session:code:{code} {id} NX
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds a store. A zero ttl keeps records until deleted.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, codeKey(session.JoinCode), session.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve join code: %w", err)
	}
	if !ok {
		return domain.ErrJoinCodeTaken
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		_ = s.client.Del(ctx, codeKey(session.JoinCode)).Err()
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *SessionStore) GetByJoinCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve join code: %w", err)
	}
	return s.Get(ctx, id)
}

// Update writes session when it was read at the stored version. The record
// is watched so a concurrent writer on any instance turns this write into
// domain.ErrStaleSession. The TTL is kept; completing a session releases its
// join code.
func (s *SessionStore) Update(ctx context.Context, session domain.Session) error {
	next := session
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	key := sessionKey(session.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode session %s: %w", session.ID, err)
		}
		if stored.Version != session.Version {
			return domain.ErrStaleSession
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrStaleSession
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	case err != nil:
		return fmt.Errorf("update session: %w", err)
	}

	if session.Status == domain.StatusCompleted {
		if err := releaseCode.Run(ctx, s.client, []string{codeKey(session.JoinCode)}, session.ID).Err(); err != nil {
			return fmt.Errorf("release join code: %w", err)
		}
	}
	return nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func codeKey(code string) string {
	return "session:code:" + code
}
