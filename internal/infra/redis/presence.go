package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PresenceRegistry mirrors live connection registrations in Redis so any
// instance can resolve a connection id. Entries expire after ttl unless
// refreshed, which cleans up after crashed instances.
// Stored as: HSET presence:conn:{connectionID} session player host name since
// Player index: SADD presence:player:{sessionID}:{playerID} {connectionID}
type PresenceRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceRegistry(client *redis.Client, ttl time.Duration) *PresenceRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &PresenceRegistry{client: client, ttl: ttl}
}

func (p *PresenceRegistry) Register(ctx context.Context, reg domain.Registration) error {
	key := presenceKey(reg.ConnectionID)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"session", reg.SessionID,
			"player", reg.PlayerID,
			"host", reg.HostID,
			"name", reg.DisplayName,
			"since", reg.ConnectedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, p.ttl)
		if reg.PlayerID != "" {
			index := playerIndexKey(reg.SessionID, reg.PlayerID)
			pipe.SAdd(ctx, index, reg.ConnectionID)
			pipe.Expire(ctx, index, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register presence: %w", err)
	}
	return nil
}

func (p *PresenceRegistry) Lookup(ctx context.Context, connectionID string) (domain.Registration, error) {
	fields, err := p.client.HGetAll(ctx, presenceKey(connectionID)).Result()
	if err != nil {
		return domain.Registration{}, fmt.Errorf("lookup presence: %w", err)
	}
	if len(fields) == 0 {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	since, _ := time.Parse(time.RFC3339Nano, fields["since"])
	return domain.Registration{
		ConnectionID: connectionID,
		SessionID:    fields["session"],
		PlayerID:     fields["player"],
		HostID:       fields["host"],
		DisplayName:  fields["name"],
		ConnectedAt:  since,
	}, nil
}

func (p *PresenceRegistry) Remove(ctx context.Context, connectionID string) error {
	owner, err := p.owner(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	var del *redis.IntCmd
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, presenceKey(connectionID))
		if owner != "" {
			pipe.SRem(ctx, owner, connectionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// PlayerConnections counts the player's registrations that are still alive.
// Index members whose registration expired are pruned on the way.
func (p *PresenceRegistry) PlayerConnections(ctx context.Context, sessionID, playerID string) (int, error) {
	index := playerIndexKey(sessionID, playerID)
	ids, err := p.client.SMembers(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("list player connections: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := p.client.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("check player connections: %w", err)
	}

	live := 0
	var stale []any
	for i, cmd := range checks {
		if cmd.Val() == 1 {
			live++
			continue
		}
		stale = append(stale, ids[i])
	}
	if len(stale) > 0 {
		if err := p.client.SRem(ctx, index, stale...).Err(); err != nil {
			return 0, fmt.Errorf("prune player connections: %w", err)
		}
	}
	return live, nil
}

// Refresh extends the lifetime of a live registration.
func (p *PresenceRegistry) Refresh(ctx context.Context, connectionID string) error {
	owner, err := p.owner(ctx, connectionID)
	if err != nil {
		return err
	}
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, presenceKey(connectionID), p.ttl)
		if owner != "" {
			pipe.Expire(ctx, owner, p.ttl)
		}
		return nil
	})
	return err
}

// owner returns the player index key of a registration, or "" when the
// registration is unknown or belongs to a host.
func (p *PresenceRegistry) owner(ctx context.Context, connectionID string) (string, error) {
	fields, err := p.client.HMGet(ctx, presenceKey(connectionID), "session", "player").Result()
	if err != nil {
		return "", err
	}
	sessionID, _ := fields[0].(string)
	playerID, _ := fields[1].(string)
	if playerID == "" {
		return "", nil
	}
	return playerIndexKey(sessionID, playerID), nil
}

func presenceKey(connectionID string) string {
	return "presence:conn:" + connectionID
}

func playerIndexKey(sessionID, playerID string) string {
	return "presence:player:" + sessionID + ":" + playerID
}
