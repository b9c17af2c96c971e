package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/redis/go-redis/v9"
)

// credit adds ARGV[2] points to ARGV[1]. A new entry, or one whose score
// changed, takes the next value of the session counter as its tie-breaker.
// ARGV[3] is the key lifetime in milliseconds, 0 for none.
var credit = redis.NewScript(`
local exists = redis.call('HEXISTS', KEYS[1], ARGV[1])
if exists == 1 and tonumber(ARGV[2]) <= 0 then
	return 0
end
redis.call('HINCRBYFLOAT', KEYS[1], ARGV[1], ARGV[2])
local seq = redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[2], ARGV[1], seq)
if tonumber(ARGV[3]) > 0 then
	for _, key in ipairs(KEYS) do
		redis.call('PEXPIRE', key, ARGV[3])
	end
end
return 1
`)

// LeaderboardStore keeps cumulative scores in Redis hashes:
//
//	leaderboard:{id}:scores  player -> score
//	leaderboard:{id}:seq     player -> tie-breaker sequence
//	leaderboard:{id}:ranks   player -> rank
//	leaderboard:{id}:counter sequence source
//
// Every write renews a positive ttl on the keys it touches.
type LeaderboardStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardStore(client *redis.Client, ttl time.Duration) *LeaderboardStore {
	return &LeaderboardStore{client: client, ttl: ttl}
}

func (s *LeaderboardStore) Credit(ctx context.Context, sessionID, playerID string, points float64) error {
	keys := []string{boardKey(sessionID, "scores"), boardKey(sessionID, "seq"), boardKey(sessionID, "counter")}
	err := credit.Run(ctx, s.client, keys, playerID,
		strconv.FormatFloat(points, 'f', -1, 64), strconv.FormatInt(s.ttl.Milliseconds(), 10)).Err()
	if err != nil {
		return fmt.Errorf("credit %s: %w", playerID, err)
	}
	return nil
}

func (s *LeaderboardStore) Entries(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	pipe := s.client.Pipeline()
	scoresCmd := pipe.HGetAll(ctx, boardKey(sessionID, "scores"))
	seqCmd := pipe.HGetAll(ctx, boardKey(sessionID, "seq"))
	ranksCmd := pipe.HGetAll(ctx, boardKey(sessionID, "ranks"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	seqs, ranks := seqCmd.Val(), ranksCmd.Val()
	out := make([]domain.LeaderboardEntry, 0, len(scoresCmd.Val()))
	for playerID, raw := range scoresCmd.Val() {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse score of %s: %w", playerID, err)
		}
		seq, _ := strconv.ParseInt(seqs[playerID], 10, 64)
		rank, _ := strconv.Atoi(ranks[playerID])
		out = append(out, domain.LeaderboardEntry{
			SessionID: sessionID,
			PlayerID:  playerID,
			Score:     score,
			Rank:      rank,
			Seq:       seq,
		})
	}
	return out, nil
}

// SetRanks writes all ranks in one MULTI/EXEC.
func (s *LeaderboardStore) SetRanks(ctx context.Context, sessionID string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(ranks))
	for playerID, rank := range ranks {
		values[playerID] = rank
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, boardKey(sessionID, "ranks"), values)
		if s.ttl > 0 {
			pipe.PExpire(ctx, boardKey(sessionID, "ranks"), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save ranks: %w", err)
	}
	return nil
}

func boardKey(sessionID, part string) string {
	return "leaderboard:" + sessionID + ":" + part
}
