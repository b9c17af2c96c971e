package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/redis/go-redis/v9"
)

// insertAnswer writes the row and its question index in one step, so a row
// is never visible without its index. Both keys expire with the session.
var insertAnswer = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
return 1
`)

// AnswerStore keeps ledger rows in Redis.
// Rows are stored as:   HSETNX session:{id}:answers:{questionID} {playerID} <json>
// Questions touched as: SADD   session:{id}:questions {questionID}
// The insert runs as one script, so the (session, question, player) check
// and the index update are atomic across instances.
type AnswerStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAnswerStore builds the store. A positive ttl bounds the lifetime of a
// session's answer keys and is renewed by every insert.
func NewAnswerStore(client *redis.Client, ttl time.Duration) *AnswerStore {
	return &AnswerStore{client: client, ttl: ttl}
}

func (s *AnswerStore) Insert(ctx context.Context, answer domain.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	keys := []string{answersKey(answer.SessionID, answer.QuestionID), questionsKey(answer.SessionID)}
	inserted, err := insertAnswer.Run(ctx, s.client, keys,
		answer.PlayerID, data, answer.QuestionID, strconv.FormatInt(s.ttl.Milliseconds(), 10)).Int()
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	if inserted == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

// List returns rows ordered by submission time.
func (s *AnswerStore) List(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	questions := []string{questionID}
	if questionID == "" {
		var err error
		questions, err = s.client.SMembers(ctx, questionsKey(sessionID)).Result()
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(questions))
	for _, q := range questions {
		cmds = append(cmds, pipe.HGetAll(ctx, answersKey(sessionID, q)))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("load answers: %w", err)
		}
	}

	var out []domain.Answer
	for _, cmd := range cmds {
		for playerID, raw := range cmd.Val() {
			var a domain.Answer
			if err := json.Unmarshal([]byte(raw), &a); err != nil {
				return nil, fmt.Errorf("decode answer of %s: %w", playerID, err)
			}
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func answersKey(sessionID, questionID string) string {
	return "session:" + sessionID + ":answers:" + questionID
}

func questionsKey(sessionID string) string {
	return "session:" + sessionID + ":questions"
}
