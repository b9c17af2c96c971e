package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

type answerKey struct {
	sessionID, questionID, playerID string
}

// AnswerStore keeps ledger rows in memory. The check and the insert happen
// under one lock, which is what makes duplicates impossible.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[answerKey]domain.Answer
	seq     map[answerKey]int
	next    int
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		answers: make(map[answerKey]domain.Answer),
		seq:     make(map[answerKey]int),
	}
}

func (s *AnswerStore) Insert(_ context.Context, answer domain.Answer) error {
	key := answerKey{answer.SessionID, answer.QuestionID, answer.PlayerID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.answers[key]; exists {
		return domain.ErrAlreadySubmitted
	}
	s.answers[key] = answer
	s.next++
	s.seq[key] = s.next
	return nil
}

// List returns rows in insertion order.
func (s *AnswerStore) List(_ context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []answerKey
	for key := range s.answers {
		if key.sessionID != sessionID || (questionID != "" && key.questionID != questionID) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return s.seq[keys[i]] < s.seq[keys[j]] })

	out := make([]domain.Answer, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.answers[key])
	}
	return out, nil
}
