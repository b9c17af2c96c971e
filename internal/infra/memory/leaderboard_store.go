package memory

import (
	"context"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// LeaderboardStore keeps cumulative scores per session in memory.
type LeaderboardStore struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]map[string]*domain.LeaderboardEntry
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{sessions: make(map[string]map[string]*domain.LeaderboardEntry)}
}

func (s *LeaderboardStore) Credit(_ context.Context, sessionID, playerID string, points float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.sessions[sessionID]
	if !ok {
		board = make(map[string]*domain.LeaderboardEntry)
		s.sessions[sessionID] = board
	}
	entry, ok := board[playerID]
	if !ok {
		s.seq++
		board[playerID] = &domain.LeaderboardEntry{SessionID: sessionID, PlayerID: playerID, Score: points, Seq: s.seq}
		return nil
	}
	if points > 0 {
		s.seq++
		entry.Score += points
		entry.Seq = s.seq
	}
	return nil
}

func (s *LeaderboardStore) Entries(_ context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := s.sessions[sessionID]
	out := make([]domain.LeaderboardEntry, 0, len(board))
	for _, e := range board {
		out = append(out, *e)
	}
	return out, nil
}

func (s *LeaderboardStore) SetRanks(_ context.Context, sessionID string, ranks map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for playerID, entry := range s.sessions[sessionID] {
		if rank, ok := ranks[playerID]; ok {
			entry.Rank = rank
		}
	}
	return nil
}
