package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// Ranker aggregates ledger credits into cumulative scores and a total order.
type Ranker struct {
	store LeaderboardStore
	locks *keyedMutex
	now   func() time.Time
}

func NewRanker(store LeaderboardStore) *Ranker {
	return &Ranker{store: store, locks: newKeyedMutex(), now: time.Now}
}

// Credit adds points to the player's entry without reranking.
func (r *Ranker) Credit(ctx context.Context, sessionID, playerID string, points float64) error {
	if points < 0 {
		return fmt.Errorf("negative credit %v: %w", points, domain.ErrValidation)
	}
	return r.store.Credit(ctx, sessionID, playerID, points)
}

// CreditAndRerank applies a credit and recomputes ranks as one step per
// session, so the returned board always contains the credit.
func (r *Ranker) CreditAndRerank(ctx context.Context, sessionID, playerID string, points float64) (domain.Leaderboard, error) {
	unlock := r.locks.Lock(sessionID)
	defer unlock()

	if err := r.Credit(ctx, sessionID, playerID, points); err != nil {
		return domain.Leaderboard{}, err
	}
	return r.rerankLocked(ctx, sessionID)
}

// Rerank reloads every entry of the session, orders them by score descending
// (earlier Seq first on ties) and writes all ranks in a single batch.
func (r *Ranker) Rerank(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	unlock := r.locks.Lock(sessionID)
	defer unlock()
	return r.rerankLocked(ctx, sessionID)
}

func (r *Ranker) rerankLocked(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	entries, err := r.store.Entries(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	sortEntries(entries)

	ranks := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Rank = i + 1
		ranks[entries[i].PlayerID] = i + 1
	}
	if err := r.store.SetRanks(ctx, sessionID, ranks); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("save ranks: %w", err)
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: r.now()}, nil
}

// Read returns the stored entries in rank order.
func (r *Ranker) Read(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	entries, err := r.store.Entries(ctx, sessionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	sortEntries(entries)
	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: r.now()}, nil
}

// ReadPlayer returns one player's entry, or false if they never answered.
func (r *Ranker) ReadPlayer(ctx context.Context, sessionID, playerID string) (domain.LeaderboardEntry, bool, error) {
	entries, err := r.store.Entries(ctx, sessionID)
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	for _, e := range entries {
		if e.PlayerID == playerID {
			return e, true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

func sortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Seq < entries[j].Seq
	})
}
