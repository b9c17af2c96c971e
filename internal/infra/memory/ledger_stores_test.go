package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

func TestAnswerStoreRejectsDuplicatesUnderContention(t *testing.T) {
	store := NewAnswerStore()
	answer := domain.Answer{SessionID: "s1", QuestionID: "q1", PlayerID: "p1", Value: domain.ScalarAnswer("o2")}

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Insert(context.Background(), answer)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadySubmitted):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || dup.Load() != 24 {
		t.Fatalf("expected 1 insert and 24 duplicates, got %d/%d", ok.Load(), dup.Load())
	}
}

func TestAnswerStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewAnswerStore()
	_ = store.Insert(ctx, domain.Answer{SessionID: "s1", QuestionID: "q1", PlayerID: "p1"})
	_ = store.Insert(ctx, domain.Answer{SessionID: "s1", QuestionID: "q2", PlayerID: "p1"})
	_ = store.Insert(ctx, domain.Answer{SessionID: "s1", QuestionID: "q1", PlayerID: "p2"})
	_ = store.Insert(ctx, domain.Answer{SessionID: "s2", QuestionID: "q1", PlayerID: "p1"})

	q1, _ := store.List(ctx, "s1", "q1")
	if len(q1) != 2 || q1[0].PlayerID != "p1" || q1[1].PlayerID != "p2" {
		t.Fatalf("unexpected q1 rows: %+v", q1)
	}
	all, _ := store.List(ctx, "s1", "")
	if len(all) != 3 {
		t.Fatalf("expected 3 rows for session, got %d", len(all))
	}
}

func TestLeaderboardStoreCreditOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewLeaderboardStore()

	_ = store.Credit(ctx, "s1", "A", 100)
	_ = store.Credit(ctx, "s1", "B", 100)
	_ = store.Credit(ctx, "s1", "A", 0)

	entries, _ := store.Entries(ctx, "s1")
	seq := map[string]int64{}
	score := map[string]float64{}
	for _, e := range entries {
		seq[e.PlayerID] = e.Seq
		score[e.PlayerID] = e.Score
	}
	if score["A"] != 100 || score["B"] != 100 {
		t.Fatalf("unexpected scores: %v", score)
	}
	if seq["A"] >= seq["B"] {
		t.Fatalf("zero-point credit must not move A behind B: %v", seq)
	}

	if err := store.SetRanks(ctx, "s1", map[string]int{"A": 1, "B": 2}); err != nil {
		t.Fatalf("set ranks: %v", err)
	}
	entries, _ = store.Entries(ctx, "s1")
	for _, e := range entries {
		if (e.PlayerID == "A" && e.Rank != 1) || (e.PlayerID == "B" && e.Rank != 2) {
			t.Fatalf("unexpected rank for %s: %d", e.PlayerID, e.Rank)
		}
	}
}

func TestBaseURLResolver(t *testing.T) {
	r := NewBaseURLResolver("https://cdn.example.com/media")
	got, err := r.ResolveURL(context.Background(), "images/q1.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "https://cdn.example.com/media/images/q1.png" {
		t.Fatalf("unexpected url %s", got)
	}
	abs, _ := r.ResolveURL(context.Background(), "http://other/x.png")
	if abs != "http://other/x.png" {
		t.Fatalf("absolute refs should pass through, got %s", abs)
	}
	if _, err := NewBaseURLResolver("").ResolveURL(context.Background(), "x.png"); err == nil {
		t.Fatalf("expected error without base url")
	}
}
