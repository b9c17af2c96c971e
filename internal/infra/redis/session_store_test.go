package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestSessionStoreSetsAndReleasesKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Hour)
	session := domain.Session{ID: "s1", QuizID: "quiz-1", HostID: "h1", JoinCode: "042042", Status: domain.StatusWaiting, Roster: []string{}}

	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("session:s1") || !mr.Exists("session:code:042042") {
		t.Fatalf("expected session and code keys to be set")
	}

	got, err := store.GetByJoinCode(ctx, "042042")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.ID != "s1" || got.JoinCode != "042042" {
		t.Fatalf("unexpected session %+v", got)
	}

	got.Roster = append(got.Roster, "p1")
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := store.Get(ctx, "s1")
	if len(again.Roster) != 1 {
		t.Fatalf("expected roster persisted, got %v", again.Roster)
	}
	if ttl := mr.TTL("session:s1"); ttl <= 0 {
		t.Fatalf("update must keep the ttl, got %v", ttl)
	}

	again.Status = domain.StatusCompleted
	if err := store.Update(ctx, again); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if mr.Exists("session:code:042042") {
		t.Fatalf("expected join code released")
	}
	if _, err := store.GetByJoinCode(ctx, "042042"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after release, got %v", err)
	}
}

func TestSessionStoreRejectsLiveCode(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	store := NewSessionStore(newClient(mr), 0)

	if err := store.Create(ctx, domain.Session{ID: "s1", JoinCode: "111111"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, domain.Session{ID: "s2", JoinCode: "111111"}); !errors.Is(err, domain.ErrJoinCodeTaken) {
		t.Fatalf("expected ErrJoinCodeTaken, got %v", err)
	}
	if mr.Exists("session:s2") {
		t.Fatalf("rejected session must not be stored")
	}
}

func TestSessionStoreUpdateMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), 0)
	if err := store.Update(context.Background(), domain.Session{ID: "ghost"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStoreRejectsStaleUpdate(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client := newClient(mr)
	a, b := NewSessionStore(client, time.Hour), NewSessionStore(newClient(mr), time.Hour)

	if err := a.Create(ctx, domain.Session{ID: "s1", JoinCode: "333333", Status: domain.StatusInProgress, CurrentItem: "q1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, _ := a.Get(ctx, "s1")
	fresh, _ := b.Get(ctx, "s1")

	fresh.CurrentItem = "q2"
	if err := b.Update(ctx, fresh); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale.ItemClosed = true
	if err := a.Update(ctx, stale); !errors.Is(err, domain.ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}

	got, _ := a.Get(ctx, "s1")
	if got.CurrentItem != "q2" || got.ItemClosed || got.Version != 1 {
		t.Fatalf("stale write leaked into %+v", got)
	}
	if ttl := mr.TTL("session:s1"); ttl <= 0 {
		t.Fatalf("update must keep the ttl, got %v", ttl)
	}
}
