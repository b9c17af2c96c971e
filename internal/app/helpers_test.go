package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/memory"
	"github.com/jonboulle/clockwork"
)

type recordedEvent struct {
	Room    string
	Type    string
	Payload any
}

type tick struct {
	SessionID string
	ItemID    string
	Remaining int
}

// recordingBroadcaster keeps every broadcast and streams timer ticks.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
	closed []string
	ticks  chan tick
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{ticks: make(chan tick, 128)}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Room: room, Type: event, Payload: payload})
}

func (b *recordingBroadcaster) TimerTick(_ context.Context, sessionID, itemID string, remaining int) {
	b.ticks <- tick{SessionID: sessionID, ItemID: itemID, Remaining: remaining}
}

func (b *recordingBroadcaster) CloseRoom(room string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, room)
}

func (b *recordingBroadcaster) types(room string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		if e.Room == room {
			out = append(out, e.Type)
		}
	}
	return out
}

func (b *recordingBroadcaster) last(room, event string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Room == room && b.events[i].Type == event {
			return b.events[i].Payload, true
		}
	}
	return nil, false
}

func (b *recordingBroadcaster) nextTick(t *testing.T) tick {
	t.Helper()
	select {
	case tk := <-b.ticks:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatalf("no timer tick received")
		return tick{}
	}
}

// recordingNotifier collects dispatched notifications.
type recordingNotifier struct {
	sent chan domain.Notification
}

func (n *recordingNotifier) Dispatch(_ context.Context, notification domain.Notification) error {
	n.sent <- notification
	return nil
}

// mutableQuizzes is a quiz source whose content can change mid-session.
type mutableQuizzes struct {
	mu      sync.Mutex
	quizzes map[string]domain.Quiz
}

func (m *mutableQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	quiz, ok := m.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (m *mutableQuizzes) set(quiz domain.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[quiz.ID] = quiz
}

type harness struct {
	svc         *SessionService
	clock       *clockwork.FakeClock
	broadcaster *recordingBroadcaster
	notifier    *recordingNotifier
	quizzes     *mutableQuizzes
	sessions    *memory.SessionStore
	reports     *memory.ReportStore
	profiles    *memory.StaticProfiles
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test swap dependencies before the service is built.
func newHarnessWith(t *testing.T, adjust func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		clock:       clockwork.NewFakeClockAt(time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)),
		broadcaster: newRecordingBroadcaster(),
		notifier:    &recordingNotifier{sent: make(chan domain.Notification, 16)},
		quizzes:     &mutableQuizzes{quizzes: map[string]domain.Quiz{"quiz-1": testQuiz()}},
		sessions:    memory.NewSessionStore(),
		reports:     memory.NewReportStore(),
		profiles: memory.NewStaticProfiles(
			domain.PlayerProfile{ID: "alice", Username: "Alice", Email: "alice@example.com"},
			domain.PlayerProfile{ID: "bob", Username: "Bob"},
			domain.PlayerProfile{ID: "carol", Username: "Carol"},
		),
	}
	deps := Dependencies{
		Sessions:    h.sessions,
		Quizzes:     h.quizzes,
		Answers:     memory.NewAnswerStore(),
		Leaderboard: memory.NewLeaderboardStore(),
		Reports:     h.reports,
		Profiles:    h.profiles,
		Media:       memory.NewBaseURLResolver("https://cdn.example.com/media"),
		Notifier:    h.notifier,
		Broadcaster: h.broadcaster,
		Clock:       h.clock,
	}
	if adjust != nil {
		adjust(&deps)
	}
	h.svc = NewSessionService(deps, Options{JoinBaseURL: "https://play.example.com/join"})
	t.Cleanup(func() {
		for _, id := range h.sessionIDs() {
			h.svc.Countdown().Stop(id)
		}
	})
	return h
}

func (h *harness) sessionIDs() []string {
	h.broadcaster.mu.Lock()
	defer h.broadcaster.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, e := range h.broadcaster.events {
		if p, ok := e.Payload.(domain.SessionCreatedPayload); ok && !seen[p.Session.ID] {
			seen[p.Session.ID] = true
			ids = append(ids, p.Session.ID)
		}
	}
	return ids
}

// openSession creates a session and joins the given players.
func (h *harness) openSession(t *testing.T, players ...string) domain.Session {
	t.Helper()
	ctx := context.Background()
	created, err := h.svc.Create(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, p := range players {
		if _, err := h.svc.Join(ctx, created.Session.JoinCode, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	session, err := h.svc.Get(ctx, created.Session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return session
}

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "General knowledge",
		Items: []domain.Item{
			{
				ID:           "q1",
				Kind:         domain.ItemQuestion,
				QuestionKind: domain.MultipleChoice,
				Prompt:       "Capital of France?",
				Options: []domain.Option{
					{ID: "a", Text: "Paris", Correct: true},
					{ID: "b", Text: "Lyon"},
				},
				TimerSeconds: 10,
				BasePoints:   10,
				MediaRef:     "flags/fr.png",
			},
			{
				ID:     "intro",
				Kind:   domain.ItemSlide,
				Prompt: "Round two",
			},
			{
				ID:            "q2",
				Kind:          domain.ItemQuestion,
				QuestionKind:  domain.FreeText,
				Prompt:        "Largest planet?",
				CorrectAnswer: "Jupiter",
				TimerSeconds:  20,
				BasePoints:    20,
			},
		},
	}
}
