package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/app"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/memory"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

type fixture struct {
	service *app.SessionService
	hub     *realtime.Hub
	server  *httptest.Server
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	hub := realtime.NewHub(realtime.DefaultConfig(), nil, clock)
	service := app.NewSessionService(app.Dependencies{
		Sessions:    memory.NewSessionStore(),
		Quizzes:     memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute),
		Answers:     memory.NewAnswerStore(),
		Leaderboard: memory.NewLeaderboardStore(),
		Reports:     memory.NewReportStore(),
		Profiles: memory.NewStaticProfiles(
			domain.PlayerProfile{ID: "p1", Username: "alice"},
			domain.PlayerProfile{ID: "p2", Username: "bob"},
		),
		Broadcaster: hub,
		Clock:       clock,
	}, app.Options{JoinBaseURL: "https://play.example.com/join"})
	hub.SetDisconnectHandler(service.Disconnect)

	server := httptest.NewServer(NewRouter(service, hub, nil))
	t.Cleanup(server.Close)
	return &fixture{service: service, hub: hub, server: server, clock: clock}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + f.server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketAnswerFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, "quiz-1", "h1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sessionID := created.Session.ID

	conn := f.dial(t, "sessionId="+sessionID+"&playerId=p1&name=Alice")
	_, payload := readNext(conn, t, domain.EventConnected)
	if payload["connectionId"] == "" {
		t.Fatalf("expected connection id in %v", payload)
	}

	session, _ := f.service.Get(ctx, sessionID)
	if !session.HasPlayer("p1") {
		t.Fatalf("expected p1 joined on connect, roster %v", session.Roster)
	}

	if _, err := f.service.Start(ctx, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	readNext(conn, t, domain.EventItemChanged)
	_, tick := readNext(conn, t, domain.EventTimerTick)
	if tick["secondsRemaining"] != float64(20) {
		t.Fatalf("expected full duration tick, got %v", tick)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId": "q1",
			"answer":     "o2",
			"timeTaken":  5,
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	seen := map[string]map[string]any{}
	for i := 0; i < 3; i++ {
		typ, p := readNext(conn, t, "")
		seen[typ] = p
	}
	for _, want := range []string{domain.EventAnswerRecorded, domain.EventLeaderboardUpdated, domain.EventAnswerResult} {
		if _, ok := seen[want]; !ok {
			t.Fatalf("expected %s, got %v", want, seen)
		}
	}
	result := seen[domain.EventAnswerResult]
	if result["isCorrect"] != true || result["pointsAwarded"] != float64(115) {
		t.Fatalf("unexpected answer result %v", result)
	}

	// a second answer for the same question is rejected
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write duplicate: %v", err)
	}
	_, errPayload := readNext(conn, t, domain.EventError)
	if errPayload["status"] != float64(409) {
		t.Fatalf("expected 409 for duplicate, got %v", errPayload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readNext(conn, t, domain.EventPong)
}

func TestWebSocketDisconnectLeavesWaitingRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.service.Create(ctx, "quiz-1", "h1")
	sessionID := created.Session.ID

	host := f.dial(t, "sessionId="+sessionID+"&hostId=h1")
	readNext(host, t, domain.EventConnected)

	player := f.dial(t, "sessionId="+sessionID+"&playerId=p2")
	readNext(player, t, domain.EventConnected)
	_ = player.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		session, _ := f.service.Get(ctx, sessionID)
		if !session.HasPlayer("p2") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected p2 removed from waiting roster, roster %v", session.Roster)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// host saw the join and the departure
	readNext(host, t, domain.EventRosterChanged)
	_, roster := readNext(host, t, domain.EventRosterChanged)
	if players, _ := roster["players"].([]any); len(players) != 0 {
		t.Fatalf("expected empty roster after leave, got %v", roster)
	}
}

func TestWebSocketRejectsStrangers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.service.Create(ctx, "quiz-1", "h1")

	u := "ws" + f.server.URL[len("http"):] + "/ws?sessionId=" + created.Session.ID + "&hostId=intruder"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", resp)
	}

	u = "ws" + f.server.URL[len("http"):] + "/ws?sessionId=" + created.Session.ID
	_, resp, _ = websocket.DefaultDialer.Dial(u, nil)
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400 without identity, got %+v", resp)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Items: []domain.Item{
				{
					ID:           "q1",
					Kind:         domain.ItemQuestion,
					QuestionKind: domain.MultipleChoice,
					Prompt:       "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					TimerSeconds: 20,
					BasePoints:   100,
				},
				{
					ID:     "s1",
					Kind:   domain.ItemSlide,
					Prompt: "Thanks for playing",
				},
			},
		},
	}
}
