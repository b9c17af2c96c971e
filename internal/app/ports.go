package app

import (
	"context"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// SessionRepository abstracts how sessions are stored (in-memory, Redis, etc).
// Create must fail with domain.ErrJoinCodeTaken when a live session already
// holds the join code; Update releases the code once a session completes.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	GetByJoinCode(ctx context.Context, code string) (domain.Session, error)
	Update(ctx context.Context, session domain.Session) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AnswerStore is the ledger's storage. Insert must be atomic with respect to
// the (session, question, player) triple and return domain.ErrAlreadySubmitted
// for a duplicate. An empty questionID in List selects the whole session.
type AnswerStore interface {
	Insert(ctx context.Context, answer domain.Answer) error
	List(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error)
}

// LeaderboardStore persists cumulative scores. Credit adds points and creates
// the entry on first use; SetRanks writes every rank of a session in one batch.
type LeaderboardStore interface {
	Credit(ctx context.Context, sessionID, playerID string, points float64) error
	Entries(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error)
	SetRanks(ctx context.Context, sessionID string, ranks map[string]int) error
}

// ReportStore keeps end-of-session reports and activity logs.
type ReportStore interface {
	SaveReports(ctx context.Context, reports []domain.Report, logs []domain.ActivityLog) error
	Reports(ctx context.Context, sessionID string) ([]domain.Report, error)
}

// ProfileProvider resolves player ids to public profile fields.
type ProfileProvider interface {
	GetProfile(ctx context.Context, playerID string) (domain.PlayerProfile, error)
}

// MediaResolver turns a media reference into a publicly fetchable URL.
type MediaResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// Notifier hands final reports off for out-of-band delivery.
type Notifier interface {
	Dispatch(ctx context.Context, notification domain.Notification) error
}

// Broadcaster is the fan-out layer as seen by the core.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, payload any)
	TimerTick(ctx context.Context, sessionID, itemID string, secondsRemaining int)
	CloseRoom(room string)
}

// HostRoom is the room a host's connections subscribe to.
func HostRoom(hostID string) string {
	return "host:" + hostID
}
