package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// ItemKind distinguishes scored questions from informational slides.
type ItemKind string

const (
	ItemQuestion ItemKind = "question"
	ItemSlide    ItemKind = "slide"
)

// QuestionKind selects the answer shape and the scoring rule.
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multiple_choice"
	TrueFalse      QuestionKind = "true_false"
	FreeText       QuestionKind = "free_text"
	Poll           QuestionKind = "poll"
	MultiSelect    QuestionKind = "multi_select"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Item is one entry of a quiz: a question or a non-scored slide.
type Item struct {
	ID            string       `json:"id"`
	Kind          ItemKind     `json:"kind"`
	QuestionKind  QuestionKind `json:"questionKind,omitempty"`
	Prompt        string       `json:"prompt"`
	Options       []Option     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"` // free_text and true_false
	TimerSeconds  int          `json:"timerSeconds"`
	BasePoints    float64      `json:"basePoints"`
	MediaRef      string       `json:"mediaRef,omitempty"`
}

// IsQuestion reports whether the item accepts answers.
func (i Item) IsQuestion() bool {
	return i.Kind == ItemQuestion
}

// CorrectValues lists the values that count as correct: flagged option ids
// for option-based kinds, otherwise the configured correct answer.
func (i Item) CorrectValues() []string {
	var values []string
	for _, opt := range i.Options {
		if opt.Correct {
			values = append(values, opt.ID)
		}
	}
	if len(values) == 0 && i.CorrectAnswer != "" {
		values = append(values, i.CorrectAnswer)
	}
	return values
}

// HasOption reports whether id is one of the item's options.
func (i Item) HasOption(id string) bool {
	for _, opt := range i.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// Quiz is the ordered item list owned by the content store.
type Quiz struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Item returns the item with the given id.
func (q Quiz) Item(id string) (Item, bool) {
	for _, item := range q.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// OrderEntry is one position of a session's snapshotted item order.
type OrderEntry struct {
	ItemID string   `json:"itemId"`
	Kind   ItemKind `json:"kind"`
}

// Session is the durable record of one live run of a quiz.
type Session struct {
	ID          string        `json:"id"`
	QuizID      string        `json:"quizId"`
	HostID      string        `json:"hostId"`
	JoinCode    string        `json:"joinCode"`
	Status      SessionStatus `json:"status"`
	Roster      []string      `json:"roster"`
	Order       []OrderEntry  `json:"order"`
	CurrentItem string        `json:"currentItem"`
	ItemClosed  bool          `json:"itemClosed"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
	// Version counts stored writes. Stores accept an update only when it was
	// read at the current version.
	Version int64 `json:"version"`
}

// HasPlayer reports whether playerID is on the roster.
func (s Session) HasPlayer(playerID string) bool {
	return s.rosterIndex(playerID) >= 0
}

// RemovePlayer drops playerID from the roster and reports whether it was present.
func (s *Session) RemovePlayer(playerID string) bool {
	idx := s.rosterIndex(playerID)
	if idx < 0 {
		return false
	}
	s.Roster = append(s.Roster[:idx:idx], s.Roster[idx+1:]...)
	return true
}

// Position returns the index of the current item in the order, or -1.
func (s Session) Position() int {
	for i, entry := range s.Order {
		if entry.ItemID == s.CurrentItem {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (s Session) Clone() Session {
	out := s
	out.Roster = append([]string(nil), s.Roster...)
	out.Order = append([]OrderEntry(nil), s.Order...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}

func (s Session) rosterIndex(playerID string) int {
	for i, id := range s.Roster {
		if id == playerID {
			return i
		}
	}
	return -1
}

// AnswerValue is a submitted answer payload: a scalar for single-answer kinds
// and a set for multi-select. It marshals as a JSON string or array.
type AnswerValue struct {
	Scalar string
	Set    []string
	IsSet  bool
}

// ScalarAnswer builds a single-value answer.
func ScalarAnswer(v string) AnswerValue {
	return AnswerValue{Scalar: v}
}

// SetAnswer builds a multi-select answer.
func SetAnswer(values ...string) AnswerValue {
	return AnswerValue{Set: values, IsSet: true}
}

// Values returns the selected values regardless of shape.
func (v AnswerValue) Values() []string {
	if v.IsSet {
		return v.Set
	}
	if v.Scalar == "" {
		return nil
	}
	return []string{v.Scalar}
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.IsSet {
		if v.Set == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Set)
	}
	return json.Marshal(v.Scalar)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = ScalarAnswer(t)
	case bool:
		*v = ScalarAnswer(fmt.Sprint(t))
	case float64:
		*v = ScalarAnswer(fmt.Sprint(t))
	case []any:
		set := make([]string, 0, len(t))
		for _, elem := range t {
			s, ok := elem.(string)
			if !ok {
				return fmt.Errorf("answer set elements must be strings: %w", ErrAnswerShape)
			}
			set = append(set, s)
		}
		*v = SetAnswer(set...)
	case nil:
		*v = AnswerValue{}
	default:
		return ErrAnswerShape
	}
	return nil
}

// Answer is one ledger row; unique per (SessionID, QuestionID, PlayerID).
type Answer struct {
	SessionID     string      `json:"sessionId"`
	QuestionID    string      `json:"questionId"`
	PlayerID      string      `json:"playerId"`
	Value         AnswerValue `json:"answer"`
	IsCorrect     bool        `json:"isCorrect"`
	PointsAwarded float64     `json:"pointsAwarded"`
	TimeTaken     float64     `json:"timeTaken"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// PlayerProfile holds the public fields of a player.
type PlayerProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// AnswerView is an answer enriched with its owner's public profile.
type AnswerView struct {
	Answer
	Player PlayerProfile `json:"player"`
}

// OptionStat is the aggregate selection count of one option (or free-text value).
type OptionStat struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// QuestionStats aggregates all ledger rows of a (session, question).
type QuestionStats struct {
	SessionID    string       `json:"sessionId"`
	QuestionID   string       `json:"questionId"`
	TotalAnswers int          `json:"totalAnswers"`
	Options      []OptionStat `json:"options"`
}

// LeaderboardEntry is a player's cumulative standing within a session.
type LeaderboardEntry struct {
	SessionID string  `json:"sessionId"`
	PlayerID  string  `json:"playerId"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
	// Seq orders equal scores: the entry that reached its score first wins.
	Seq int64 `json:"-"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Report is the immutable end-of-session summary for one roster member.
type Report struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	QuizID       string    `json:"quizId"`
	PlayerID     string    `json:"playerId"`
	TotalAnswers int       `json:"totalAnswers"`
	Correct      int       `json:"correct"`
	Incorrect    int       `json:"incorrect"`
	Score        float64   `json:"score"`
	Rank         *int      `json:"rank"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ActivityLog records a player's final rank and score at session end.
type ActivityLog struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	QuizID    string    `json:"quizId"`
	PlayerID  string    `json:"playerId"`
	Score     float64   `json:"score"`
	Rank      *int      `json:"rank"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification is handed to the dispatcher for out-of-band delivery.
type Notification struct {
	Report  Report        `json:"report"`
	Profile PlayerProfile `json:"profile"`
}

// Registration binds a live connection to a session and, for participants,
// to a player. Host connections carry HostID instead of PlayerID.
type Registration struct {
	ConnectionID string    `json:"connectionId"`
	SessionID    string    `json:"sessionId"`
	PlayerID     string    `json:"playerId,omitempty"`
	HostID       string    `json:"hostId,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt"`
}
