package domain

// Real-time event names broadcast to session rooms.
const (
	EventSessionCreated     = "session-created"
	EventRosterChanged      = "roster-changed"
	EventItemChanged        = "item-changed"
	EventTimerTick          = "timer-tick"
	EventItemClosed         = "item-closed"
	EventAnswerRecorded     = "answer-recorded"
	EventLeaderboardUpdated = "leaderboard-updated"
	EventSessionEnded       = "session-ended"
)

// Per-connection events.
const (
	EventConnected    = "connected"
	EventAnswerResult = "answer-result"
	EventError        = "error"
	EventPong         = "pong"
)

// OptionView is an option stripped of its correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ItemView is the display payload of an item sent to participants.
type ItemView struct {
	ID           string       `json:"id"`
	Kind         ItemKind     `json:"kind"`
	QuestionKind QuestionKind `json:"questionKind,omitempty"`
	Prompt       string       `json:"prompt"`
	Options      []OptionView `json:"options,omitempty"`
	TimerSeconds int          `json:"timerSeconds"`
	BasePoints   float64      `json:"basePoints"`
	MediaURL     string       `json:"mediaUrl,omitempty"`
}

// ItemChangedPayload is the body of item-changed.
type ItemChangedPayload struct {
	Type       ItemKind `json:"type"`
	Item       ItemView `json:"item"`
	IsLastItem bool     `json:"isLastItem"`
}

// RosterPayload is the body of roster-changed.
type RosterPayload struct {
	SessionID string          `json:"sessionId"`
	Players   []PlayerProfile `json:"players"`
}

// TimerTickPayload is the body of timer-tick.
type TimerTickPayload struct {
	ItemID           string `json:"itemId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

// ItemClosedPayload is the body of item-closed.
type ItemClosedPayload struct {
	ItemID string `json:"itemId"`
}

// SessionCreatedPayload is the body of session-created.
type SessionCreatedPayload struct {
	Session  Session `json:"session"`
	JoinLink string  `json:"joinLink"`
}

// SessionEndedPayload is the body of session-ended.
type SessionEndedPayload struct {
	SessionID   string      `json:"sessionId"`
	Leaderboard Leaderboard `json:"leaderboard"`
}
