package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the core wraps exactly one of these so
// the request layer can classify it with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
)

var (
	// ErrSessionNotFound is returned when no session matches an id or join code.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question id is not a question of the quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	// ErrPlayerNotFound is returned when the profile provider cannot resolve a player.
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	// ErrPlayerNotInSession is returned when a player acts on a session they never joined.
	ErrPlayerNotInSession = fmt.Errorf("player not in session: %w", ErrNotFound)
	// ErrRegistrationNotFound is returned for an unknown live connection id.
	ErrRegistrationNotFound = fmt.Errorf("connection registration %w", ErrNotFound)

	ErrSessionNotWaiting    = fmt.Errorf("session is not waiting for players: %w", ErrInvalidState)
	ErrSessionNotInProgress = fmt.Errorf("session is not in progress: %w", ErrInvalidState)
	// ErrAnswerWindowClosed covers answers for an item that is no longer current
	// or whose countdown already elapsed.
	ErrAnswerWindowClosed = fmt.Errorf("answer window closed: %w", ErrInvalidState)

	ErrEmptyQuiz           = fmt.Errorf("quiz has no playable items: %w", ErrValidation)
	ErrNegativeTime        = fmt.Errorf("time taken must not be negative: %w", ErrValidation)
	ErrAnswerShape         = fmt.Errorf("answer shape does not match question kind: %w", ErrValidation)
	ErrUnknownOption       = fmt.Errorf("answer references an unknown option: %w", ErrValidation)
	ErrUnsupportedQuestion = fmt.Errorf("unsupported question kind: %w", ErrValidation)
	ErrMissingIdentifier   = fmt.Errorf("missing identifier: %w", ErrValidation)

	// ErrJoinCodeTaken is returned by session stores when a live session already
	// holds the code. The orchestrator retries with a fresh code.
	ErrJoinCodeTaken = fmt.Errorf("join code in use: %w", ErrConflict)
	// ErrStaleSession is returned by session stores when the record changed
	// since it was read.
	ErrStaleSession = fmt.Errorf("session changed concurrently: %w", ErrConflict)
	// ErrSessionBusy is returned when the session lock cannot be taken in time.
	ErrSessionBusy = fmt.Errorf("session is busy: %w", ErrConflict)
)
