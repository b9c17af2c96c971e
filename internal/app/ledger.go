package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/scoring"
	"github.com/rs/zerolog/log"
)

// SubmitRequest carries one answer submission.
type SubmitRequest struct {
	SessionID  string
	QuestionID string
	PlayerID   string
	Value      domain.AnswerValue
	TimeTaken  float64
}

// SubmitResult is the recorded answer with the fresh question aggregate and
// the leaderboard after reranking.
type SubmitResult struct {
	Answer      domain.Answer        `json:"answer"`
	Stats       domain.QuestionStats `json:"stats"`
	Leaderboard domain.Leaderboard   `json:"leaderboard"`
}

// Ledger records at most one answer per (session, question, player).
type Ledger struct {
	sessions    SessionRepository
	quizzes     QuizRepository
	answers     AnswerStore
	profiles    ProfileProvider
	ranker      *Ranker
	broadcaster Broadcaster
	locks       SessionLocker
	now         func() time.Time
}

func newLedger(s *SessionService) *Ledger {
	return &Ledger{
		sessions:    s.sessions,
		quizzes:     s.quizzes,
		answers:     s.answers,
		profiles:    s.profiles,
		ranker:      s.ranker,
		broadcaster: s.broadcaster,
		locks:       s.locks,
		now:         s.clock.Now,
	}
}

// Submit scores and records an answer. Duplicate submissions are rejected by
// the answer store itself with domain.ErrAlreadySubmitted. The session's read
// lock is held from the window check through the credit, so Advance and End
// never interleave with a submission.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.SessionID == "" || req.QuestionID == "" || req.PlayerID == "" {
		return SubmitResult{}, domain.ErrMissingIdentifier
	}
	if req.TimeTaken < 0 {
		return SubmitResult{}, domain.ErrNegativeTime
	}

	unlock, err := l.locks.RLock(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	defer unlock()

	session, err := l.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if session.Status != domain.StatusInProgress {
		return SubmitResult{}, domain.ErrSessionNotInProgress
	}
	if !session.HasPlayer(req.PlayerID) {
		return SubmitResult{}, domain.ErrPlayerNotInSession
	}

	question, err := l.question(ctx, session.QuizID, req.QuestionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if session.CurrentItem != req.QuestionID || session.ItemClosed {
		return SubmitResult{}, domain.ErrAnswerWindowClosed
	}
	if err := validateAnswer(question, req.Value); err != nil {
		return SubmitResult{}, err
	}

	res, err := scoring.Score(question, req.Value, req.TimeTaken)
	if err != nil {
		return SubmitResult{}, err
	}
	answer := domain.Answer{
		SessionID:     req.SessionID,
		QuestionID:    req.QuestionID,
		PlayerID:      req.PlayerID,
		Value:         req.Value,
		IsCorrect:     res.IsCorrect,
		PointsAwarded: res.Points,
		TimeTaken:     req.TimeTaken,
		CreatedAt:     l.now().UTC(),
	}
	if err := l.answers.Insert(ctx, answer); err != nil {
		return SubmitResult{}, err
	}

	board, err := l.ranker.CreditAndRerank(ctx, req.SessionID, req.PlayerID, res.Points)
	if err != nil {
		return SubmitResult{}, err
	}
	stats, err := l.stats(ctx, req.SessionID, question)
	if err != nil {
		return SubmitResult{}, err
	}

	l.broadcaster.Broadcast(ctx, req.SessionID, domain.EventAnswerRecorded, stats)
	l.broadcaster.Broadcast(ctx, req.SessionID, domain.EventLeaderboardUpdated, board)
	log.Debug().
		Str("session_id", req.SessionID).
		Str("item_id", req.QuestionID).
		Str("player_id", req.PlayerID).
		Bool("correct", res.IsCorrect).
		Float64("points", res.Points).
		Msg("answer recorded")

	return SubmitResult{Answer: answer, Stats: stats, Leaderboard: board}, nil
}

// Query returns the session's answers, or one question's answers when
// questionID is set, each with the owner's public profile.
func (l *Ledger) Query(ctx context.Context, sessionID, questionID string) ([]domain.AnswerView, error) {
	session, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if questionID != "" {
		if _, err := l.question(ctx, session.QuizID, questionID); err != nil {
			return nil, err
		}
	}

	answers, err := l.answers.List(ctx, sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	ids := make([]string, 0, len(answers))
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.PlayerID]; !ok {
			seen[a.PlayerID] = struct{}{}
			ids = append(ids, a.PlayerID)
		}
	}
	profiles, err := resolveProfiles(ctx, l.profiles, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.AnswerView, 0, len(answers))
	for _, a := range answers {
		views = append(views, domain.AnswerView{Answer: a, Player: profiles[a.PlayerID]})
	}
	return views, nil
}

// Stats recomputes the per-option aggregate of one question.
func (l *Ledger) Stats(ctx context.Context, sessionID, questionID string) (domain.QuestionStats, error) {
	session, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	question, err := l.question(ctx, session.QuizID, questionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	return l.stats(ctx, sessionID, question)
}

func (l *Ledger) question(ctx context.Context, quizID, questionID string) (domain.Item, error) {
	quiz, err := l.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Item{}, err
	}
	item, ok := quiz.Item(questionID)
	if !ok || !item.IsQuestion() {
		return domain.Item{}, domain.ErrQuestionNotFound
	}
	return item, nil
}

// stats is recomputed from every stored row rather than incrementally so
// concurrent writers cannot skew it.
func (l *Ledger) stats(ctx context.Context, sessionID string, question domain.Item) (domain.QuestionStats, error) {
	answers, err := l.answers.List(ctx, sessionID, question.ID)
	if err != nil {
		return domain.QuestionStats{}, fmt.Errorf("list answers: %w", err)
	}
	return aggregate(sessionID, question, answers), nil
}

func aggregate(sessionID string, question domain.Item, answers []domain.Answer) domain.QuestionStats {
	counts := make(map[string]int)
	var order []string
	for _, opt := range question.Options {
		counts[opt.ID] = 0
		order = append(order, opt.ID)
	}
	known := len(order)

	for _, a := range answers {
		seen := make(map[string]struct{})
		for _, v := range a.Value.Values() {
			key := v
			if question.QuestionKind == domain.FreeText {
				key = strings.ToLower(strings.TrimSpace(v))
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := counts[key]; !ok {
				order = append(order, key)
			}
			counts[key]++
		}
	}

	extra := order[known:]
	sort.SliceStable(extra, func(i, j int) bool {
		if counts[extra[i]] != counts[extra[j]] {
			return counts[extra[i]] > counts[extra[j]]
		}
		return extra[i] < extra[j]
	})

	stats := domain.QuestionStats{
		SessionID:    sessionID,
		QuestionID:   question.ID,
		TotalAnswers: len(answers),
		Options:      make([]domain.OptionStat, 0, len(order)),
	}
	for _, key := range order {
		pct := 0.0
		if len(answers) > 0 {
			pct = float64(counts[key]) / float64(len(answers)) * 100
		}
		stats.Options = append(stats.Options, domain.OptionStat{Value: key, Count: counts[key], Percentage: pct})
	}
	return stats
}

func validateAnswer(question domain.Item, value domain.AnswerValue) error {
	switch question.QuestionKind {
	case domain.MultiSelect:
		if !value.IsSet || len(value.Set) == 0 {
			return domain.ErrAnswerShape
		}
	case domain.MultipleChoice, domain.TrueFalse, domain.FreeText, domain.Poll:
		if value.IsSet || value.Scalar == "" {
			return domain.ErrAnswerShape
		}
	default:
		return domain.ErrUnsupportedQuestion
	}

	if len(question.Options) > 0 {
		for _, v := range value.Values() {
			if !question.HasOption(v) {
				return fmt.Errorf("option %q: %w", v, domain.ErrUnknownOption)
			}
		}
		return nil
	}
	if question.QuestionKind == domain.TrueFalse && value.Scalar != "true" && value.Scalar != "false" {
		return fmt.Errorf("true_false answers must be true or false: %w", domain.ErrAnswerShape)
	}
	return nil
}
