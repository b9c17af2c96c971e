package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads quiz documents from the quizzes table. The document is the
// JSON form of domain.Quiz.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	return decodeQuiz(quizID, raw)
}

// decodeQuiz parses a stored document. Items written without a kind are
// questions when they carry a question kind and slides otherwise.
func decodeQuiz(quizID string, raw []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz %s: %w", quizID, err)
	}
	quiz.ID = quizID
	for i := range quiz.Items {
		item := &quiz.Items[i]
		if item.Kind != "" {
			continue
		}
		if item.QuestionKind != "" {
			item.Kind = domain.ItemQuestion
		} else {
			item.Kind = domain.ItemSlide
		}
	}
	return quiz, nil
}
