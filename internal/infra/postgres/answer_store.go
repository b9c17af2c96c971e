package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	SessionID     string             `bun:"session_id,pk"`
	QuestionID    string             `bun:"question_id,pk"`
	PlayerID      string             `bun:"player_id,pk"`
	Value         domain.AnswerValue `bun:"value,type:jsonb"`
	IsCorrect     bool               `bun:"is_correct"`
	PointsAwarded float64            `bun:"points_awarded"`
	TimeTaken     float64            `bun:"time_taken"`
	CreatedAt     time.Time          `bun:"created_at"`
}

// AnswerStore persists ledger rows. The primary key on (session, question,
// player) turns a second submission into a unique violation.
type AnswerStore struct {
	db *bun.DB
}

func NewAnswerStore(db *bun.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

func (s *AnswerStore) Insert(ctx context.Context, answer domain.Answer) error {
	row := answerRow{
		SessionID:     answer.SessionID,
		QuestionID:    answer.QuestionID,
		PlayerID:      answer.PlayerID,
		Value:         answer.Value,
		IsCorrect:     answer.IsCorrect,
		PointsAwarded: answer.PointsAwarded,
		TimeTaken:     answer.TimeTaken,
		CreatedAt:     answer.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return domain.ErrAlreadySubmitted
		}
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *AnswerStore) List(ctx context.Context, sessionID, questionID string) ([]domain.Answer, error) {
	var rows []answerRow
	q := s.db.NewSelect().Model(&rows).Where("a.session_id = ?", sessionID)
	if questionID != "" {
		q = q.Where("a.question_id = ?", questionID)
	}
	if err := q.OrderExpr("a.created_at ASC, a.player_id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Answer{
			SessionID:     r.SessionID,
			QuestionID:    r.QuestionID,
			PlayerID:      r.PlayerID,
			Value:         r.Value,
			IsCorrect:     r.IsCorrect,
			PointsAwarded: r.PointsAwarded,
			TimeTaken:     r.TimeTaken,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}
