package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/uptrace/bun"
)

type reportRow struct {
	bun.BaseModel `bun:"table:reports,alias:r"`

	ID           string    `bun:"id,pk"`
	SessionID    string    `bun:"session_id"`
	QuizID       string    `bun:"quiz_id"`
	PlayerID     string    `bun:"player_id"`
	TotalAnswers int       `bun:"total_answers"`
	Correct      int       `bun:"correct"`
	Incorrect    int       `bun:"incorrect"`
	Score        float64   `bun:"score"`
	Rank         *int      `bun:"rank"`
	CreatedAt    time.Time `bun:"created_at"`
}

type activityLogRow struct {
	bun.BaseModel `bun:"table:activity_logs,alias:l"`

	ID        string    `bun:"id,pk"`
	SessionID string    `bun:"session_id"`
	QuizID    string    `bun:"quiz_id"`
	PlayerID  string    `bun:"player_id"`
	Score     float64   `bun:"score"`
	Rank      *int      `bun:"rank"`
	CreatedAt time.Time `bun:"created_at"`
}

// ReportStore persists end-of-session reports and activity logs.
type ReportStore struct {
	db *bun.DB
}

func NewReportStore(db *bun.DB) *ReportStore {
	return &ReportStore{db: db}
}

// SaveReports writes every report and log of a session in one transaction.
func (s *ReportStore) SaveReports(ctx context.Context, reports []domain.Report, logs []domain.ActivityLog) error {
	if len(reports) == 0 && len(logs) == 0 {
		return nil
	}
	reportRows := make([]reportRow, 0, len(reports))
	for _, r := range reports {
		reportRows = append(reportRows, reportRow{
			ID:           r.ID,
			SessionID:    r.SessionID,
			QuizID:       r.QuizID,
			PlayerID:     r.PlayerID,
			TotalAnswers: r.TotalAnswers,
			Correct:      r.Correct,
			Incorrect:    r.Incorrect,
			Score:        r.Score,
			Rank:         r.Rank,
			CreatedAt:    r.CreatedAt,
		})
	}
	logRows := make([]activityLogRow, 0, len(logs))
	for _, l := range logs {
		logRows = append(logRows, activityLogRow{
			ID:        l.ID,
			SessionID: l.SessionID,
			QuizID:    l.QuizID,
			PlayerID:  l.PlayerID,
			Score:     l.Score,
			Rank:      l.Rank,
			CreatedAt: l.CreatedAt,
		})
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(reportRows) > 0 {
			if _, err := tx.NewInsert().Model(&reportRows).Exec(ctx); err != nil {
				return fmt.Errorf("insert reports: %w", err)
			}
		}
		if len(logRows) > 0 {
			if _, err := tx.NewInsert().Model(&logRows).Exec(ctx); err != nil {
				return fmt.Errorf("insert activity logs: %w", err)
			}
		}
		return nil
	})
}

func (s *ReportStore) Reports(ctx context.Context, sessionID string) ([]domain.Report, error) {
	var rows []reportRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("r.session_id = ?", sessionID).
		OrderExpr("r.rank ASC NULLS LAST, r.player_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	out := make([]domain.Report, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Report{
			ID:           r.ID,
			SessionID:    r.SessionID,
			QuizID:       r.QuizID,
			PlayerID:     r.PlayerID,
			TotalAnswers: r.TotalAnswers,
			Correct:      r.Correct,
			Incorrect:    r.Incorrect,
			Score:        r.Score,
			Rank:         r.Rank,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// ActivityLogs returns the logs recorded for a session.
func (s *ReportStore) ActivityLogs(ctx context.Context, sessionID string) ([]domain.ActivityLog, error) {
	var rows []activityLogRow
	if err := s.db.NewSelect().Model(&rows).Where("l.session_id = ?", sessionID).OrderExpr("l.rank ASC NULLS LAST").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load activity logs: %w", err)
	}
	out := make([]domain.ActivityLog, 0, len(rows))
	for _, l := range rows {
		out = append(out, domain.ActivityLog{
			ID:        l.ID,
			SessionID: l.SessionID,
			QuizID:    l.QuizID,
			PlayerID:  l.PlayerID,
			Score:     l.Score,
			Rank:      l.Rank,
			CreatedAt: l.CreatedAt,
		})
	}
	return out, nil
}
