package memory

import (
	"context"
	"sync"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
)

// ReportStore keeps end-of-session reports and activity logs in memory.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string][]domain.Report
	logs    map[string][]domain.ActivityLog
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string][]domain.Report),
		logs:    make(map[string][]domain.ActivityLog),
	}
}

func (s *ReportStore) SaveReports(_ context.Context, reports []domain.Report, logs []domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reports {
		s.reports[r.SessionID] = append(s.reports[r.SessionID], r)
	}
	for _, l := range logs {
		s.logs[l.SessionID] = append(s.logs[l.SessionID], l)
	}
	return nil
}

func (s *ReportStore) Reports(_ context.Context, sessionID string) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Report(nil), s.reports[sessionID]...), nil
}

// ActivityLogs returns the logs recorded for a session.
func (s *ReportStore) ActivityLogs(_ context.Context, sessionID string) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ActivityLog(nil), s.logs[sessionID]...), nil
}
