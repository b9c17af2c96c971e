package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the stores and collaborators the core is wired with.
// Notifier, Media, Broadcaster and Locker may be nil; a nil Locker only
// serializes within this process.
type Dependencies struct {
	Sessions    SessionRepository
	Quizzes     QuizRepository
	Answers     AnswerStore
	Leaderboard LeaderboardStore
	Reports     ReportStore
	Profiles    ProfileProvider
	Media       MediaResolver
	Notifier    Notifier
	Broadcaster Broadcaster
	Locker      SessionLocker
	Clock       clockwork.Clock
}

// Options tune join codes and the countdown.
type Options struct {
	JoinCodeLength   int
	JoinCodeAttempts int
	JoinBaseURL      string
	TickInterval     time.Duration
}

// SessionService drives the session lifecycle. Mutations of one session are
// serialized through the session lock and land as versioned writes; different
// sessions never contend.
type SessionService struct {
	sessions    SessionRepository
	quizzes     QuizRepository
	answers     AnswerStore
	reports     ReportStore
	profiles    ProfileProvider
	media       MediaResolver
	notifier    Notifier
	broadcaster Broadcaster
	clock       clockwork.Clock

	ranker    *Ranker
	ledger    *Ledger
	countdown *Countdown
	locks     SessionLocker

	opts    Options
	newCode func(length int) (string, error)
}

// CreateResult is returned by Create.
type CreateResult struct {
	Session  domain.Session `json:"session"`
	Artifact JoinArtifact   `json:"joinArtifact"`
}

// AdvanceResult is returned by Advance. EndOfSequence is the normal signal
// that the quiz has no further items; Item is nil in that case.
type AdvanceResult struct {
	Item          *domain.ItemChangedPayload `json:"item,omitempty"`
	EndOfSequence bool                       `json:"endOfSequence"`
}

// EndResult is returned by End.
type EndResult struct {
	Session domain.Session  `json:"session"`
	Reports []domain.Report `json:"reports"`
}

// SessionState is the full state a client fetches to resynchronize.
type SessionState struct {
	Session          domain.Session             `json:"session"`
	Item             *domain.ItemChangedPayload `json:"item,omitempty"`
	Leaderboard      domain.Leaderboard         `json:"leaderboard"`
	SecondsRemaining *int                       `json:"secondsRemaining,omitempty"`
}

func NewSessionService(deps Dependencies, opts Options) *SessionService {
	if opts.JoinCodeLength <= 0 {
		opts.JoinCodeLength = defaultJoinCodeLength
	}
	if opts.JoinCodeAttempts <= 0 {
		opts.JoinCodeAttempts = defaultJoinCodeAttempts
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}
	if deps.Media == nil {
		deps.Media = passthroughMedia{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}

	s := &SessionService{
		sessions:    deps.Sessions,
		quizzes:     deps.Quizzes,
		answers:     deps.Answers,
		reports:     deps.Reports,
		profiles:    deps.Profiles,
		media:       deps.Media,
		notifier:    deps.Notifier,
		broadcaster: deps.Broadcaster,
		clock:       deps.Clock,
		ranker:      NewRanker(deps.Leaderboard),
		locks:       deps.Locker,
		opts:        opts,
		newCode:     randomJoinCode,
	}
	s.ranker.now = deps.Clock.Now
	s.countdown = NewCountdown(deps.Clock, opts.TickInterval)
	s.countdown.onTick = func(sessionID, itemID string, remaining int) {
		s.broadcaster.TimerTick(context.Background(), sessionID, itemID, remaining)
	}
	s.countdown.onExpire = func(sessionID, itemID string) {
		if err := s.closeItem(context.Background(), sessionID, itemID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Str("item_id", itemID).Msg("close item failed")
		}
	}
	s.ledger = newLedger(s)
	return s
}

// Ledger exposes the answer ledger bound to this service.
func (s *SessionService) Ledger() *Ledger { return s.ledger }

// Ranker exposes the leaderboard ranker bound to this service.
func (s *SessionService) Ranker() *Ranker { return s.ranker }

// Countdown exposes the session timer authority.
func (s *SessionService) Countdown() *Countdown { return s.countdown }

// Create opens a new waiting session for quizID hosted by hostID.
func (s *SessionService) Create(ctx context.Context, quizID, hostID string) (CreateResult, error) {
	if quizID == "" || hostID == "" {
		return CreateResult{}, domain.ErrMissingIdentifier
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return CreateResult{}, err
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		HostID:    hostID,
		Status:    domain.StatusWaiting,
		Roster:    []string{},
		CreatedAt: s.clock.Now().UTC(),
	}

	for attempt := 1; attempt <= s.opts.JoinCodeAttempts; attempt++ {
		code, err := s.newCode(s.opts.JoinCodeLength)
		if err != nil {
			return CreateResult{}, fmt.Errorf("generate join code: %w", err)
		}
		session.JoinCode = code

		err = s.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			log.Debug().Str("join_code", code).Int("attempt", attempt).Msg("join code collision, retrying")
			continue
		}
		if err != nil {
			return CreateResult{}, err
		}

		artifact, err := buildJoinArtifact(s.opts.JoinBaseURL, code, session.ID)
		if err != nil {
			return CreateResult{}, err
		}
		s.broadcaster.Broadcast(ctx, HostRoom(hostID), domain.EventSessionCreated, domain.SessionCreatedPayload{
			Session:  session,
			JoinLink: artifact.Link,
		})
		log.Info().Str("session_id", session.ID).Str("quiz_id", quizID).Str("host_id", hostID).Msg("session created")
		return CreateResult{Session: session, Artifact: artifact}, nil
	}
	return CreateResult{}, fmt.Errorf("no free join code after %d attempts: %w", s.opts.JoinCodeAttempts, domain.ErrConflict)
}

// Join adds playerID to the waiting session identified by joinCode.
func (s *SessionService) Join(ctx context.Context, joinCode, playerID string) (domain.Session, error) {
	if joinCode == "" || playerID == "" {
		return domain.Session{}, domain.ErrMissingIdentifier
	}
	found, err := s.sessions.GetByJoinCode(ctx, joinCode)
	if err != nil {
		return domain.Session{}, err
	}
	if _, err := s.profiles.GetProfile(ctx, playerID); err != nil {
		return domain.Session{}, err
	}

	unlock, err := s.locks.Lock(ctx, found.ID)
	if err != nil {
		return domain.Session{}, err
	}
	defer unlock()

	session, err := s.update(ctx, found.ID, func(session *domain.Session) error {
		if session.Status != domain.StatusWaiting {
			return domain.ErrSessionNotWaiting
		}
		if session.HasPlayer(playerID) {
			return domain.ErrAlreadyJoined
		}
		session.Roster = append(session.Roster, playerID)
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	s.broadcastRoster(ctx, session)
	log.Info().Str("session_id", session.ID).Str("player_id", playerID).Int("roster", len(session.Roster)).Msg("player joined")
	return session, nil
}

// Start snapshots the quiz order and presents its first item.
func (s *SessionService) Start(ctx context.Context, sessionID string) (domain.ItemChangedPayload, error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return domain.ItemChangedPayload{}, err
	}
	defer unlock()

	var (
		payload domain.ItemChangedPayload
		first   domain.Item
	)
	session, err := s.update(ctx, sessionID, func(session *domain.Session) error {
		if session.Status != domain.StatusWaiting {
			return domain.ErrSessionNotWaiting
		}
		quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
		if err != nil {
			return err
		}
		order := snapshotOrder(quiz)
		if len(order) == 0 {
			return domain.ErrEmptyQuiz
		}
		first, _ = quiz.Item(order[0].ItemID)
		payload, err = s.itemPayload(ctx, first, len(order) == 1)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		session.Status = domain.StatusInProgress
		session.StartedAt = &now
		session.Order = order
		session.CurrentItem = first.ID
		session.ItemClosed = false
		return nil
	})
	if err != nil {
		return domain.ItemChangedPayload{}, err
	}

	s.broadcaster.Broadcast(ctx, session.ID, domain.EventItemChanged, payload)
	s.startCountdown(session.ID, first)
	log.Info().Str("session_id", session.ID).Str("item_id", first.ID).Int("items", len(session.Order)).Msg("session started")
	return payload, nil
}

// Advance moves the session to the next item of its snapshotted order.
func (s *SessionService) Advance(ctx context.Context, sessionID string) (AdvanceResult, error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return AdvanceResult{}, err
	}
	defer unlock()

	var (
		result AdvanceResult
		item   domain.Item
		next   int
	)
	session, err := s.update(ctx, sessionID, func(session *domain.Session) error {
		result = AdvanceResult{}
		if session.Status != domain.StatusInProgress {
			return domain.ErrSessionNotInProgress
		}
		quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
		if err != nil {
			return err
		}
		var sanitized []domain.OrderEntry
		sanitized, next = sanitizeOrder(session.Order, quiz, session.Position())
		dropped := len(session.Order) - len(sanitized)
		if dropped > 0 {
			log.Warn().Str("session_id", session.ID).Int("dropped", dropped).Msg("dropped unresolved items from session order")
		}

		if next >= len(sanitized) {
			result.EndOfSequence = true
			if dropped == 0 {
				return errUnchanged
			}
			session.Order = sanitized
			return nil
		}

		item, _ = quiz.Item(sanitized[next].ItemID)
		payload, err := s.itemPayload(ctx, item, next == len(sanitized)-1)
		if err != nil {
			return err
		}
		result.Item = &payload
		session.Order = sanitized
		session.CurrentItem = item.ID
		session.ItemClosed = false
		return nil
	})
	if result.EndOfSequence && (err == nil || errors.Is(err, errUnchanged)) {
		return result, nil
	}
	if err != nil {
		return AdvanceResult{}, err
	}

	s.broadcaster.Broadcast(ctx, session.ID, domain.EventItemChanged, *result.Item)
	s.startCountdown(session.ID, item)
	log.Info().Str("session_id", session.ID).Str("item_id", item.ID).Int("position", next).Msg("session advanced")
	return result, nil
}

// End completes the session and emits one report and activity log per roster
// member. Ending a completed session returns the stored record, and rebuilds
// the reports if an earlier End failed to save them.
func (s *SessionService) End(ctx context.Context, sessionID string) (EndResult, error) {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return EndResult{}, err
	}
	defer unlock()

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return EndResult{}, err
	}
	switch session.Status {
	case domain.StatusWaiting:
		return EndResult{}, domain.ErrSessionNotInProgress
	case domain.StatusCompleted:
		reports, err := s.reports.Reports(ctx, session.ID)
		if err != nil {
			return EndResult{}, err
		}
		if len(reports) > 0 || len(session.Roster) == 0 {
			return EndResult{Session: session, Reports: reports}, nil
		}
		log.Warn().Str("session_id", session.ID).Msg("completed session has no reports, rebuilding")
		return s.finish(ctx, session)
	}

	now := s.clock.Now().UTC()
	session.Status = domain.StatusCompleted
	session.EndedAt = &now
	session.ItemClosed = true
	if err := s.sessions.Update(ctx, session); err != nil {
		return EndResult{}, err
	}
	session.Version++
	s.countdown.Stop(session.ID)
	return s.finish(ctx, session)
}

// finish ranks, reports and announces a completed session. The caller holds
// the session lock, so no answer lands between the rerank and the report.
func (s *SessionService) finish(ctx context.Context, session domain.Session) (EndResult, error) {
	board, err := s.ranker.Rerank(ctx, session.ID)
	if err != nil {
		return EndResult{}, err
	}
	answers, err := s.answers.List(ctx, session.ID, "")
	if err != nil {
		return EndResult{}, fmt.Errorf("load answers: %w", err)
	}

	endedAt := s.clock.Now().UTC()
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	reports, logs := buildReports(session, board, answers, endedAt)
	if err := s.reports.SaveReports(ctx, reports, logs); err != nil {
		return EndResult{}, fmt.Errorf("save reports: %w", err)
	}
	s.dispatchReports(ctx, reports)

	s.broadcaster.Broadcast(ctx, session.ID, domain.EventSessionEnded, domain.SessionEndedPayload{
		SessionID:   session.ID,
		Leaderboard: board,
	})
	s.broadcaster.CloseRoom(session.ID)
	log.Info().Str("session_id", session.ID).Int("reports", len(reports)).Msg("session ended")
	return EndResult{Session: session, Reports: reports}, nil
}

// Disconnect reconciles the roster after a live connection dropped. Players
// only leave the roster while the session is still waiting; after the start
// they remain participants and may reconnect.
func (s *SessionService) Disconnect(ctx context.Context, sessionID, playerID string) error {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := s.update(ctx, sessionID, func(session *domain.Session) error {
		if session.Status != domain.StatusWaiting || !session.RemovePlayer(playerID) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.broadcastRoster(ctx, session)
	log.Info().Str("session_id", sessionID).Str("player_id", playerID).Msg("player left waiting session")
	return nil
}

// Get returns the stored session record.
func (s *SessionService) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Snapshot returns the full state of a session for resynchronization.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (SessionState, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	board, err := s.ranker.Read(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	state := SessionState{Session: session, Leaderboard: board}

	if session.Status == domain.StatusInProgress && session.CurrentItem != "" {
		quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
		if err != nil {
			return SessionState{}, err
		}
		if item, ok := quiz.Item(session.CurrentItem); ok {
			payload, err := s.itemPayload(ctx, item, session.Position() == len(session.Order)-1)
			if err != nil {
				return SessionState{}, err
			}
			state.Item = &payload
		}
		if itemID, remaining, ok := s.countdown.Remaining(sessionID); ok && itemID == session.CurrentItem {
			state.SecondsRemaining = &remaining
		}
	}
	return state, nil
}

// closeItem shuts the answer window of itemID if it is still current. Only
// the flag changes; the write is rejected if the session moved on meanwhile.
func (s *SessionService) closeItem(ctx context.Context, sessionID, itemID string) error {
	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.update(ctx, sessionID, func(session *domain.Session) error {
		if session.Status != domain.StatusInProgress || session.CurrentItem != itemID || session.ItemClosed {
			return errUnchanged
		}
		session.ItemClosed = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.broadcaster.Broadcast(ctx, sessionID, domain.EventItemClosed, domain.ItemClosedPayload{ItemID: itemID})
	return nil
}

// errUnchanged tells update that fn decided not to write.
var errUnchanged = errors.New("session unchanged")

const updateAttempts = 5

// update applies fn to a fresh copy of the session and stores the result as
// a versioned write. The caller holds the session lock; a write that still
// loses to another writer is retried from a fresh read. If fn returns
// errUnchanged nothing is written and the read session is returned with it.
func (s *SessionService) update(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	for attempt := 1; ; attempt++ {
		session, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		if err := fn(&session); err != nil {
			return session, err
		}
		err = s.sessions.Update(ctx, session)
		if err == nil {
			session.Version++
			return session, nil
		}
		if !errors.Is(err, domain.ErrStaleSession) || attempt == updateAttempts {
			return domain.Session{}, err
		}
		log.Debug().Str("session_id", sessionID).Int("attempt", attempt).Msg("session changed underneath, retrying")
	}
}

func (s *SessionService) startCountdown(sessionID string, item domain.Item) {
	if !item.IsQuestion() {
		s.countdown.Stop(sessionID)
		return
	}
	s.countdown.Start(sessionID, item.ID, item.TimerSeconds)
}

func (s *SessionService) itemPayload(ctx context.Context, item domain.Item, last bool) (domain.ItemChangedPayload, error) {
	view := domain.ItemView{
		ID:           item.ID,
		Kind:         item.Kind,
		QuestionKind: item.QuestionKind,
		Prompt:       item.Prompt,
		TimerSeconds: item.TimerSeconds,
		BasePoints:   item.BasePoints,
	}
	for _, opt := range item.Options {
		view.Options = append(view.Options, domain.OptionView{ID: opt.ID, Text: opt.Text})
	}
	if item.MediaRef != "" {
		url, err := s.media.ResolveURL(ctx, item.MediaRef)
		if err != nil {
			return domain.ItemChangedPayload{}, fmt.Errorf("resolve media for item %s: %w", item.ID, err)
		}
		view.MediaURL = url
	}
	return domain.ItemChangedPayload{Type: item.Kind, Item: view, IsLastItem: last}, nil
}

func (s *SessionService) broadcastRoster(ctx context.Context, session domain.Session) {
	profiles, err := s.profilesFor(ctx, session.Roster)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("roster enrichment failed")
	}
	players := make([]domain.PlayerProfile, 0, len(session.Roster))
	for _, id := range session.Roster {
		p, ok := profiles[id]
		if !ok {
			p = domain.PlayerProfile{ID: id}
		}
		players = append(players, p)
	}
	s.broadcaster.Broadcast(ctx, session.ID, domain.EventRosterChanged, domain.RosterPayload{
		SessionID: session.ID,
		Players:   players,
	})
}

// profilesFor resolves player ids concurrently. The returned map holds every
// profile resolved before the first failure.
func (s *SessionService) profilesFor(ctx context.Context, playerIDs []string) (map[string]domain.PlayerProfile, error) {
	return resolveProfiles(ctx, s.profiles, playerIDs)
}

func (s *SessionService) dispatchReports(ctx context.Context, reports []domain.Report) {
	detached := context.WithoutCancel(ctx)
	for _, report := range reports {
		go func(report domain.Report) {
			profile, err := s.profiles.GetProfile(detached, report.PlayerID)
			if err != nil {
				profile = domain.PlayerProfile{ID: report.PlayerID}
			}
			if err := s.notifier.Dispatch(detached, domain.Notification{Report: report, Profile: profile}); err != nil {
				log.Warn().Err(err).Str("session_id", report.SessionID).Str("player_id", report.PlayerID).Msg("report dispatch failed")
			}
		}(report)
	}
}

func resolveProfiles(ctx context.Context, provider ProfileProvider, playerIDs []string) (map[string]domain.PlayerProfile, error) {
	results := make([]domain.PlayerProfile, len(playerIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range playerIDs {
		g.Go(func() error {
			p, err := provider.GetProfile(gctx, id)
			if err != nil {
				return fmt.Errorf("profile %s: %w", id, err)
			}
			results[i] = p
			return nil
		})
	}
	err := g.Wait()

	out := make(map[string]domain.PlayerProfile, len(playerIDs))
	for i, id := range playerIDs {
		if results[i].ID != "" {
			out[id] = results[i]
		}
	}
	return out, err
}

// snapshotOrder copies the quiz's playable items in order.
func snapshotOrder(quiz domain.Quiz) []domain.OrderEntry {
	order := make([]domain.OrderEntry, 0, len(quiz.Items))
	for _, item := range quiz.Items {
		if item.Kind != domain.ItemQuestion && item.Kind != domain.ItemSlide {
			continue
		}
		order = append(order, domain.OrderEntry{ItemID: item.ID, Kind: item.Kind})
	}
	return order
}

// sanitizeOrder drops entries that no longer resolve to a question or slide
// of quiz and returns the index, in the sanitized list, of the first kept
// entry after position pos of the original list.
func sanitizeOrder(order []domain.OrderEntry, quiz domain.Quiz, pos int) ([]domain.OrderEntry, int) {
	sanitized := make([]domain.OrderEntry, 0, len(order))
	next := 0
	for i, entry := range order {
		item, ok := quiz.Item(entry.ItemID)
		if !ok || (item.Kind != domain.ItemQuestion && item.Kind != domain.ItemSlide) {
			continue
		}
		sanitized = append(sanitized, domain.OrderEntry{ItemID: item.ID, Kind: item.Kind})
		if i <= pos {
			next = len(sanitized)
		}
	}
	return sanitized, next
}

func buildReports(session domain.Session, board domain.Leaderboard, answers []domain.Answer, now time.Time) ([]domain.Report, []domain.ActivityLog) {
	type tally struct{ total, correct int }
	tallies := make(map[string]*tally)
	for _, a := range answers {
		t, ok := tallies[a.PlayerID]
		if !ok {
			t = &tally{}
			tallies[a.PlayerID] = t
		}
		t.total++
		if a.IsCorrect {
			t.correct++
		}
	}
	entries := make(map[string]domain.LeaderboardEntry, len(board.Entries))
	for _, e := range board.Entries {
		entries[e.PlayerID] = e
	}

	reports := make([]domain.Report, 0, len(session.Roster))
	logs := make([]domain.ActivityLog, 0, len(session.Roster))
	for _, playerID := range session.Roster {
		var total, correct int
		if t, ok := tallies[playerID]; ok {
			total, correct = t.total, t.correct
		}
		var score float64
		var rank *int
		if e, ok := entries[playerID]; ok {
			score = e.Score
			r := e.Rank
			rank = &r
		}
		reports = append(reports, domain.Report{
			ID:           uuid.NewString(),
			SessionID:    session.ID,
			QuizID:       session.QuizID,
			PlayerID:     playerID,
			TotalAnswers: total,
			Correct:      correct,
			Incorrect:    total - correct,
			Score:        score,
			Rank:         rank,
			CreatedAt:    now,
		})
		logs = append(logs, domain.ActivityLog{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			QuizID:    session.QuizID,
			PlayerID:  playerID,
			Score:     score,
			Rank:      rank,
			CreatedAt: now,
		})
	}
	return reports, logs
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, string, string, any) {}
func (nopBroadcaster) TimerTick(context.Context, string, string, int) {}
func (nopBroadcaster) CloseRoom(string)                               {}

type passthroughMedia struct{}

func (passthroughMedia) ResolveURL(_ context.Context, ref string) (string, error) { return ref, nil }

type nopNotifier struct{}

func (nopNotifier) Dispatch(context.Context, domain.Notification) error { return nil }
