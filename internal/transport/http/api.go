package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/app"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/rs/zerolog/log"
)

// API exposes the session lifecycle, the answer ledger and the leaderboard
// over JSON.
type API struct {
	sessions *app.SessionService
}

func NewAPI(sessions *app.SessionService) *API {
	return &API{sessions: sessions}
}

// Register mounts the REST routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", a.createSession)
	mux.HandleFunc("POST /api/join/{code}", a.joinSession)
	mux.HandleFunc("GET /api/sessions/{id}", a.getSession)
	mux.HandleFunc("POST /api/sessions/{id}/start", a.startSession)
	mux.HandleFunc("POST /api/sessions/{id}/advance", a.advanceSession)
	mux.HandleFunc("POST /api/sessions/{id}/end", a.endSession)
	mux.HandleFunc("POST /api/sessions/{id}/questions/{questionId}/answers", a.submitAnswer)
	mux.HandleFunc("GET /api/sessions/{id}/answers", a.listAnswers)
	mux.HandleFunc("GET /api/sessions/{id}/questions/{questionId}/stats", a.questionStats)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard", a.leaderboard)
	mux.HandleFunc("GET /api/sessions/{id}/leaderboard/{playerId}", a.playerStanding)
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
	HostID string `json:"hostId"`
}

type joinRequest struct {
	PlayerID string `json:"playerId"`
}

type submitAnswerRequest struct {
	PlayerID  string             `json:"playerId"`
	Answer    domain.AnswerValue `json:"answer"`
	TimeTaken float64            `json:"timeTaken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.sessions.Create(r.Context(), req.QuizID, req.HostID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := a.sessions.Join(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := a.sessions.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	item, err := a.sessions.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) advanceSession(w http.ResponseWriter, r *http.Request) {
	res, err := a.sessions.Advance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	res, err := a.sessions.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.sessions.Ledger().Submit(r.Context(), app.SubmitRequest{
		SessionID:  r.PathValue("id"),
		QuestionID: r.PathValue("questionId"),
		PlayerID:   req.PlayerID,
		Value:      req.Answer,
		TimeTaken:  req.TimeTaken,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) listAnswers(w http.ResponseWriter, r *http.Request) {
	views, err := a.sessions.Ledger().Query(r.Context(), r.PathValue("id"), r.URL.Query().Get("questionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) questionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.sessions.Ledger().Stats(r.Context(), r.PathValue("id"), r.PathValue("questionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.sessions.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	board, err := a.sessions.Ranker().Read(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) playerStanding(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := a.sessions.Ranker().ReadPlayer(r.Context(), r.PathValue("id"), r.PathValue("playerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, fmt.Errorf("leaderboard entry %w", domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("invalid request body: %v: %w", err, domain.ErrValidation))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}
