package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/app"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type WSHandler struct {
	sessions *app.SessionService
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string             `json:"questionId"`
	Answer     domain.AnswerValue `json:"answer"`
	TimeTaken  float64            `json:"timeTaken"`
}

type connectedPayload struct {
	ConnectionID string           `json:"connectionId"`
	State        app.SessionState `json:"state"`
}

type answerResult struct {
	QuestionID    string                  `json:"questionId"`
	IsCorrect     bool                    `json:"isCorrect"`
	PointsAwarded float64                 `json:"pointsAwarded"`
	Standing      domain.LeaderboardEntry `json:"standing"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ServeWS upgrades a request into a live session connection. Participants
// pass sessionId and playerId, hosts pass sessionId and hostId. A participant
// who has not joined a waiting session yet is joined on connect.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, playerID, hostID := q.Get("sessionId"), q.Get("playerId"), q.Get("hostId")
	if sessionID == "" || (playerID == "") == (hostID == "") {
		http.Error(w, "sessionId and exactly one of playerId or hostId are required", http.StatusBadRequest)
		return
	}

	session, err := h.admit(r.Context(), sessionID, playerID, hostID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	client := h.hub.NewClient(conn)
	go client.WritePump()

	// The request context ends with the handler; connection-scoped work uses
	// its own context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	defer h.hub.Leave(ctx, client)

	reg := domain.Registration{SessionID: session.ID, PlayerID: playerID, HostID: hostID, DisplayName: q.Get("name")}
	if err := h.hub.JoinRoom(ctx, client, reg); err != nil {
		h.sendError(client, session.ID, err)
		return
	}
	if hostID != "" {
		h.hub.Subscribe(client, app.HostRoom(hostID))
	}

	state, err := h.sessions.Snapshot(ctx, session.ID)
	if err != nil {
		h.sendError(client, session.ID, err)
		return
	}
	h.hub.Send(client, session.ID, domain.EventConnected, connectedPayload{ConnectionID: client.ID, State: state})

	client.ReadPump(ctx, func(ctx context.Context, c *realtime.Client, message []byte) {
		h.handleMessage(ctx, c, reg, message)
	})
}

// admit checks that the caller may attach to the session.
func (h *WSHandler) admit(ctx context.Context, sessionID, playerID, hostID string) (domain.Session, error) {
	session, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.StatusCompleted {
		return domain.Session{}, domain.ErrSessionNotInProgress
	}
	if hostID != "" {
		if session.HostID != hostID {
			return domain.Session{}, domain.ErrPlayerNotInSession
		}
		return session, nil
	}
	if session.HasPlayer(playerID) {
		return session, nil
	}
	if session.Status != domain.StatusWaiting {
		return domain.Session{}, domain.ErrPlayerNotInSession
	}
	joined, err := h.sessions.Join(ctx, session.JoinCode, playerID)
	if errors.Is(err, domain.ErrAlreadyJoined) {
		return session, nil
	}
	return joined, err
}

func (h *WSHandler) handleMessage(ctx context.Context, c *realtime.Client, reg domain.Registration, message []byte) {
	var inbound inboundMessage
	if err := json.Unmarshal(message, &inbound); err != nil {
		h.hub.Send(c, reg.SessionID, domain.EventError, errorPayload{Message: "invalid message", Status: http.StatusBadRequest})
		return
	}

	switch inbound.Type {
	case "ping":
		h.hub.Send(c, reg.SessionID, domain.EventPong, struct{}{})
	case "answer":
		if reg.PlayerID == "" {
			h.sendError(c, reg.SessionID, domain.ErrPlayerNotInSession)
			return
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			h.hub.Send(c, reg.SessionID, domain.EventError, errorPayload{Message: "invalid answer payload", Status: http.StatusBadRequest})
			return
		}
		res, err := h.sessions.Ledger().Submit(ctx, app.SubmitRequest{
			SessionID:  reg.SessionID,
			QuestionID: payload.QuestionID,
			PlayerID:   reg.PlayerID,
			Value:      payload.Answer,
			TimeTaken:  payload.TimeTaken,
		})
		if err != nil {
			h.sendError(c, reg.SessionID, err)
			return
		}
		result := answerResult{
			QuestionID:    payload.QuestionID,
			IsCorrect:     res.Answer.IsCorrect,
			PointsAwarded: res.Answer.PointsAwarded,
		}
		for _, e := range res.Leaderboard.Entries {
			if e.PlayerID == reg.PlayerID {
				result.Standing = e
				break
			}
		}
		h.hub.Send(c, reg.SessionID, domain.EventAnswerResult, result)
	case domain.EventTimerTick:
		// The server countdown is the only timer source.
		log.Debug().Str("connection_id", c.ID).Str("session_id", reg.SessionID).Msg("ignoring client timer tick")
	default:
		h.hub.Send(c, reg.SessionID, domain.EventError, errorPayload{Message: "unsupported message type", Status: http.StatusBadRequest})
	}
}

func (h *WSHandler) sendError(c *realtime.Client, sessionID string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("ws request failed")
		msg = "internal error"
	}
	h.hub.Send(c, sessionID, domain.EventError, errorPayload{Message: msg, Status: status})
}
