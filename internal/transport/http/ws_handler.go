package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"group-quiz-service/internal/app"
	"group-quiz-service/internal/domain"
	"group-quiz-service/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	messageAnswerResult = "answer_result"
)

// Authorizer decides who may start, stop and reset quizzes.
type Authorizer interface {
	IsAdmin(userID string) bool
}

type WSHandler struct {
	registry    *app.Registry
	leaderboard app.LeaderboardCache
	admins      Authorizer
	hub         *Hub
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	upgrader    websocket.Upgrader
}

func NewWSHandler(registry *app.Registry, leaderboard app.LeaderboardCache, admins Authorizer, hub *Hub, m *metrics.Metrics, log logrus.FieldLogger) *WSHandler {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &WSHandler{
		registry:    registry,
		leaderboard: leaderboard,
		admins:      admins,
		hub:         hub,
		metrics:     m,
		log:         log,
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

type quizPayload struct {
	QuizID string `json:"quizId"`
}

type answerPayload struct {
	OptionIndex *int `json:"optionIndex"`
}

type answerResult struct {
	Outcome domain.AnswerOutcome `json:"outcome"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and joins the connection to its group.
// Everything the group's session broadcasts reaches the connection through the hub.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if groupID == "" || userID == "" || displayName == "" {
		http.Error(w, "missing groupId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"group_id": groupID, "participant_id": userID})
	m := h.hub.join(groupID, userID)
	writerDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		defer m.close()
		for {
			select {
			case msg := <-m.send:
				if err := conn.WriteJSON(msg); err != nil {
					log.WithError(err).Debug("ws write failed")
					_ = conn.Close()
					return
				}
			case <-m.done:
				return
			}
		}
	}()

	log.WithField("name", displayName).Debug("member joined")
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handle(r.Context(), m, inbound)
	}

	h.hub.leave(m)
	<-writerDone
	log.Debug("member left")
}

func (h *WSHandler) handle(ctx context.Context, m *member, inbound inboundMessage) {
	h.metrics.Commands.WithLabelValues(commandLabel(inbound.Type)).Inc()

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.OptionIndex == nil {
			m.reply(errorMessage("invalid answer payload"))
			return
		}
		outcome := h.registry.RouteAnswer(ctx, m.groupID, m.userID, *payload.OptionIndex)
		m.reply(domain.Message{Type: messageAnswerResult, Payload: answerResult{Outcome: outcome}})

	case "start":
		if !h.requireAdmin(m) {
			return
		}
		var payload quizPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID == "" {
			m.reply(errorMessage("invalid start payload"))
			return
		}
		// the question broadcast is the success signal
		if _, err := h.registry.Start(ctx, m.groupID, payload.QuizID); err != nil {
			m.reply(errorMessage(describe(err)))
		}

	case "stop":
		if !h.requireAdmin(m) {
			return
		}
		if err := h.registry.Stop(ctx, m.groupID); err != nil {
			m.reply(errorMessage(describe(err)))
		}

	case "retry":
		if !h.requireAdmin(m) {
			return
		}
		// success ends with a quiz_ended broadcast
		if err := h.registry.RetryGrading(ctx, m.groupID); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				m.reply(errorMessage("no failed quiz to retry in this group"))
				return
			}
			h.log.WithError(err).WithField("group_id", m.groupID).Warn("grading retry failed")
			m.reply(errorMessage(describe(err)))
		}

	case "leaderboard":
		var payload quizPayload
		_ = json.Unmarshal(inbound.Payload, &payload)
		quizID := payload.QuizID
		if quizID == "" {
			session, ok := h.registry.Get(m.groupID)
			if !ok {
				m.reply(errorMessage("quizId required when no quiz is running"))
				return
			}
			quizID = session.QuizID()
		}
		lb, err := h.leaderboard.Get(ctx, quizID)
		if err != nil {
			h.log.WithError(err).WithField("quiz_id", quizID).Warn("leaderboard lookup failed")
			m.reply(errorMessage("leaderboard unavailable"))
			return
		}
		m.reply(domain.Message{Type: domain.MessageLeaderboard, Payload: lb})

	case "reset":
		if !h.requireAdmin(m) {
			return
		}
		var payload quizPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID == "" {
			m.reply(errorMessage("invalid reset payload"))
			return
		}
		if err := h.leaderboard.Reset(ctx, payload.QuizID); err != nil {
			h.log.WithError(err).WithField("quiz_id", payload.QuizID).Error("leaderboard reset failed")
			m.reply(errorMessage("leaderboard reset failed"))
			return
		}
		h.log.WithFields(logrus.Fields{"quiz_id": payload.QuizID, "participant_id": m.userID}).Info("leaderboard reset")
		h.hub.Broadcast(m.groupID, domain.Message{
			Type:    domain.MessageLeaderboard,
			Payload: domain.Leaderboard{QuizID: payload.QuizID, Entries: []domain.LeaderboardEntry{}},
		})

	default:
		m.reply(errorMessage("unsupported message type"))
	}
}

// commandLabel bounds the metric label set to the commands the handler knows.
func commandLabel(kind string) string {
	switch kind {
	case "answer", "start", "stop", "retry", "leaderboard", "reset":
		return kind
	}
	return "unknown"
}

func (h *WSHandler) requireAdmin(m *member) bool {
	if h.admins != nil && h.admins.IsAdmin(m.userID) {
		return true
	}
	m.reply(errorMessage(describe(domain.ErrNotAdmin)))
	return false
}

func errorMessage(text string) domain.Message {
	return domain.Message{Type: domain.MessageError, Payload: errorPayload{Message: text}}
}

// describe turns engine errors into member-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyActive):
		return "a quiz is already running in this group"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "no quiz is running in this group"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quiz not found"
	case errors.Is(err, domain.ErrInvalidQuiz):
		return "quiz definition is invalid"
	case errors.Is(err, domain.ErrNotAdmin):
		return "only admins can do that"
	case errors.Is(err, domain.ErrScoreStoreUnavailable):
		return "scores could not be saved, try again later"
	case errors.Is(err, domain.ErrShuttingDown):
		return "server is shutting down"
	default:
		return "internal error"
	}
}
