package http

import (
	"encoding/json"
	"net/http"

	"group-quiz-service/internal/app"
	"github.com/sirupsen/logrus"
)

// LeaderboardHandler serves GET /leaderboard?quizId=.
type LeaderboardHandler struct {
	leaderboard app.LeaderboardCache
	log         logrus.FieldLogger
}

func NewLeaderboardHandler(leaderboard app.LeaderboardCache, log logrus.FieldLogger) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, log: log}
}

func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	lb, err := h.leaderboard.Get(r.Context(), quizID)
	if err != nil {
		h.log.WithError(err).WithField("quiz_id", quizID).Warn("leaderboard lookup failed")
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lb)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// NewMux wires the websocket, leaderboard, health and metrics endpoints.
func NewMux(ws *WSHandler, leaderboard *LeaderboardHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Healthz)
	mux.HandleFunc("/ws", ws.ServeWS)
	mux.Handle("/leaderboard", leaderboard)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
