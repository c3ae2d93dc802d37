package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rpsarena/internal/model"
	"rpsarena/internal/service"
)

// playFunc is either of the two choice-submission entry points.
type playFunc func(ctx context.Context, sender string, choice int, opponent, label string) (*model.Session, error)

// GameHandler exposes the session lifecycle: start, play, settle, withdraw.
type GameHandler struct {
	games *service.GameService
}

// NewGameHandler creates a new GameHandler instance.
func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

// Routes mounts the game session endpoints.
func (h *GameHandler) Routes(r chi.Router) {
	r.Post("/", h.start)
	r.Post("/player-one", h.playerOne)
	r.Post("/player-two", h.playerTwo)
	r.Post("/declare", h.declare)
	r.Post("/withdraw", h.withdraw)
	r.Get("/{label}", h.session)
}

func (h *GameHandler) start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Opponent       string `json:"opponent"`
		Label          string `json:"label"`
		TimeoutSeconds int64  `json:"timeout_seconds"`
	}
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.games.StartGame(r.Context(), Sender(r.Context()), req.Opponent, req.Label, req.TimeoutSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *GameHandler) playerOne(w http.ResponseWriter, r *http.Request) {
	h.play(w, r, h.games.PlayerOnePlay)
}

func (h *GameHandler) playerTwo(w http.ResponseWriter, r *http.Request) {
	h.play(w, r, h.games.PlayerTwoPlay)
}

func (h *GameHandler) play(w http.ResponseWriter, r *http.Request, playFn playFunc) {
	var req struct {
		Choice   int    `json:"choice"`
		Opponent string `json:"opponent"`
		Label    string `json:"label"`
	}
	if !decode(w, r, &req) {
		return
	}

	sess, err := playFn(r.Context(), Sender(r.Context()), req.Choice, req.Opponent, req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *GameHandler) declare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label    string `json:"label"`
		Opponent string `json:"opponent"`
	}
	if !decode(w, r, &req) {
		return
	}

	sess, err := h.games.DeclareWinner(r.Context(), Sender(r.Context()), req.Label, req.Opponent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *GameHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !decode(w, r, &req) {
		return
	}

	amount, err := h.games.WithdrawPrize(r.Context(), Sender(r.Context()), req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

func (h *GameHandler) session(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	sess, err := h.games.Session(r.Context(), Sender(r.Context()), label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
