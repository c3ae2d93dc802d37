package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rpsarena/internal/config"
	"rpsarena/internal/service"
	"rpsarena/internal/token"
)

// TokenHandler exposes the token ledger: mint (admin only), approvals,
// and plain transfers. The escrow core only needs approvals in place
// before deposits.
type TokenHandler struct {
	ledger *token.Ledger
	cfg    *config.Config
}

// NewTokenHandler creates a new TokenHandler instance.
func NewTokenHandler(ledger *token.Ledger, cfg *config.Config) *TokenHandler {
	return &TokenHandler{ledger: ledger, cfg: cfg}
}

// Routes mounts the token ledger endpoints.
func (h *TokenHandler) Routes(r chi.Router) {
	r.Post("/mint", h.mint)
	r.Post("/approve", h.approve)
	r.Post("/transfer", h.transfer)
	r.Get("/balance/{owner}", h.balance)
	r.Get("/allowance/{owner}/{spender}", h.allowance)
}

func (h *TokenHandler) mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    int64  `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	if !h.cfg.IsAdmin(Sender(r.Context())) {
		writeError(w, service.ErrUnauthorized)
		return
	}

	if err := h.ledger.Mint(r.Context(), req.Recipient, req.Amount); err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.ledger.BalanceOf(r.Context(), req.Recipient)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.Recipient, "balance": balance})
}

func (h *TokenHandler) approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spender string `json:"spender"`
		Amount  int64  `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.ledger.Approve(r.Context(), Sender(r.Context()), req.Spender, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spender": req.Spender, "amount": req.Amount})
}

func (h *TokenHandler) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    int64  `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.ledger.Transfer(r.Context(), Sender(r.Context()), req.Recipient, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipient": req.Recipient, "amount": req.Amount})
}

func (h *TokenHandler) balance(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	balance, err := h.ledger.BalanceOf(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "balance": balance})
}

func (h *TokenHandler) allowance(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	spender := chi.URLParam(r, "spender")
	amount, err := h.ledger.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "spender": spender, "amount": amount})
}
