package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rpsarena/internal/service"
)

// DepositHandler exposes the deposit ledger.
type DepositHandler struct {
	deposits *service.DepositService
}

// NewDepositHandler creates a new DepositHandler instance.
func NewDepositHandler(deposits *service.DepositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

// Routes mounts the deposit ledger endpoints.
func (h *DepositHandler) Routes(r chi.Router) {
	r.Post("/", h.deposit)
	r.Post("/withdraw", h.withdraw)
	r.Get("/top", h.top)
	r.Get("/{owner}", h.balance)
	r.Get("/{owner}/history", h.history)
}

func (h *DepositHandler) deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	balance, err := h.deposits.Deposit(r.Context(), Sender(r.Context()), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *DepositHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	balance, err := h.deposits.Withdraw(r.Context(), Sender(r.Context()), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *DepositHandler) balance(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	balance, err := h.deposits.BalanceOf(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "balance": balance})
}

func (h *DepositHandler) top(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	accounts, err := h.deposits.TopAccounts(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *DepositHandler) history(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.deposits.History(r.Context(), owner, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
