package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/engine"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/logging"
)

type handler struct {
	eng    Engine
	store  Store
	logger *logging.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownAccount), errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAccountBanned):
		status = http.StatusConflict
	case errors.Is(err, game.ErrMalformedResponse):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorWithContext("request failed", err, map[string]interface{}{"path": r.URL.Path})
	}
	http.Error(w, err.Error(), status)
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts := h.eng.Registry().List()
	out := make([]account.Status, 0, len(accts))
	for _, a := range accts {
		out = append(out, a.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	acct, ok := h.eng.Registry().Get(id)
	if !ok {
		h.fail(w, r, engine.ErrUnknownAccount)
		return
	}
	writeJSON(w, http.StatusOK, acct.Status())
}

func (h *handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	acct, err := h.eng.Bootstrap(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acct.Status())
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	canceled, err := h.eng.Cancel(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "canceled": canceled})
}

type banReq struct {
	Note string `json:"note"`
}

func (h *handler) ban(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req banReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	}
	if strings.TrimSpace(req.Note) == "" {
		req.Note = "marked banned via admin API"
	}
	if err := h.eng.Ban(id, req.Note); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "banned": true})
}

type loginReq struct {
	LoginParam string `json:"login_param"`
	Source     string `json:"source"`
}

// login accepts a freshly minted login parameter. An escalation waiting on
// the account picks it up; an account with no running jobs is bootstrapped.
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.LoginParam = strings.TrimSpace(req.LoginParam)
	if req.LoginParam == "" {
		http.Error(w, "login_param required", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	if err := h.store.SaveLoginInfo(id, req.LoginParam, req.Source); err != nil {
		h.fail(w, r, err)
		return
	}

	acct, live := h.eng.Registry().Get(id)
	if live && !acct.Canceled() && (acct.Escalating() || acct.Started()) {
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "bootstrapped": false})
		return
	}
	if _, err := h.eng.Bootstrap(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "bootstrapped": true})
}

func (h *handler) rankedCatalog(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	ranked, err := h.eng.RankedCatalog(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (h *handler) upgradeLog(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	recs, err := h.store.ListUpgrades(id, limitParam(r, 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) miningLog(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	recs, err := h.store.ListMining(id, limitParam(r, 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) pendingLogins(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.store.ListPendingLoginRequests()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*database.LoginRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *handler) recentErrors(w http.ResponseWriter, r *http.Request) {
	errs, err := h.store.GetRecentErrors(limitParam(r, 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if errs == nil {
		errs = []*database.ErrorLog{}
	}
	writeJSON(w, http.StatusOK, errs)
}

type settingsResp struct {
	MineCountMin int64  `json:"mine_count_min"`
	MineCountMax int64  `json:"mine_count_max"`
	RatioCeiling string `json:"ratio_ceiling"`
}

func (h *handler) currentSettings() settingsResp {
	t := h.eng.Tunables()
	lo, hi := t.MineCountRange()
	return settingsResp{MineCountMin: lo, MineCountMax: hi, RatioCeiling: t.RatioCeiling().String()}
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentSettings())
}

type mineCountReq struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

func (h *handler) setMineCount(w http.ResponseWriter, r *http.Request) {
	var req mineCountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := h.eng.Tunables().SetMineCountRange(req.Min, req.Max); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.InfoWithContext("mine count range changed", map[string]interface{}{"min": req.Min, "max": req.Max})
	writeJSON(w, http.StatusOK, h.currentSettings())
}

type ceilingReq struct {
	Ceiling *decimal.Decimal `json:"ceiling"`
}

func (h *handler) setCeiling(w http.ResponseWriter, r *http.Request) {
	var req ceilingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Ceiling == nil {
		http.Error(w, "ceiling required", http.StatusBadRequest)
		return
	}
	if err := h.eng.Tunables().SetRatioCeiling(*req.Ceiling); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.InfoWithContext("upgrade ratio ceiling changed", map[string]interface{}{"ceiling": req.Ceiling.String()})
	writeJSON(w, http.StatusOK, h.currentSettings())
}
