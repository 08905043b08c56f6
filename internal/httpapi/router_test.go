package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/engine"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/optimizer"
)

type fakeEngine struct {
	mu           sync.Mutex
	registry     *account.Registry
	tunables     *config.Tunables
	bootstrapped []int64
	banned       map[int64]string
	ranked       []optimizer.Ranked
	rankedErr    error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		registry: account.NewRegistry(),
		tunables: config.NewTunables(config.NewDefaultSettings()),
		banned:   map[int64]string{},
	}
}

func (f *fakeEngine) Registry() *account.Registry { return f.registry }
func (f *fakeEngine) Tunables() *config.Tunables  { return f.tunables }

func (f *fakeEngine) Bootstrap(_ context.Context, id int64) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.banned[id]; ok {
		return nil, engine.ErrAccountBanned
	}
	if id > 100 {
		return nil, engine.ErrUnknownAccount
	}
	f.bootstrapped = append(f.bootstrapped, id)
	acct := account.New(id, fmt.Sprintf("555%04d", id), "1", "param")
	f.registry.Put(acct)
	return acct, nil
}

func (f *fakeEngine) Cancel(id int64) (bool, error) {
	acct, ok := f.registry.Get(id)
	if !ok {
		return false, engine.ErrUnknownAccount
	}
	return acct.Cancel(), nil
}

func (f *fakeEngine) Ban(id int64, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[id] = note
	return nil
}

func (f *fakeEngine) RankedCatalog(context.Context, int64) ([]optimizer.Ranked, error) {
	return f.ranked, f.rankedErr
}

type fixture struct {
	eng    *fakeEngine
	db     *database.DB
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenAndMigrate(t.TempDir() + "/api.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{eng: newFakeEngine(), db: db}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pawsfarm_up 1\n"))
	})
	f.server = httptest.NewServer(NewRouter(f.eng, db, Options{Metrics: metrics}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, body = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "pawsfarm_up 1")
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t)
	f.eng.registry.Put(account.New(2, "5550002", "1", "p"))
	f.eng.registry.Put(account.New(1, "5550001", "1", ""))

	resp, body := f.do(t, http.MethodGet, "/accounts/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []account.Status
	require.NoError(t, json.Unmarshal([]byte(body), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, int64(1), statuses[0].ID)
	assert.False(t, statuses[0].Valid)
	assert.True(t, statuses[1].Valid)
}

func TestGetAccount(t *testing.T) {
	f := newFixture(t)
	f.eng.registry.Put(account.New(1, "5550001", "1", "p"))

	resp, _ := f.do(t, http.MethodGet, "/accounts/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/accounts/2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/accounts/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBootstrapErrors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/accounts/7/bootstrap", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/accounts/700/bootstrap", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.eng.banned[8] = "x"
	resp, _ = f.do(t, http.MethodPost, "/accounts/8/bootstrap", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelAndBan(t *testing.T) {
	f := newFixture(t)
	f.eng.registry.Put(account.New(1, "5550001", "1", "p"))

	resp, body := f.do(t, http.MethodPost, "/accounts/1/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"canceled":true`)
	_, body = f.do(t, http.MethodPost, "/accounts/1/cancel", "")
	assert.Contains(t, body, `"canceled":false`)

	resp, _ = f.do(t, http.MethodPost, "/accounts/1/ban", `{"note":"reported"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reported", f.eng.banned[1])

	resp, _ = f.do(t, http.MethodPost, "/accounts/2/ban", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "marked banned via admin API", f.eng.banned[2])
}

func TestLoginHandOff(t *testing.T) {
	f := newFixture(t)
	row, err := f.db.CreateAccount("5550001", "1", "")
	require.NoError(t, err)
	require.NoError(t, f.db.CreateLoginRequest("req-1", row.ID, 1))

	// an escalation is waiting on the account: only store the parameter
	acct := account.New(row.ID, row.Phone, "1", "")
	acct.BeginEscalation()
	f.eng.registry.Put(acct)

	resp, body := f.do(t, http.MethodPost, fmt.Sprintf("/accounts/%d/login", row.ID), `{"login_param":"user=abc","source":"browser"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, body, `"bootstrapped":false`)
	assert.Empty(t, f.eng.bootstrapped)

	info, err := f.db.LatestLoginInfo(row.ID)
	require.NoError(t, err)
	assert.Equal(t, "user=abc", info.LoginParam)
	assert.Equal(t, "browser", info.Source)
	pending, err := f.db.ListPendingLoginRequests()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// nothing running: the account is bootstrapped
	acct.EndEscalation()
	resp, body = f.do(t, http.MethodPost, fmt.Sprintf("/accounts/%d/login", row.ID), `{"login_param":"user=def"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, body, `"bootstrapped":true`)
	assert.Equal(t, []int64{row.ID}, f.eng.bootstrapped)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/accounts/1/login", `{"login_param":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/accounts/1/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/accounts/99/login", `{"login_param":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPendingLoginRequests(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/login-requests", "")
	assert.JSONEq(t, `[]`, body)

	row, err := f.db.CreateAccount("5550001", "1", "")
	require.NoError(t, err)
	require.NoError(t, f.db.CreateLoginRequest("req-1", row.ID, 2))

	_, body = f.do(t, http.MethodGet, "/login-requests", "")
	var reqs []database.LoginRequest
	require.NoError(t, json.Unmarshal([]byte(body), &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, "5550001", reqs[0].Phone)
	assert.Equal(t, 2, reqs[0].Attempt)
}

func TestRecentErrors(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/errors", "")
	assert.JSONEq(t, `[]`, body)

	row, err := f.db.CreateAccount("5550002", "1", "")
	require.NoError(t, err)
	for _, msg := range []string{"first", "second", "third"} {
		_, err := f.db.LogError(&row.ID, "mine", "error", msg)
		require.NoError(t, err)
	}

	_, body = f.do(t, http.MethodGet, "/errors?limit=2", "")
	var errs []database.ErrorLog
	require.NoError(t, json.Unmarshal([]byte(body), &errs))
	require.Len(t, errs, 2)
	assert.Equal(t, "third", errs[0].ErrorMessage)
	require.NotNil(t, errs[0].AccountID)
	assert.Equal(t, row.ID, *errs[0].AccountID)
}

func TestSettingsUpdates(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPut, "/settings/mine-count", `{"min":50,"max":50}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPut, "/settings/mine-count", `{"min":50,"max":70}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"mine_count_min":50`)
	lo, hi := f.eng.tunables.MineCountRange()
	assert.Equal(t, int64(50), lo)
	assert.Equal(t, int64(70), hi)

	resp, _ = f.do(t, http.MethodPut, "/settings/upgrade-ceiling", `{"ceiling":"300.5"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, f.eng.tunables.RatioCeiling().Equal(decimal.RequireFromString("300.5")))

	resp, _ = f.do(t, http.MethodPut, "/settings/upgrade-ceiling", `{"ceiling":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPut, "/settings/upgrade-ceiling", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/settings/", "")
	assert.Contains(t, body, `"ratio_ceiling":"300.5"`)
}

func TestRankedCatalog(t *testing.T) {
	f := newFixture(t)
	f.eng.ranked = optimizer.Rank([]optimizer.Entry{
		{ID: 1, Name: "A", Cost: decimal.NewFromInt(500000), Profit: decimal.NewFromInt(1000), Available: true},
		{ID: 2, Name: "B", Cost: decimal.NewFromInt(100000), Profit: decimal.NewFromInt(500), Available: true},
	})

	resp, body := f.do(t, http.MethodGet, "/accounts/1/upgrades", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []struct {
		ID    int64  `json:"id"`
		Ratio string `json:"ratio"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, "200", out[0].Ratio)

	f.eng.rankedErr = fmt.Errorf("cards: %w", game.ErrMalformedResponse)
	resp, _ = f.do(t, http.MethodGet, "/accounts/1/upgrades", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
