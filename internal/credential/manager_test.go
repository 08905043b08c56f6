package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/game"
)

type fakeExchanger struct {
	calls  atomic.Int32
	delay  time.Duration
	status func(param string) int
}

func (f *fakeExchanger) Authorize(_ context.Context, param string) *game.Response {
	f.calls.Add(1)
	time.Sleep(f.delay)
	status := 200
	if f.status != nil {
		status = f.status(param)
	}
	if status != 200 {
		return &game.Response{Status: status, Outcome: game.Classify(status)}
	}
	return &game.Response{
		Status:  200,
		Outcome: game.OutcomeSuccess,
		Body:    []byte(`{"access_token":"tok-` + param + `","balance":1000,"max_energy":500,"earn_per_tap":2}`),
	}
}

type fakeReacquirer struct {
	calls  atomic.Int32
	result func(attempt int) (bool, error)
	param  string
}

func (f *fakeReacquirer) Reacquire(_ context.Context, acct *account.Account, attempt int) (bool, error) {
	f.calls.Add(1)
	ok, err := f.result(attempt)
	if ok {
		acct.SetLoginParam(f.param)
	}
	return ok, err
}

func fastOptions() Options {
	return Options{MaxLoginAttempts: 3, RetryPause: 0}
}

func invalidAccount() *account.Account {
	a := account.New(1, "5550100", "+1", "good")
	a.MarkInvalid()
	return a
}

func TestConcurrentCallersShareOneExchange(t *testing.T) {
	ex := &fakeExchanger{delay: 20 * time.Millisecond}
	m := NewManager(ex, nil, nil, fastOptions())
	acct := invalidAccount()

	const callers = 16
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Reauthorize(context.Background(), acct)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ex.calls.Load())
	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
	assert.True(t, acct.Valid())
	assert.Equal(t, "tok-good", acct.Token())
	assert.Equal(t, int64(1000), acct.Profile().Balance)
}

func TestUnavailableLeavesInvalidWithoutEscalation(t *testing.T) {
	ex := &fakeExchanger{status: func(string) int { return 503 }}
	re := &fakeReacquirer{result: func(int) (bool, error) { return true, nil }}
	m := NewManager(ex, re, nil, fastOptions())
	acct := invalidAccount()

	assert.False(t, m.Reauthorize(context.Background(), acct))
	m.Wait()

	assert.False(t, acct.Valid())
	assert.Equal(t, int32(0), re.calls.Load())
}

func TestAuthorizedHookReceivesProfile(t *testing.T) {
	m := NewManager(&fakeExchanger{}, nil, nil, fastOptions())
	var got game.Payload
	m.SetHooks(Hooks{Authorized: func(_ context.Context, _ *account.Account, p game.Payload) { got = p }})

	assert.Equal(t, ResultAuthorized, m.Refresh(context.Background(), invalidAccount()))
	require.NotNil(t, got)
	assert.Equal(t, int64(500), got.IntOr("max_energy", 0))
}

func TestRejectedLoginEscalatesThenDies(t *testing.T) {
	ex := &fakeExchanger{status: func(string) int { return 400 }}
	re := &fakeReacquirer{result: func(int) (bool, error) { return false, nil }}
	m := NewManager(ex, re, nil, fastOptions())

	var deaths atomic.Int32
	var banned atomic.Bool
	m.SetHooks(Hooks{Dead: func(_ *account.Account, _ error, b bool) {
		deaths.Add(1)
		banned.Store(b)
	}})

	acct := invalidAccount()
	assert.False(t, m.Reauthorize(context.Background(), acct))
	m.Wait()

	assert.Equal(t, int32(3), re.calls.Load())
	assert.Equal(t, int32(1), deaths.Load())
	assert.False(t, banned.Load())
	assert.False(t, acct.Escalating())
}

func TestEscalationRecoversWithFreshLogin(t *testing.T) {
	ex := &fakeExchanger{status: func(param string) int {
		if param == "fresh" {
			return 200
		}
		return 400
	}}
	re := &fakeReacquirer{param: "fresh", result: func(attempt int) (bool, error) {
		if attempt == 1 {
			return false, errors.New("browser crashed")
		}
		return true, nil
	}}
	m := NewManager(ex, re, nil, fastOptions())

	var authorized, deaths atomic.Int32
	m.SetHooks(Hooks{
		Authorized: func(context.Context, *account.Account, game.Payload) { authorized.Add(1) },
		Dead:       func(*account.Account, error, bool) { deaths.Add(1) },
	})

	acct := invalidAccount()
	m.Reauthorize(context.Background(), acct)
	m.Wait()

	assert.Equal(t, int32(2), re.calls.Load())
	assert.Equal(t, int32(1), authorized.Load())
	assert.Equal(t, int32(0), deaths.Load())
	assert.True(t, acct.Valid())
	assert.Equal(t, "tok-fresh", acct.Token())
}

func TestBanStopsEscalationImmediately(t *testing.T) {
	ex := &fakeExchanger{status: func(string) int { return 400 }}
	re := &fakeReacquirer{result: func(int) (bool, error) { return false, ErrBanned }}
	m := NewManager(ex, re, nil, fastOptions())

	var banned atomic.Bool
	m.SetHooks(Hooks{Dead: func(_ *account.Account, _ error, b bool) { banned.Store(b) }})

	m.Reauthorize(context.Background(), invalidAccount())
	m.Wait()

	assert.Equal(t, int32(1), re.calls.Load())
	assert.True(t, banned.Load())
}

func TestOnlyOneEscalationAtATime(t *testing.T) {
	ex := &fakeExchanger{status: func(string) int { return 400 }}
	release := make(chan struct{})
	re := &fakeReacquirer{result: func(int) (bool, error) {
		<-release
		return false, nil
	}}
	m := NewManager(ex, re, nil, Options{MaxLoginAttempts: 1})

	var escalations atomic.Int32
	m.SetHooks(Hooks{Escalated: func(*account.Account) { escalations.Add(1) }})

	acct := invalidAccount()
	for i := 0; i < 5; i++ {
		m.Refresh(context.Background(), acct)
	}
	close(release)
	m.Wait()

	assert.Equal(t, int32(1), escalations.Load())
	assert.Equal(t, int32(1), re.calls.Load())
}

func TestCanceledAccountSkipsExchange(t *testing.T) {
	ex := &fakeExchanger{}
	m := NewManager(ex, nil, nil, fastOptions())
	acct := invalidAccount()
	acct.Cancel()

	assert.False(t, m.Reauthorize(context.Background(), acct))
	assert.Equal(t, ResultSkipped, m.Refresh(context.Background(), acct))
	assert.Equal(t, int32(0), ex.calls.Load())
}

func TestMissingTokenIsMalformed(t *testing.T) {
	m := NewManager(exchangerFunc(func(string) *game.Response {
		return &game.Response{Status: 200, Outcome: game.OutcomeSuccess, Body: []byte(`{"balance":1}`)}
	}), nil, nil, fastOptions())

	assert.Equal(t, ResultMalformed, m.Refresh(context.Background(), invalidAccount()))
}

func TestMalformedAuthorizeIsReported(t *testing.T) {
	bodies := map[string]string{
		"no token":    `{"balance":1}`,
		"undecodable": `<html>maintenance</html>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			m := NewManager(exchangerFunc(func(string) *game.Response {
				return &game.Response{Status: 200, Outcome: game.OutcomeSuccess, Body: []byte(body)}
			}), nil, nil, fastOptions())
			var reported []error
			m.SetHooks(Hooks{Malformed: func(_ *account.Account, err error) { reported = append(reported, err) }})

			assert.False(t, m.Reauthorize(context.Background(), invalidAccount()))
			require.Len(t, reported, 1)
			assert.ErrorIs(t, reported[0], game.ErrMalformedResponse)
		})
	}
}

// A token rejected by a call made from the Authorized hook must not start a
// nested exchange.
func TestUnauthorizedCallInsideHookDoesNotExchangeAgain(t *testing.T) {
	var authorizes, friends atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authorize":
			n := authorizes.Add(1)
			io.WriteString(w, `{"access_token":"tok-`+string(rune('0'+n))+`"}`)
		case "/friends":
			friends.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := game.NewClient(srv.URL, time.Second)
	m := NewManager(client, nil, nil, fastOptions())
	api := game.NewAPI(client, m)

	var depth, maxDepth, hooks atomic.Int32
	m.SetHooks(Hooks{Authorized: func(ctx context.Context, acct *account.Account, _ game.Payload) {
		hooks.Add(1)
		d := depth.Add(1)
		defer depth.Add(-1)
		if d > maxDepth.Load() {
			maxDepth.Store(d)
		}
		p, err := api.ListFriends(ctx, acct)
		assert.NoError(t, err)
		assert.True(t, p.Empty())
	}})

	acct := invalidAccount()
	assert.True(t, m.Reauthorize(context.Background(), acct))

	assert.Equal(t, int32(1), authorizes.Load())
	assert.Equal(t, int32(1), friends.Load())
	assert.Equal(t, int32(1), hooks.Load())
	assert.Equal(t, int32(1), maxDepth.Load())
	assert.False(t, acct.Valid())

	// the next caller outside the hook exchanges again, once
	assert.True(t, m.Reauthorize(context.Background(), acct))
	assert.Equal(t, int32(2), authorizes.Load())
	assert.Equal(t, int32(2), friends.Load())
}

type exchangerFunc func(string) *game.Response

func (f exchangerFunc) Authorize(_ context.Context, p string) *game.Response { return f(p) }
