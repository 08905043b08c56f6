package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/credential"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/scheduler"
)

// obj decodes a JSON object the way the game client does.
func obj(t *testing.T, s string) game.Payload {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return game.Payload(m)
}

func objs(t *testing.T, s string) []game.Payload {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var list []map[string]interface{}
	if err := dec.Decode(&list); err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	out := make([]game.Payload, len(list))
	for i, m := range list {
		out[i] = game.Payload(m)
	}
	return out
}

type upgradeCall struct {
	id   int64
	link string
}

// fakeAPI returns empty payloads unless a hook is set.
type fakeAPI struct {
	mu sync.Mutex

	me       func() game.Payload
	mine     func(count int64) game.Payload
	cards    func() ([]game.Payload, error)
	upgrade  func(id int64) game.Payload
	channels game.Payload
	bonus    game.Payload
	promo    game.Payload
	friends  game.Payload
	boosts   func() game.Payload
	useBoost func() game.Payload

	mineCounts []int64
	upgrades   []upgradeCall
	resolved   []int64
	picked     []int64
	claims     map[string]int
}

func newFakeAPI() *fakeAPI { return &fakeAPI{claims: map[string]int{}} }

func (f *fakeAPI) GetMe(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.me == nil {
		return game.Payload{}, nil
	}
	return f.me(), nil
}

func (f *fakeAPI) Mine(_ context.Context, _ *account.Account, count int64) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mineCounts = append(f.mineCounts, count)
	if f.mine == nil {
		return game.Payload{}, nil
	}
	return f.mine(count), nil
}

func (f *fakeAPI) ListCards(context.Context, *account.Account) ([]game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cards == nil {
		return nil, nil
	}
	return f.cards()
}

func (f *fakeAPI) UpgradeCard(_ context.Context, _ *account.Account, id int64, link string) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upgrades = append(f.upgrades, upgradeCall{id: id, link: link})
	if f.upgrade == nil {
		return game.Payload{}, nil
	}
	return f.upgrade(id), nil
}

func (f *fakeAPI) ListChannels(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels, nil
}

func (f *fakeAPI) ResolveChannel(_ context.Context, _ *account.Account, id int64, _ string) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, id)
	return game.Payload{"ok": true}, nil
}

func (f *fakeAPI) PickChannel(_ context.Context, _ *account.Account, id int64) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.picked = append(f.picked, id)
	return game.Payload{"ok": true}, nil
}

func (f *fakeAPI) GetDailyBonuses(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bonus, nil
}

func (f *fakeAPI) PickDailyBonus(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[RewardDailyBonus]++
	return game.Payload{"ok": true}, nil
}

func (f *fakeAPI) GetPromo(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.promo, nil
}

func (f *fakeAPI) PickPromo(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[RewardPromo]++
	return game.Payload{"ok": true}, nil
}

func (f *fakeAPI) ListFriends(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.friends, nil
}

func (f *fakeAPI) GetBoosts(context.Context, *account.Account) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boosts == nil {
		return game.Payload{}, nil
	}
	return f.boosts(), nil
}

func (f *fakeAPI) UseBoost(context.Context, *account.Account, string) (game.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.useBoost == nil {
		return game.Payload{}, nil
	}
	return f.useBoost(), nil
}

type fakeCreds struct {
	mu        sync.Mutex
	result    credential.Result
	refreshes int
	escalated []int64
}

func (c *fakeCreds) Refresh(context.Context, *account.Account) credential.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return c.result
}

func (c *fakeCreds) Escalate(acct *account.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.escalated = append(c.escalated, acct.ID)
}

func (c *fakeCreds) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

type fakeStore struct {
	mu       sync.Mutex
	rows     map[int64]*database.Account
	metadata []database.AccountMetadata
	mining   []database.MiningRecord
	upgrades []database.UpgradeRecord
	errors   []string
}

func newFakeStore(rows ...*database.Account) *fakeStore {
	s := &fakeStore{rows: map[int64]*database.Account{}}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *fakeStore) GetAccountByID(id int64) (*database.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) ListActiveAccounts() ([]*database.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Account
	for _, r := range s.rows {
		if r.IsActive && !r.IsBanned {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateAccountMetadata(m database.AccountMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, m)
	return nil
}

func (s *fakeStore) SetAccountActive(id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		r.IsActive = active
	}
	return nil
}

func (s *fakeStore) MarkAccountBanned(id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		r.IsBanned = true
		r.IsActive = false
		r.Notes = &note
	}
	return nil
}

func (s *fakeStore) RecordMining(r database.MiningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mining = append(s.mining, r)
	return nil
}

func (s *fakeStore) RecordUpgrade(r database.UpgradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgrades = append(s.upgrades, r)
	return nil
}

func (s *fakeStore) LogError(_ *int64, errorType, _, msg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errorType+": "+msg)
	return int64(len(s.errors)), nil
}

func (s *fakeStore) row(id int64) database.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

// recorder collects bus events by type.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus events.EventBus) *recorder {
	r := &recorder{}
	for _, t := range events.AllEventTypes {
		bus.Subscribe(t, func(e events.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	engine *Engine
	api    *fakeAPI
	creds  *fakeCreds
	store  *fakeStore
	sched  *scheduler.Scheduler
	bus    *events.DefaultEventBus
	events *recorder
}

func newHarness(t *testing.T, rows ...*database.Account) *harness {
	t.Helper()
	h := &harness{
		api:   newFakeAPI(),
		creds: &fakeCreds{result: credential.ResultAuthorized},
		store: newFakeStore(rows...),
		sched: scheduler.New(0),
		bus:   events.NewEventBus(64),
	}
	h.events = record(h.bus)
	settings := config.NewDefaultSettings()
	h.engine = New(Deps{
		API:         h.api,
		Credentials: h.creds,
		Scheduler:   h.sched,
		Store:       h.store,
		Bus:         h.bus,
		Settings:    settings,
	})
	t.Cleanup(func() {
		h.sched.Stop()
		h.bus.Stop()
	})
	return h
}

// drain waits for every published event to be handled.
func (h *harness) drain() { h.bus.Stop() }
