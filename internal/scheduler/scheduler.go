// Package scheduler runs per-account recurring jobs.
//
// Each account owns a map of job handles keyed by job kind. Scheduling a kind
// that already has a handle cancels the old one first. Every job run returns
// the delay until its next run, so fixed-rate jobs and self-rescheduling
// state machines share the same driver.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/logging"
)

// ErrStopped is returned when scheduling on a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

// ErrAccountCanceled is returned when scheduling for a canceled account.
var ErrAccountCanceled = errors.New("account jobs canceled")

// Kind identifies a job within an account.
type Kind string

const (
	KindAuthorize  Kind = "authorize"
	KindDailyBonus Kind = "daily_bonus"
	KindPromo      Kind = "promo"
	KindMine       Kind = "mine"
	KindUpgrade    Kind = "upgrade"
	KindChannels   Kind = "channels"
)

// RunFunc performs one run and returns the delay before the next one. A
// non-positive delay stops the job.
type RunFunc func(ctx context.Context, acct *account.Account) time.Duration

// Job describes a recurring job.
type Job struct {
	Kind         Kind
	InitialDelay time.Duration
	Run          RunFunc
}

// Every wraps fn as a fixed-rate run returning period.
func Every(period time.Duration, fn func(ctx context.Context, acct *account.Account)) RunFunc {
	return func(ctx context.Context, acct *account.Account) time.Duration {
		fn(ctx, acct)
		return period
	}
}

// Recorder receives job run observations, for metrics.
type Recorder interface {
	ObserveRun(kind string, elapsed time.Duration, panicked bool)
}

type handle struct {
	kind   Kind
	cancel context.CancelFunc
	done   chan struct{}
}

type accountJobs struct {
	acct    *account.Account
	handles map[Kind]*handle
}

type jobKey struct {
	accountID int64
	kind      Kind
}

// Scheduler owns every account's job handles.
type Scheduler struct {
	mu       sync.Mutex
	accounts map[int64]*accountJobs
	// retired holds the handles of canceled accounts until their in-flight
	// runs end, so a later bootstrap of the same account cannot overlap them.
	retired map[jobKey]*handle
	stopped bool

	// runCtx is passed to job runs. It is only canceled on Stop, so an
	// in-flight call outlives a per-account cancel.
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	slots     chan struct{}
	recorder  Recorder
	logger    *logging.Logger
}

// New creates a scheduler allowing at most workers concurrent job runs
// across all accounts. workers <= 0 means unbounded.
func New(workers int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		accounts:  make(map[int64]*accountJobs),
		retired:   make(map[jobKey]*handle),
		runCtx:    ctx,
		runCancel: cancel,
		logger:    logging.NewLogger("Scheduler"),
	}
	if workers > 0 {
		s.slots = make(chan struct{}, workers)
	}
	return s
}

// SetRecorder installs the metrics recorder. Call before scheduling.
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// Schedule starts job for acct, replacing any job of the same kind.
func (s *Scheduler) Schedule(acct *account.Account, job Job) error {
	if acct.Canceled() {
		return ErrAccountCanceled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.start(acct, job)
	return nil
}

// ScheduleMissing starts the jobs whose kinds have no live handle for acct
// and reports how many it started.
func (s *Scheduler) ScheduleMissing(acct *account.Account, jobs []Job) (int, error) {
	if acct.Canceled() {
		return 0, ErrAccountCanceled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}
	started := 0
	for _, job := range jobs {
		if s.liveLocked(acct.ID, job.Kind) {
			continue
		}
		s.start(acct, job)
		started++
	}
	return started, nil
}

// start must be called with s.mu held.
func (s *Scheduler) start(acct *account.Account, job Job) {
	jobs, ok := s.accounts[acct.ID]
	if !ok {
		jobs = &accountJobs{acct: acct, handles: make(map[Kind]*handle)}
		s.accounts[acct.ID] = jobs
	}
	// The new loop waits for the previous handle of the same kind, so two
	// runs of one job never overlap.
	var prev <-chan struct{}
	if old, ok := jobs.handles[job.Kind]; ok {
		old.cancel()
		prev = old.done
	}
	key := jobKey{acct.ID, job.Kind}
	if old, ok := s.retired[key]; ok {
		delete(s.retired, key)
		if prev == nil {
			prev = old.done
		}
	}

	ctx, cancel := context.WithCancel(s.runCtx)
	h := &handle{kind: job.Kind, cancel: cancel, done: make(chan struct{})}
	jobs.handles[job.Kind] = h

	s.wg.Add(1)
	go s.loop(ctx, h, acct, job, prev)
}

func (s *Scheduler) liveLocked(accountID int64, kind Kind) bool {
	jobs, ok := s.accounts[accountID]
	if !ok {
		return false
	}
	h, ok := jobs.handles[kind]
	if !ok {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Has reports whether acct has a live job of kind.
func (s *Scheduler) Has(accountID int64, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(accountID, kind)
}

// Kinds lists the live job kinds of an account.
func (s *Scheduler) Kinds(accountID int64) []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	var kinds []Kind
	for k, h := range jobs.handles {
		select {
		case <-h.done:
		default:
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// CancelAll marks acct canceled and stops every one of its jobs. Runs
// already in flight finish, but nothing is scheduled afterwards. It returns
// false if the account was already canceled.
func (s *Scheduler) CancelAll(acct *account.Account) bool {
	first := acct.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if jobs, ok := s.accounts[acct.ID]; ok {
		for kind, h := range jobs.handles {
			h.cancel()
			select {
			case <-h.done:
			default:
				s.retired[jobKey{acct.ID, kind}] = h
			}
		}
		delete(s.accounts, acct.ID)
	}
	s.pruneRetiredLocked()
	return first
}

// Stop cancels every job, including in-flight runs, and waits for all job
// goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, jobs := range s.accounts {
		for _, h := range jobs.handles {
			h.cancel()
		}
	}
	s.accounts = make(map[int64]*accountJobs)
	s.retired = make(map[jobKey]*handle)
	s.mu.Unlock()

	s.runCancel()
	s.wg.Wait()
}

func (s *Scheduler) pruneRetiredLocked() {
	for key, h := range s.retired {
		select {
		case <-h.done:
			delete(s.retired, key)
		default:
		}
	}
}

func (s *Scheduler) loop(ctx context.Context, h *handle, acct *account.Account, job Job, prev <-chan struct{}) {
	defer s.wg.Done()
	defer close(h.done)

	// Even when replaced while waiting, done must not close before prev.
	if prev != nil {
		<-prev
	}

	delay := job.InitialDelay
	for {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return
		}

		if acct.Canceled() {
			return
		}
		if !s.acquire(ctx) {
			return
		}
		delay = s.runOnce(acct, job)
		s.release()

		if delay <= 0 {
			s.logger.InfoWithContext("job finished", map[string]interface{}{"account": acct.ID, "kind": job.Kind})
			return
		}
	}
}

func (s *Scheduler) acquire(ctx context.Context) bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) release() {
	if s.slots != nil {
		<-s.slots
	}
}

// runOnce runs job with panic recovery. A panicking run is retried after
// the job's initial delay, or a minute when that is zero.
func (s *Scheduler) runOnce(acct *account.Account, job Job) (next time.Duration) {
	start := time.Now()
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.logger.ErrorWithContext("job panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"account": acct.ID,
				"kind":    job.Kind,
				"stack":   string(debug.Stack()),
			})
			next = job.InitialDelay
			if next <= 0 {
				next = time.Minute
			}
		}
		if s.recorder != nil {
			s.recorder.ObserveRun(string(job.Kind), time.Since(start), panicked)
		}
	}()
	return job.Run(s.runCtx, acct)
}
