// Package scheduler maintains one poll loop per active account,
// grounded on opencart/oc-client.go's ticker + done/stopped channel
// lifecycle (C5, spec §4.5).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/lib/sl"
)

const minPollInterval = 5 * time.Second

// Store is the narrow surface Scheduler needs to resolve an account's
// effective poll interval.
type Store interface {
	GetAccount(id int64) (*entity.Account, error)
	GetSettings() (*entity.Settings, error)
}

// Runner executes one poll cycle for an account; satisfied by
// *fetcher.Fetcher.
type Runner interface {
	Run(ctx context.Context, accountId int64) error
}

type loop struct {
	done    chan struct{}
	stopped chan struct{}
}

// Scheduler owns the set of active per-account poll loops.
type Scheduler struct {
	store  Store
	runner Runner
	log    *slog.Logger

	mu    sync.Mutex
	loops map[int64]*loop
}

func New(store Store, runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		log:    log.With(sl.Module("scheduler")),
		loops:  make(map[int64]*loop),
	}
}

// Start spawns a loop for every given active account id. Called once
// at boot with the accounts the store reports active.
func (s *Scheduler) Start(accountIds []int64) {
	for _, id := range accountIds {
		s.Spawn(id)
	}
}

// Spawn starts a new poll loop for accountId, used both at boot and
// when an account is created or reactivated via the API. Spawning for
// an account that already has a running loop is a no-op.
func (s *Scheduler) Spawn(accountId int64) {
	s.mu.Lock()
	if _, exists := s.loops[accountId]; exists {
		s.mu.Unlock()
		return
	}
	l := &loop{done: make(chan struct{}), stopped: make(chan struct{})}
	s.loops[accountId] = l
	s.mu.Unlock()

	go s.run(accountId, l)
}

// Stop signals accountId's loop to exit at its next wake point and
// waits for it to finish (spec §4.5: deactivation/deletion is observed
// at the next loop boundary; an in-flight Fetcher.run completes).
func (s *Scheduler) Stop(accountId int64) {
	s.mu.Lock()
	l, exists := s.loops[accountId]
	if exists {
		delete(s.loops, accountId)
	}
	s.mu.Unlock()
	if !exists {
		return
	}
	close(l.done)
	<-l.stopped
}

// StopAll signals every running loop to exit and waits up to grace for
// them to finish, used during process shutdown (spec §5, default 30s).
func (s *Scheduler) StopAll(grace time.Duration) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Stop(id)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn("shutdown grace period elapsed before all poll loops stopped")
	}
}

// TriggerOnce invokes the runner for accountId immediately, respecting
// the runner's own single-flight lock, without disturbing the loop's
// sleep schedule (spec §4.5 "on-demand fetch").
func (s *Scheduler) TriggerOnce(ctx context.Context, accountId int64) error {
	return s.runner.Run(ctx, accountId)
}

func (s *Scheduler) run(accountId int64, l *loop) {
	defer close(l.stopped)

	for {
		ctx := context.Background()
		if err := s.runner.Run(ctx, accountId); err != nil {
			s.log.Warn("poll cycle failed", "account_id", accountId, sl.Err(err))
		}

		interval := s.effectiveInterval(accountId)

		select {
		case <-l.done:
			return
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) effectiveInterval(accountId int64) time.Duration {
	account, err := s.store.GetAccount(accountId)
	if err != nil {
		s.log.Warn("effective interval: load account failed", "account_id", accountId, sl.Err(err))
		return minPollInterval
	}
	settings, err := s.store.GetSettings()
	if err != nil {
		s.log.Warn("effective interval: load settings failed", "account_id", accountId, sl.Err(err))
		return minPollInterval
	}
	seconds := account.EffectivePollInterval(settings.PollIntervalSeconds)
	interval := time.Duration(seconds) * time.Second
	if interval < minPollInterval {
		interval = minPollInterval
	}
	return interval
}

// Running reports whether accountId currently has an active loop.
func (s *Scheduler) Running(accountId int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[accountId]
	return ok
}
