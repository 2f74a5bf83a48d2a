package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

type fakeStore struct {
	account  *entity.Account
	settings *entity.Settings
}

func (s *fakeStore) GetAccount(id int64) (*entity.Account, error) { return s.account, nil }
func (s *fakeStore) GetSettings() (*entity.Settings, error)       { return s.settings, nil }

type fakeRunner struct {
	calls int32
}

func (r *fakeRunner) Run(ctx context.Context, accountId int64) error {
	atomic.AddInt32(&r.calls, 1)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpawnRunsImmediately(t *testing.T) {
	seconds := 5
	store := &fakeStore{
		account:  &entity.Account{Id: 1, PollIntervalSeconds: &seconds},
		settings: &entity.Settings{PollIntervalSeconds: 300},
	}
	runner := &fakeRunner{}
	s := New(store, runner, testLogger())

	s.Spawn(1)
	defer s.Stop(1)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&runner.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected at least one poll cycle to run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSpawnTwiceIsNoop(t *testing.T) {
	store := &fakeStore{account: &entity.Account{Id: 1}, settings: &entity.Settings{PollIntervalSeconds: 300}}
	runner := &fakeRunner{}
	s := New(store, runner, testLogger())

	s.Spawn(1)
	s.Spawn(1)
	defer s.Stop(1)

	if !s.Running(1) {
		t.Fatal("expected loop to be running")
	}
}

func TestStopWaitsForLoopExit(t *testing.T) {
	store := &fakeStore{account: &entity.Account{Id: 1}, settings: &entity.Settings{PollIntervalSeconds: 300}}
	runner := &fakeRunner{}
	s := New(store, runner, testLogger())

	s.Spawn(1)
	s.Stop(1)

	if s.Running(1) {
		t.Fatal("expected loop to be stopped")
	}
}

func TestEffectiveIntervalEnforcesMinimum(t *testing.T) {
	tiny := 1
	store := &fakeStore{
		account:  &entity.Account{Id: 1, PollIntervalSeconds: &tiny},
		settings: &entity.Settings{PollIntervalSeconds: 300},
	}
	s := New(store, &fakeRunner{}, testLogger())

	got := s.effectiveInterval(1)
	if got < minPollInterval {
		t.Fatalf("expected interval clamped to minimum %v, got %v", minPollInterval, got)
	}
}

func TestStopAllHonorsGracePeriod(t *testing.T) {
	store := &fakeStore{account: &entity.Account{Id: 1}, settings: &entity.Settings{PollIntervalSeconds: 300}}
	s := New(store, &fakeRunner{}, testLogger())

	s.Spawn(1)
	s.StopAll(time.Second)

	if s.Running(1) {
		t.Fatal("expected all loops stopped after StopAll")
	}
}
