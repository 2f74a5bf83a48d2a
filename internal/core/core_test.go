package core

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/auth"
	"github.com/themadorg/mailaggregator/internal/cipher"
	"github.com/themadorg/mailaggregator/internal/delivery"
	"github.com/themadorg/mailaggregator/internal/fetcher"
	"github.com/themadorg/mailaggregator/internal/pollstatus"
	"github.com/themadorg/mailaggregator/internal/retention"
	"github.com/themadorg/mailaggregator/internal/scheduler"
	"github.com/themadorg/mailaggregator/internal/store"
)

// newTestCore wires the whole facade the way cmd/server/main.go does,
// over a temp-file store, so these tests exercise the same composition
// the process boots with.
func newTestCore(t *testing.T) *Core {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fanout := delivery.NewFanout(st, log)
	ciph, err := cipher.New("test-encryption-key")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	authService := auth.New(st, "reset-token", log)
	fet := fetcher.New(st, fanout, ciph, log)
	sched := scheduler.New(st, fet, log)
	pollCache := pollstatus.New(st)
	sweeper := retention.New(st, filepath.Join(t.TempDir(), "archives"), log)

	c := New(st, sched, fet, fanout, pollCache, ciph, authService, sweeper, log)
	t.Cleanup(func() { sched.StopAll(0) })
	return c
}

func TestCreateAccountSpawnsPollLoop(t *testing.T) {
	c := newTestCore(t)
	created, err := c.CreateAccount(&entity.AccountCreate{
		Email: "user@example.com", Host: "imap.example.com", Port: 993,
		Password: "s3cret", PushTemplate: entity.TemplateShort,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created.Id == 0 {
		t.Fatal("expected assigned id")
	}
	if created.CredentialCiphertext == nil {
		t.Fatal("expected encrypted credential")
	}
	if !c.scheduler.Running(created.Id) {
		t.Fatal("expected poll loop to be running for an active account")
	}
}

func TestUpdateAccountStopsLoopWhenDeactivated(t *testing.T) {
	c := newTestCore(t)
	created, err := c.CreateAccount(&entity.AccountCreate{
		Email: "stop@example.com", Host: "imap.example.com", Port: 993,
		Password: "s3cret", PushTemplate: entity.TemplateShort,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	inactive := false
	if _, err := c.UpdateAccount(created.Id, &entity.AccountPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if c.scheduler.Running(created.Id) {
		t.Fatal("expected poll loop to be stopped after deactivation")
	}
}

func TestDeleteAccountStopsLoopAndRemovesAccount(t *testing.T) {
	c := newTestCore(t)
	created, err := c.CreateAccount(&entity.AccountCreate{
		Email: "del@example.com", Host: "imap.example.com", Port: 993,
		Password: "s3cret", PushTemplate: entity.TemplateShort,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := c.DeleteAccount(created.Id); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if c.scheduler.Running(created.Id) {
		t.Fatal("expected poll loop stopped after delete")
	}
	if _, err := c.GetAccount(created.Id); err == nil {
		t.Fatal("expected deleted account to be gone")
	}
}

func TestRuleCRUD(t *testing.T) {
	c := newTestCore(t)
	created, err := c.CreateRule(&entity.RuleCreate{Name: "invoices", AddLabels: []string{"finance"}})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	newName := "invoices-updated"
	updated, err := c.UpdateRule(created.Id, &entity.RulePatch{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if updated.Name != newName {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	rules, err := c.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	if err := c.DeleteRule(created.Id); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	rules, err = c.ListRules()
	if err != nil {
		t.Fatalf("ListRules after delete: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("expected no rules after delete, got %d", len(rules))
	}
}

func TestSettingsGetAndPatch(t *testing.T) {
	c := newTestCore(t)
	got, err := c.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.PollIntervalSeconds != 300 {
		t.Fatalf("expected default poll interval 300, got %d", got.PollIntervalSeconds)
	}

	newInterval := 120
	patched, err := c.PatchSettings(&entity.SettingsPatch{PollIntervalSeconds: &newInterval})
	if err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}
	if patched.PollIntervalSeconds != 120 {
		t.Fatalf("expected patched poll interval 120, got %d", patched.PollIntervalSeconds)
	}
}

func TestHealthAggregatesPollCache(t *testing.T) {
	c := newTestCore(t)
	h, err := c.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h == nil {
		t.Fatal("expected non-nil health response")
	}
}

func TestAuthenticateByTokenDelegates(t *testing.T) {
	c := newTestCore(t)
	if _, err := c.AuthenticateByToken("bogus"); err != auth.ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
