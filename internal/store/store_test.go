package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetAccount(t *testing.T) {
	s := newTestStore(t)

	a := &entity.Account{
		Email:                "user@example.com",
		Host:                 "imap.example.com",
		Port:                 993,
		CredentialCiphertext: []byte("ciphertext"),
		IsActive:             true,
		TelegramPushEnabled:  true,
		PushTemplate:         entity.TemplateShort,
	}
	created, err := s.CreateAccount(a)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created.Id == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := s.GetAccount(created.Id)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Email != a.Email {
		t.Fatalf("email mismatch: %q", got.Email)
	}
}

func TestCreateAccountDuplicateEmailConflicts(t *testing.T) {
	s := newTestStore(t)
	a := &entity.Account{Email: "dup@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort}
	if _, err := s.CreateAccount(a); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateAccount(a)
	if !ErrConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAccount(999)
	if !ErrNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestListAccountsOrdering(t *testing.T) {
	s := newTestStore(t)
	mk := func(email string, order int) {
		_, err := s.CreateAccount(&entity.Account{Email: email, Host: "h", Port: 993,
			CredentialCiphertext: []byte("x"), SortOrder: order, PushTemplate: entity.TemplateShort})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk("b@example.com", 2)
	mk("a@example.com", 1)

	list, err := s.ListAccounts(false)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(list) != 2 || list[0].Email != "a@example.com" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestInsertMessageIfNewDeduplicates(t *testing.T) {
	s := newTestStore(t)
	acc, err := s.CreateAccount(&entity.Account{Email: "m@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	msg := &entity.Message{AccountId: acc.Id, MessageId: "<abc@mail>", Subject: "hi",
		ReceivedAt: time.Now().UTC()}

	id1, inserted1, err := s.InsertMessageIfNew(msg)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted1 {
		t.Fatal("expected first insert to be new")
	}

	id2, inserted2, err := s.InsertMessageIfNew(msg)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted2 {
		t.Fatal("expected second insert to be a duplicate")
	}
	if id1 != id2 {
		t.Fatalf("expected same id across duplicate inserts: %d != %d", id1, id2)
	}
}

func TestQueryMessagesFilterAndPaginate(t *testing.T) {
	s := newTestStore(t)
	acc, _ := s.CreateAccount(&entity.Account{Email: "q@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort})

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, _, err := s.InsertMessageIfNew(&entity.Message{
			AccountId:  acc.Id,
			MessageId:  string(rune('a' + i)),
			Subject:    "subject",
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page := entity.Page{Page: 1, PageSize: 2}
	msgs, total, err := s.QueryMessages(entity.MessageFilter{AccountId: &acc.Id}, page)
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected page size 2, got %d", len(msgs))
	}
}

func TestMarkRead(t *testing.T) {
	s := newTestStore(t)
	acc, _ := s.CreateAccount(&entity.Account{Email: "r@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort})
	id, _, err := s.InsertMessageIfNew(&entity.Message{AccountId: acc.Id, MessageId: "1", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.MarkRead(id, true); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	got, err := s.GetMessage(id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !got.IsRead {
		t.Fatal("expected message to be marked read")
	}
}

func TestRuleOrdering(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateRule(&entity.Rule{Name: "second", RuleOrder: 2}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if _, err := s.CreateRule(&entity.Rule{Name: "first", RuleOrder: 1}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	rules, err := s.ListRules()
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 2 || rules[0].Name != "first" {
		t.Fatalf("unexpected rule order: %+v", rules)
	}
}

func TestRuleLabelsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r, err := s.CreateRule(&entity.Rule{Name: "labeled", AddLabels: []string{"invoices", "urgent"}})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	got, err := s.GetRule(r.Id)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if len(got.AddLabels) != 2 {
		t.Fatalf("expected 2 labels, got %v", got.AddLabels)
	}
}

func TestSettingsPatchInvalidatesCache(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.PollIntervalSeconds != 300 {
		t.Fatalf("expected default poll interval 300, got %d", got.PollIntervalSeconds)
	}

	newInterval := 600
	_, err = s.PatchSettings(&entity.SettingsPatch{PollIntervalSeconds: &newInterval})
	if err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}

	got2, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings after patch: %v", err)
	}
	if got2.PollIntervalSeconds != 600 {
		t.Fatalf("expected patched poll interval 600, got %d", got2.PollIntervalSeconds)
	}
}

func TestPollStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	acc, _ := s.CreateAccount(&entity.Account{Email: "p@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort})

	if err := s.RecordPollStarted(acc.Id); err != nil {
		t.Fatalf("RecordPollStarted: %v", err)
	}
	if err := s.RecordPollFinished(acc.Id, nil); err != nil {
		t.Fatalf("RecordPollFinished: %v", err)
	}

	status, err := s.GetPollStatus(acc.Id)
	if err != nil {
		t.Fatalf("GetPollStatus: %v", err)
	}
	if status.LastSuccessAt == nil {
		t.Fatal("expected last success to be set")
	}
	if status.LastError != "" {
		t.Fatalf("expected no error, got %q", status.LastError)
	}
}

func TestDeleteAccountCascadesMessages(t *testing.T) {
	s := newTestStore(t)
	acc, _ := s.CreateAccount(&entity.Account{Email: "c@example.com", Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort})
	id, _, err := s.InsertMessageIfNew(&entity.Message{AccountId: acc.Id, MessageId: "1", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}

	if err := s.DeleteAccount(acc.Id); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	_, err = s.GetMessage(id)
	if !ErrNotFound(err) {
		t.Fatalf("expected cascaded message to be gone, got %v", err)
	}
}
