package retention

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/store"
)

func newTestSweeper(t *testing.T) (*Sweeper, *store.Store, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(dbPath, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	archiveDir := filepath.Join(t.TempDir(), "archives")
	return New(s, archiveDir, log), s, archiveDir
}

func mkAccount(t *testing.T, s *store.Store, email string) *entity.Account {
	t.Helper()
	a, err := s.CreateAccount(&entity.Account{
		Email: email, Host: "h", Port: 993,
		CredentialCiphertext: []byte("x"), PushTemplate: entity.TemplateShort,
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func mkMessage(t *testing.T, s *store.Store, accountId int64, msgID string, receivedAt time.Time) int64 {
	t.Helper()
	id, _, err := s.InsertMessageIfNew(&entity.Message{
		AccountId: accountId, MessageId: msgID, ReceivedAt: receivedAt,
	})
	if err != nil {
		t.Fatalf("InsertMessageIfNew: %v", err)
	}
	return id
}

func TestCleanupDeletesByKeepDays(t *testing.T) {
	sweeper, s, _ := newTestSweeper(t)
	acc := mkAccount(t, s, "a@example.com")

	now := time.Now().UTC()
	mkMessage(t, s, acc.Id, "old", now.AddDate(0, 0, -10))
	mkMessage(t, s, acc.Id, "new", now)

	keepDays := 5
	if _, err := s.PatchSettings(&entity.SettingsPatch{RetentionKeepDays: &keepDays}); err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}

	result, err := sweeper.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deleted, got %d", result.DeletedCount)
	}
}

func TestCleanupKeepsNewestPerAccount(t *testing.T) {
	sweeper, s, _ := newTestSweeper(t)
	acc := mkAccount(t, s, "b@example.com")

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		mkMessage(t, s, acc.Id, string(rune('a'+i)), now.Add(time.Duration(i)*time.Minute))
	}

	keep := 1
	if _, err := s.PatchSettings(&entity.SettingsPatch{RetentionKeepPerAccount: &keep}); err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}

	result, err := sweeper.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Fatalf("expected 2 deleted, got %d", result.DeletedCount)
	}
}

func TestArchiveWritesFileAndDeletes(t *testing.T) {
	sweeper, s, archiveDir := newTestSweeper(t)
	acc := mkAccount(t, s, "c@example.com")

	now := time.Now().UTC()
	mkMessage(t, s, acc.Id, "old", now.AddDate(0, 0, -10))

	keepDays := 5
	if _, err := s.PatchSettings(&entity.SettingsPatch{RetentionKeepDays: &keepDays}); err != nil {
		t.Fatalf("PatchSettings: %v", err)
	}

	result, err := sweeper.Archive()
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deleted, got %d", result.DeletedCount)
	}
	if result.Name == "" {
		t.Fatal("expected a non-empty archive name")
	}

	body, err := os.ReadFile(filepath.Join(archiveDir, result.Name))
	if err != nil {
		t.Fatalf("read archive file: %v", err)
	}
	var doc struct {
		Messages []*entity.Message `json:"messages"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal archive: %v", err)
	}
	if len(doc.Messages) != 1 {
		t.Fatalf("expected 1 archived message, got %d", len(doc.Messages))
	}

	read, err := sweeper.ReadArchive(result.Name)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if string(read) != string(body) {
		t.Fatal("ReadArchive returned different bytes than what was written")
	}
}

func TestArchiveNoOpWhenNothingToArchive(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t)
	result, err := sweeper.Archive()
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.DeletedCount != 0 || result.Name != "" {
		t.Fatalf("expected no-op result, got %+v", result)
	}
}

func TestReadArchiveRejectsPathTraversal(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t)
	if _, err := sweeper.ReadArchive("../etc/passwd"); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
	if _, err := sweeper.ReadArchive("sub/dir.json"); err == nil {
		t.Fatal("expected nested path to be rejected")
	}
}
