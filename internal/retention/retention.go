// Package retention implements the periodic batch pruning and archival
// job spec §1/§6 describe as an external maintenance operation invoked
// by API rather than a background loop: POST /stats/cleanup and
// POST /stats/archive. Grounded on the same store-transaction shape as
// the rest of C1's callers; no teacher precedent exists for retention
// itself, so this package is built directly from spec §3/§6.
package retention

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/lib/sl"
)

// Store is the narrow persistence surface the retention sweep needs.
type Store interface {
	GetSettings() (*entity.Settings, error)
	ListAccounts(activeOnly bool) ([]*entity.Account, error)
	ListMessagesBefore(cutoff time.Time) ([]*entity.Message, error)
	DeleteMessagesBeforeAll(cutoff time.Time) (int64, error)
	ListExcessMessages(accountId int64, keep int) ([]*entity.Message, error)
	DeleteMessagesKeepingNewest(accountId int64, keep int) (int64, error)
}

// Sweeper runs the retention policies (global keep_days, per-account
// keep_per_account) and optionally snapshots removed rows to a JSON
// archive file before deleting them.
type Sweeper struct {
	store      Store
	archiveDir string
	log        *slog.Logger
}

func New(store Store, archiveDir string, log *slog.Logger) *Sweeper {
	return &Sweeper{store: store, archiveDir: archiveDir, log: log.With(sl.Module("retention"))}
}

// Cleanup deletes messages outside the configured retention window
// without archiving them.
func (s *Sweeper) Cleanup() (*entity.CleanupResult, error) {
	settings, err := s.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var deleted int64

	if settings.RetentionKeepDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -settings.RetentionKeepDays)
		n, err := s.store.DeleteMessagesBeforeAll(cutoff)
		if err != nil {
			return nil, fmt.Errorf("delete before cutoff: %w", err)
		}
		deleted += n
	}

	if settings.RetentionKeepPerAccount > 0 {
		accounts, err := s.store.ListAccounts(false)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, account := range accounts {
			n, err := s.store.DeleteMessagesKeepingNewest(account.Id, settings.RetentionKeepPerAccount)
			if err != nil {
				return nil, fmt.Errorf("delete excess for account %d: %w", account.Id, err)
			}
			deleted += n
		}
	}

	return &entity.CleanupResult{DeletedCount: deleted}, nil
}

// archiveFile is the document format written by Archive and read back
// by ReadArchive.
type archiveFile struct {
	ArchivedAt time.Time         `json:"archived_at"`
	Messages   []*entity.Message `json:"messages"`
}

// Archive snapshots every message the retention policy would remove
// into a JSON file under archiveDir, then deletes them the same way
// Cleanup does. Returns the archive file's name for GET /stats/archive/{name}.
func (s *Sweeper) Archive() (*entity.ArchiveResult, error) {
	settings, err := s.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var toArchive []*entity.Message
	seen := make(map[int64]bool)
	add := func(msgs []*entity.Message) {
		for _, m := range msgs {
			if !seen[m.Id] {
				seen[m.Id] = true
				toArchive = append(toArchive, m)
			}
		}
	}

	var cutoff time.Time
	hasCutoff := settings.RetentionKeepDays > 0
	if hasCutoff {
		cutoff = time.Now().UTC().AddDate(0, 0, -settings.RetentionKeepDays)
		before, err := s.store.ListMessagesBefore(cutoff)
		if err != nil {
			return nil, fmt.Errorf("list messages before cutoff: %w", err)
		}
		add(before)
	}

	var accounts []*entity.Account
	if settings.RetentionKeepPerAccount > 0 {
		accounts, err = s.store.ListAccounts(false)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, account := range accounts {
			excess, err := s.store.ListExcessMessages(account.Id, settings.RetentionKeepPerAccount)
			if err != nil {
				return nil, fmt.Errorf("list excess for account %d: %w", account.Id, err)
			}
			add(excess)
		}
	}

	if len(toArchive) == 0 {
		return &entity.ArchiveResult{DeletedCount: 0}, nil
	}

	name := fmt.Sprintf("archive-%d.json", time.Now().UTC().UnixNano())
	if err := s.writeArchive(name, toArchive); err != nil {
		return nil, err
	}

	var deleted int64
	if hasCutoff {
		n, err := s.store.DeleteMessagesBeforeAll(cutoff)
		if err != nil {
			return nil, fmt.Errorf("delete before cutoff: %w", err)
		}
		deleted += n
	}
	for _, account := range accounts {
		n, err := s.store.DeleteMessagesKeepingNewest(account.Id, settings.RetentionKeepPerAccount)
		if err != nil {
			return nil, fmt.Errorf("delete excess for account %d: %w", account.Id, err)
		}
		deleted += n
	}

	return &entity.ArchiveResult{Name: name, DeletedCount: deleted}, nil
}

func (s *Sweeper) writeArchive(name string, messages []*entity.Message) error {
	if err := os.MkdirAll(s.archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	doc := archiveFile{ArchivedAt: time.Now().UTC(), Messages: messages}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	path := filepath.Join(s.archiveDir, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	s.log.Info("wrote archive", "name", name, "messages", len(messages))
	return nil
}

// ReadArchive returns the raw JSON bytes of a previously written
// archive file, rejecting any name that isn't a bare filename to avoid
// path traversal outside archiveDir.
func (s *Sweeper) ReadArchive(name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid archive name")
	}
	return os.ReadFile(filepath.Join(s.archiveDir, name))
}
