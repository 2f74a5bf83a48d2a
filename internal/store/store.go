// Package store is the durable state layer: accounts, messages, rules,
// push filters, settings, and poll status. It enforces the uniqueness
// and read/modify/write atomicity invariants the rest of the pipeline
// depends on (spec §4.1).
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/lib/sl"

	_ "modernc.org/sqlite"
)

// Store is the single logical transactional store, backed by one
// embedded sqlite database file. Grounded on opencart/database's
// connect-with-retry pattern, generalized from MySQL to an embedded
// single-file database per spec §6.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// settingsMu guards settingsCache: readers take RLock, PATCH takes
	// Lock and invalidates synchronously before returning (spec §5).
	settingsMu    sync.RWMutex
	settingsCache *entity.Settings
}

// Open connects to the sqlite database at path, enables foreign keys
// and WAL mode, and runs migrations. Tries the initial ping up to three
// times with a short backoff, since sqlite databases on
// slow/networked filesystems can briefly fail the first open.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, newErr(KindFatal, "store.Open", fmt.Errorf("sql open: %w", err))
	}
	db.SetMaxOpenConns(1) // sqlite: single-writer; serializes writes the way the store's invariants require

	var pingErr error
	for i := 0; i < 3; i++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		if i < 2 {
			time.Sleep(200 * time.Millisecond)
		}
	}
	if pingErr != nil {
		return nil, newErr(KindFatal, "store.Open", fmt.Errorf("ping: %w", pingErr))
	}

	s := &Store{
		db:  db,
		log: log.With(sl.Module("store")),
	}
	if err := s.migrate(); err != nil {
		return nil, newErr(KindFatal, "store.Open", fmt.Errorf("migrate: %w", err))
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
