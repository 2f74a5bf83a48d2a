package store

import "fmt"

// migrations is an ordered list of idempotent DDL statements, in the
// teacher's addColumnIfNotExists spirit (opencart/database/sql-client.go)
// generalized into a plain CREATE-TABLE-IF-NOT-EXISTS runner since this
// store owns its schema outright rather than bolting onto a third-party
// one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		provider_tag TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		credential_ciphertext BLOB NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		poll_interval_seconds INTEGER,
		telegram_push_enabled INTEGER NOT NULL DEFAULT 1,
		push_template TEXT NOT NULL DEFAULT 'short',
		last_uid_watermark TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		message_id TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		content_summary TEXT NOT NULL DEFAULT '',
		received_at DATETIME NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		UNIQUE(account_id, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_account_received ON messages(account_id, received_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS message_labels (
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		position INTEGER NOT NULL,
		UNIQUE(message_id, label)
	)`,
	`CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		rule_order INTEGER NOT NULL DEFAULT 0,
		account_id INTEGER REFERENCES accounts(id) ON DELETE CASCADE,
		sender_pattern TEXT NOT NULL DEFAULT '',
		subject_pattern TEXT NOT NULL DEFAULT '',
		body_pattern TEXT NOT NULL DEFAULT '',
		push_telegram INTEGER NOT NULL DEFAULT 0,
		mark_read INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS rule_labels (
		rule_id INTEGER NOT NULL REFERENCES rules(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		UNIQUE(rule_id, label)
	)`,
	`CREATE TABLE IF NOT EXISTS push_filters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		field TEXT NOT NULL,
		mode TEXT NOT NULL,
		value TEXT NOT NULL,
		rule_order INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		telegram_bot_token TEXT NOT NULL DEFAULT '',
		telegram_chat_id TEXT NOT NULL DEFAULT '',
		poll_interval_seconds INTEGER NOT NULL DEFAULT 300,
		webhook_url TEXT NOT NULL DEFAULT '',
		api_token TEXT NOT NULL DEFAULT '',
		retention_keep_days INTEGER NOT NULL DEFAULT 0,
		retention_keep_per_account INTEGER NOT NULL DEFAULT 0,
		mirror_read_to_server INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS poll_status (
		account_id INTEGER PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		last_started_at DATETIME,
		last_finished_at DATETIME,
		last_success_at DATETIME,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
}

// migrate runs every statement in migrations inside its own exec call.
// All statements are idempotent (IF NOT EXISTS), so migrate is safe to
// call on every boot.
func (s *Store) migrate() error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
