package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// GetSettings returns the singleton settings row, serving from cache
// when populated. The cache is invalidated synchronously by
// PatchSettings so readers never observe a stale value after a write
// returns (spec §5).
func (s *Store) GetSettings() (*entity.Settings, error) {
	s.settingsMu.RLock()
	if s.settingsCache != nil {
		cached := *s.settingsCache
		s.settingsMu.RUnlock()
		return &cached, nil
	}
	s.settingsMu.RUnlock()

	row := s.db.QueryRow(`SELECT telegram_bot_token, telegram_chat_id, poll_interval_seconds,
		webhook_url, api_token, retention_keep_days, retention_keep_per_account,
		mirror_read_to_server FROM settings WHERE id = 1`)
	var st entity.Settings
	if err := row.Scan(&st.TelegramBotToken, &st.TelegramChatId, &st.PollIntervalSeconds,
		&st.WebhookURL, &st.APIToken, &st.RetentionKeepDays, &st.RetentionKeepPerAccount,
		&st.MirrorReadToServer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row until SeedDefaults, PatchSettings or ImportSettings
			// writes one: report the schema's column defaults, uncached.
			return &entity.Settings{PollIntervalSeconds: 300, MirrorReadToServer: true}, nil
		}
		return nil, newErr(KindTransient, "store.GetSettings", err)
	}

	s.settingsMu.Lock()
	cached := st
	s.settingsCache = &cached
	s.settingsMu.Unlock()

	return &st, nil
}

// PatchSettings applies only the present fields of p, using
// INSERT ... ON CONFLICT to lazily create the singleton row on first
// write, then invalidates the cache.
func (s *Store) PatchSettings(p *entity.SettingsPatch) (*entity.Settings, error) {
	current, err := s.GetSettings()
	if err != nil {
		return nil, err
	}

	if p.TelegramBotToken != nil {
		current.TelegramBotToken = *p.TelegramBotToken
	}
	if p.TelegramChatId != nil {
		current.TelegramChatId = *p.TelegramChatId
	}
	if p.PollIntervalSeconds != nil {
		current.PollIntervalSeconds = *p.PollIntervalSeconds
	}
	if p.WebhookURL != nil {
		current.WebhookURL = *p.WebhookURL
	}
	if p.APIToken != nil {
		current.APIToken = *p.APIToken
	}
	if p.RetentionKeepDays != nil {
		current.RetentionKeepDays = *p.RetentionKeepDays
	}
	if p.RetentionKeepPerAccount != nil {
		current.RetentionKeepPerAccount = *p.RetentionKeepPerAccount
	}
	if p.MirrorReadToServer != nil {
		current.MirrorReadToServer = *p.MirrorReadToServer
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (id, telegram_bot_token, telegram_chat_id, poll_interval_seconds,
			webhook_url, api_token, retention_keep_days, retention_keep_per_account, mirror_read_to_server)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			telegram_bot_token=excluded.telegram_bot_token,
			telegram_chat_id=excluded.telegram_chat_id,
			poll_interval_seconds=excluded.poll_interval_seconds,
			webhook_url=excluded.webhook_url,
			api_token=excluded.api_token,
			retention_keep_days=excluded.retention_keep_days,
			retention_keep_per_account=excluded.retention_keep_per_account,
			mirror_read_to_server=excluded.mirror_read_to_server`,
		current.TelegramBotToken, current.TelegramChatId, current.PollIntervalSeconds,
		current.WebhookURL, current.APIToken, current.RetentionKeepDays,
		current.RetentionKeepPerAccount, boolToInt(current.MirrorReadToServer))
	if err != nil {
		return nil, newErr(KindTransient, "store.PatchSettings", err)
	}

	s.settingsMu.Lock()
	cached := *current
	s.settingsCache = &cached
	s.settingsMu.Unlock()

	return current, nil
}

// SeedDefaults inserts the settings singleton row from d if one does
// not already exist yet, so the environment-provided settings
// (TELEGRAM_*, WEBHOOK_URL, API_TOKEN, POLL_INTERVAL_SECONDS) take
// effect on a brand-new database. A conflict (the
// operator has already configured settings via PATCH) is silently
// ignored: environment defaults only apply once, on first boot.
func (s *Store) SeedDefaults(d entity.Settings) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (id, telegram_bot_token, telegram_chat_id, poll_interval_seconds,
			webhook_url, api_token, retention_keep_days, retention_keep_per_account, mirror_read_to_server)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		d.TelegramBotToken, d.TelegramChatId, d.PollIntervalSeconds, d.WebhookURL, d.APIToken,
		d.RetentionKeepDays, d.RetentionKeepPerAccount, boolToInt(d.MirrorReadToServer))
	if err != nil {
		return newErr(KindTransient, "store.SeedDefaults", err)
	}
	return nil
}

// ExportSettings returns the settings and account list for backup
// (spec §3 "Supplemented features" settings export/import).
func (s *Store) ExportSettings() (*entity.SettingsExport, error) {
	settings, err := s.GetSettings()
	if err != nil {
		return nil, err
	}
	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Account, len(accounts))
	for i, a := range accounts {
		out[i] = *a
	}
	return &entity.SettingsExport{Settings: *settings, Accounts: out}, nil
}

// ImportSettings replaces the settings row wholesale and upserts every
// account in export by email, preserving credential_ciphertext verbatim
// (spec §8 property 6: re-import must yield bit-identical ciphertexts).
// Accounts are matched by email since sqlite assigns ids on insert and
// the export's original ids can't be preserved across instances.
func (s *Store) ImportSettings(export *entity.SettingsExport) error {
	st := export.Settings
	_, err := s.db.Exec(`
		INSERT INTO settings (id, telegram_bot_token, telegram_chat_id, poll_interval_seconds,
			webhook_url, api_token, retention_keep_days, retention_keep_per_account, mirror_read_to_server)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			telegram_bot_token=excluded.telegram_bot_token,
			telegram_chat_id=excluded.telegram_chat_id,
			poll_interval_seconds=excluded.poll_interval_seconds,
			webhook_url=excluded.webhook_url,
			api_token=excluded.api_token,
			retention_keep_days=excluded.retention_keep_days,
			retention_keep_per_account=excluded.retention_keep_per_account,
			mirror_read_to_server=excluded.mirror_read_to_server`,
		st.TelegramBotToken, st.TelegramChatId, st.PollIntervalSeconds, st.WebhookURL, st.APIToken,
		st.RetentionKeepDays, st.RetentionKeepPerAccount, boolToInt(st.MirrorReadToServer))
	if err != nil {
		return newErr(KindTransient, "store.ImportSettings", err)
	}

	for i := range export.Accounts {
		a := export.Accounts[i]
		now := time.Now().UTC()
		_, err := s.db.Exec(`
			INSERT INTO accounts (email, provider_tag, host, port, credential_ciphertext,
				is_active, sort_order, poll_interval_seconds, telegram_push_enabled,
				push_template, last_uid_watermark, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(email) DO UPDATE SET
				provider_tag=excluded.provider_tag,
				host=excluded.host,
				port=excluded.port,
				credential_ciphertext=excluded.credential_ciphertext,
				is_active=excluded.is_active,
				sort_order=excluded.sort_order,
				poll_interval_seconds=excluded.poll_interval_seconds,
				telegram_push_enabled=excluded.telegram_push_enabled,
				push_template=excluded.push_template,
				updated_at=excluded.updated_at`,
			a.Email, a.ProviderTag, a.Host, a.Port, a.CredentialCiphertext,
			boolToInt(a.IsActive), a.SortOrder, a.PollIntervalSeconds, boolToInt(a.TelegramPushEnabled),
			string(a.PushTemplate), a.LastUIDWatermark, now, now)
		if err != nil {
			return newErr(KindTransient, "store.ImportSettings", fmt.Errorf("account %s: %w", a.Email, err))
		}
	}

	s.settingsMu.Lock()
	cached := st
	s.settingsCache = &cached
	s.settingsMu.Unlock()

	return nil
}
