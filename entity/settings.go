package entity

import (
	"net/http"
	"time"
)

// Settings is the process-wide singleton configuration row.
type Settings struct {
	TelegramBotToken        string `json:"-" db:"telegram_bot_token"`
	TelegramChatId          string `json:"telegram_chat_id" db:"telegram_chat_id"`
	PollIntervalSeconds     int    `json:"poll_interval_seconds" db:"poll_interval_seconds"`
	WebhookURL              string `json:"webhook_url" db:"webhook_url"`
	APIToken                string `json:"-" db:"api_token"`
	RetentionKeepDays       int    `json:"retention_keep_days" db:"retention_keep_days"`
	RetentionKeepPerAccount int    `json:"retention_keep_per_account" db:"retention_keep_per_account"`
	MirrorReadToServer      bool   `json:"mirror_read_to_server" db:"mirror_read_to_server"`
}

// SettingsPatch is PATCH /settings: only present fields are applied.
type SettingsPatch struct {
	TelegramBotToken        *string `json:"telegram_bot_token,omitempty"`
	TelegramChatId          *string `json:"telegram_chat_id,omitempty"`
	PollIntervalSeconds     *int    `json:"poll_interval_seconds,omitempty"`
	WebhookURL              *string `json:"webhook_url,omitempty"`
	APIToken                *string `json:"api_token,omitempty"`
	RetentionKeepDays       *int    `json:"retention_keep_days,omitempty"`
	RetentionKeepPerAccount *int    `json:"retention_keep_per_account,omitempty"`
	MirrorReadToServer      *bool   `json:"mirror_read_to_server,omitempty"`
}

func (s *SettingsPatch) Bind(_ *http.Request) error {
	if s.PollIntervalSeconds != nil && *s.PollIntervalSeconds < 5 {
		return errPollIntervalTooLow
	}
	return nil
}

// SettingsExport is the {settings, accounts} document for GET /settings/export
// and POST /settings/import. Credentials are left ciphered.
type SettingsExport struct {
	Settings Settings  `json:"settings"`
	Accounts []Account `json:"accounts"`
}

// PollStatus is the per-account health projection surfaced via the API.
type PollStatus struct {
	AccountId      int64      `json:"account_id" db:"account_id"`
	LastStartedAt  *time.Time `json:"last_started_at" db:"last_started_at"`
	LastFinishedAt *time.Time `json:"last_finished_at" db:"last_finished_at"`
	LastSuccessAt  *time.Time `json:"last_success_at" db:"last_success_at"`
	LastError      string     `json:"last_error,omitempty" db:"last_error"`
}
