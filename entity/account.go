// Package entity defines domain types shared across the application.
package entity

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/themadorg/mailaggregator/lib/validate"
)

// PushTemplate selects how a matched message is rendered for Telegram delivery.
type PushTemplate string

const (
	TemplateFullEmail PushTemplate = "full_email"
	TemplateFull       PushTemplate = "full"
	TemplateShort      PushTemplate = "short"
	TemplateTitleOnly  PushTemplate = "title_only"
)

// IsValid reports whether t is one of the known preset templates.
func (t PushTemplate) IsValid() bool {
	switch t {
	case TemplateFullEmail, TemplateFull, TemplateShort, TemplateTitleOnly:
		return true
	}
	return false
}

// Account is one IMAP mailbox polled on behalf of the administrator.
// CredentialCiphertext is the AEAD-sealed app password; it is never
// serialized to JSON and decrypted only inside the fetcher's IMAP dial.
type Account struct {
	Id                  int64        `json:"id" db:"id"`
	Email               string       `json:"email" db:"email" validate:"required,email"`
	ProviderTag         string       `json:"provider_tag" db:"provider_tag"`
	Host                string       `json:"host" db:"host" validate:"required"`
	Port                int          `json:"port" db:"port" validate:"required,min=1,max=65535"`
	CredentialCiphertext []byte      `json:"-" db:"credential_ciphertext"`
	IsActive            bool         `json:"is_active" db:"is_active"`
	SortOrder           int          `json:"sort_order" db:"sort_order"`
	PollIntervalSeconds *int         `json:"poll_interval_seconds" db:"poll_interval_seconds"`
	TelegramPushEnabled bool         `json:"telegram_push_enabled" db:"telegram_push_enabled"`
	PushTemplate        PushTemplate `json:"push_template" db:"push_template"`
	LastUIDWatermark    string       `json:"-" db:"last_uid_watermark"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// EffectivePollInterval returns the account's own interval, or the
// global default when the account inherits (PollIntervalSeconds == nil).
func (a *Account) EffectivePollInterval(globalDefault int) int {
	if a.PollIntervalSeconds != nil {
		return *a.PollIntervalSeconds
	}
	return globalDefault
}

// AccountCreate is the request payload for POST /accounts/.
// Password is the plaintext app password; it is encrypted once and discarded.
type AccountCreate struct {
	Email               string       `json:"email" validate:"required,email"`
	ProviderTag         string       `json:"provider_tag"`
	Host                string       `json:"host" validate:"required"`
	Port                int          `json:"port" validate:"required,min=1,max=65535"`
	Password            string       `json:"password" validate:"required"`
	SortOrder           int          `json:"sort_order"`
	PollIntervalSeconds *int         `json:"poll_interval_seconds"`
	TelegramPushEnabled bool         `json:"telegram_push_enabled"`
	PushTemplate        PushTemplate `json:"push_template"`
}

func (a *AccountCreate) Bind(_ *http.Request) error {
	if a.PushTemplate == "" {
		a.PushTemplate = TemplateShort
	}
	if !a.PushTemplate.IsValid() {
		return errInvalidTemplate
	}
	if a.PollIntervalSeconds != nil && *a.PollIntervalSeconds < 5 {
		return errPollIntervalTooLow
	}
	return validate.Struct(a)
}

// AccountPatch is the request payload for PATCH /accounts/{id}.
// Pointer/optional-present fields distinguish "no change" from an
// explicit reset: a present-but-nil PollIntervalSeconds means "inherit
// global" (an explicit JSON null); an absent field (nil outer pointer)
// means "leave unchanged".
type AccountPatch struct {
	Email               *string       `json:"email,omitempty"`
	ProviderTag         *string       `json:"provider_tag,omitempty"`
	Host                *string       `json:"host,omitempty"`
	Port                *int          `json:"port,omitempty"`
	Password            *string       `json:"password,omitempty"`
	IsActive            *bool         `json:"is_active,omitempty"`
	SortOrder           *int          `json:"sort_order,omitempty"`
	PollIntervalSeconds **int         `json:"poll_interval_seconds,omitempty"`
	TelegramPushEnabled *bool         `json:"telegram_push_enabled,omitempty"`
	PushTemplate        *PushTemplate `json:"push_template,omitempty"`
}

// UnmarshalJSON keeps "poll_interval_seconds": null as present-but-nil;
// plain encoding/json would fold it into the absent case.
func (p *AccountPatch) UnmarshalJSON(data []byte) error {
	type plain AccountPatch
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["poll_interval_seconds"]; ok && string(v) == "null" {
		var inherit *int
		p.PollIntervalSeconds = &inherit
	}
	return nil
}

func (p *AccountPatch) Bind(_ *http.Request) error {
	if p.PushTemplate != nil && !p.PushTemplate.IsValid() {
		return errInvalidTemplate
	}
	if p.PollIntervalSeconds != nil && *p.PollIntervalSeconds != nil && **p.PollIntervalSeconds < 5 {
		return errPollIntervalTooLow
	}
	return nil
}
