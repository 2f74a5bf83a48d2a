package entity

import "net/http"

// Rule is one ordered predicate applied to every newly persisted message.
// A nil AccountId applies the rule to all accounts.
type Rule struct {
	Id            int64    `json:"id" db:"id"`
	Name          string   `json:"name" db:"name" validate:"required"`
	RuleOrder     int      `json:"rule_order" db:"rule_order"`
	AccountId     *int64   `json:"account_id" db:"account_id"`
	SenderPattern string   `json:"sender_pattern" db:"sender_pattern"`
	SubjectPattern string  `json:"subject_pattern" db:"subject_pattern"`
	BodyPattern   string   `json:"body_pattern" db:"body_pattern"`
	AddLabels     []string `json:"add_labels" db:"-"`
	PushTelegram  bool     `json:"push_telegram" db:"push_telegram"`
	MarkRead      bool     `json:"mark_read" db:"mark_read"`
}

type RuleCreate struct {
	Name           string   `json:"name" validate:"required"`
	RuleOrder      int      `json:"rule_order"`
	AccountId      *int64   `json:"account_id"`
	SenderPattern  string   `json:"sender_pattern"`
	SubjectPattern string   `json:"subject_pattern"`
	BodyPattern    string   `json:"body_pattern"`
	AddLabels      []string `json:"add_labels"`
	PushTelegram   bool     `json:"push_telegram"`
	MarkRead       bool     `json:"mark_read"`
}

func (r *RuleCreate) Bind(_ *http.Request) error {
	if r.Name == "" {
		return errRuleNameRequired
	}
	return nil
}

type RulePatch struct {
	Name           *string   `json:"name,omitempty"`
	RuleOrder      *int      `json:"rule_order,omitempty"`
	AccountId      **int64   `json:"account_id,omitempty"`
	SenderPattern  *string   `json:"sender_pattern,omitempty"`
	SubjectPattern *string   `json:"subject_pattern,omitempty"`
	BodyPattern    *string   `json:"body_pattern,omitempty"`
	AddLabels      *[]string `json:"add_labels,omitempty"`
	PushTelegram   *bool     `json:"push_telegram,omitempty"`
	MarkRead       *bool     `json:"mark_read,omitempty"`
}

func (p *RulePatch) Bind(_ *http.Request) error {
	return nil
}

// PushFilterField is the message field a PushFilter predicate checks.
type PushFilterField string

const (
	FieldSender  PushFilterField = "sender"
	FieldDomain  PushFilterField = "domain"
	FieldSubject PushFilterField = "subject"
	FieldBody    PushFilterField = "body"
)

// PushFilterMode determines whether a match allows or denies delivery.
type PushFilterMode string

const (
	ModeAllow PushFilterMode = "allow"
	ModeDeny  PushFilterMode = "deny"
)

// PushFilter is a per-account inclusion/exclusion predicate applied
// after the rule engine and before Telegram delivery.
type PushFilter struct {
	Id        int64           `json:"id" db:"id"`
	AccountId int64           `json:"account_id" db:"account_id"`
	Field     PushFilterField `json:"field" db:"field"`
	Mode      PushFilterMode  `json:"mode" db:"mode"`
	Value     string          `json:"value" db:"value"`
	RuleOrder int             `json:"rule_order" db:"rule_order"`
}

type PushFilterCreate struct {
	Field     PushFilterField `json:"field" validate:"required"`
	Mode      PushFilterMode  `json:"mode" validate:"required"`
	Value     string          `json:"value" validate:"required"`
	RuleOrder int             `json:"rule_order"`
}

func (p *PushFilterCreate) Bind(_ *http.Request) error {
	switch p.Field {
	case FieldSender, FieldDomain, FieldSubject, FieldBody:
	default:
		return errInvalidPushFilterField
	}
	switch p.Mode {
	case ModeAllow, ModeDeny:
	default:
		return errInvalidPushFilterMode
	}
	return nil
}
