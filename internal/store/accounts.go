package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// CreateAccount inserts a new account with its already-encrypted
// credential. Email uniqueness is enforced by the schema; a duplicate
// surfaces as a Conflict store error.
func (s *Store) CreateAccount(a *entity.Account) (*entity.Account, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO accounts (email, provider_tag, host, port, credential_ciphertext,
			is_active, sort_order, poll_interval_seconds, telegram_push_enabled,
			push_template, last_uid_watermark, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		a.Email, a.ProviderTag, a.Host, a.Port, a.CredentialCiphertext,
		boolToInt(a.IsActive), a.SortOrder, a.PollIntervalSeconds, boolToInt(a.TelegramPushEnabled),
		string(a.PushTemplate), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newErr(KindConflict, "store.CreateAccount", fmt.Errorf("email already exists: %s", a.Email))
		}
		return nil, newErr(KindTransient, "store.CreateAccount", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newErr(KindTransient, "store.CreateAccount", err)
	}
	return s.GetAccount(id)
}

func (s *Store) GetAccount(id int64) (*entity.Account, error) {
	row := s.db.QueryRow(`SELECT id, email, provider_tag, host, port, credential_ciphertext,
		is_active, sort_order, poll_interval_seconds, telegram_push_enabled, push_template,
		last_uid_watermark, created_at, updated_at FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(KindNotFound, "store.GetAccount", fmt.Errorf("account %d", id))
	}
	if err != nil {
		return nil, newErr(KindTransient, "store.GetAccount", err)
	}
	return a, nil
}

// ListAccounts returns accounts ordered by sort_order ASC, id ASC. When
// activeOnly is true, inactive accounts are excluded.
func (s *Store) ListAccounts(activeOnly bool) ([]*entity.Account, error) {
	query := `SELECT id, email, provider_tag, host, port, credential_ciphertext,
		is_active, sort_order, poll_interval_seconds, telegram_push_enabled, push_template,
		last_uid_watermark, created_at, updated_at FROM accounts`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order ASC, id ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListAccounts", err)
	}
	defer rows.Close()

	var out []*entity.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListAccounts", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*entity.Account, error) {
	var a entity.Account
	var pushTemplate string
	if err := row.Scan(&a.Id, &a.Email, &a.ProviderTag, &a.Host, &a.Port, &a.CredentialCiphertext,
		&a.IsActive, &a.SortOrder, &a.PollIntervalSeconds, &a.TelegramPushEnabled, &pushTemplate,
		&a.LastUIDWatermark, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.PushTemplate = entity.PushTemplate(pushTemplate)
	return &a, nil
}

// AccountUpdate carries only the fields to change; nil pointers mean
// "leave unchanged". NewCredentialCiphertext is set when credential
// rotation happened (re-encrypted by the caller before this call).
type AccountUpdate struct {
	Email                    *string
	ProviderTag              *string
	Host                     *string
	Port                     *int
	NewCredentialCiphertext  []byte
	IsActive                 *bool
	SortOrder                *int
	PollIntervalSecondsSet   bool
	PollIntervalSeconds      *int
	TelegramPushEnabled      *bool
	PushTemplate             *entity.PushTemplate
}

func (s *Store) UpdateAccount(id int64, u AccountUpdate) (*entity.Account, error) {
	current, err := s.GetAccount(id)
	if err != nil {
		return nil, err
	}

	if u.Email != nil {
		current.Email = *u.Email
	}
	if u.ProviderTag != nil {
		current.ProviderTag = *u.ProviderTag
	}
	if u.Host != nil {
		current.Host = *u.Host
	}
	if u.Port != nil {
		current.Port = *u.Port
	}
	if u.NewCredentialCiphertext != nil {
		current.CredentialCiphertext = u.NewCredentialCiphertext
	}
	if u.IsActive != nil {
		current.IsActive = *u.IsActive
	}
	if u.SortOrder != nil {
		current.SortOrder = *u.SortOrder
	}
	if u.PollIntervalSecondsSet {
		current.PollIntervalSeconds = u.PollIntervalSeconds
	}
	if u.TelegramPushEnabled != nil {
		current.TelegramPushEnabled = *u.TelegramPushEnabled
	}
	if u.PushTemplate != nil {
		current.PushTemplate = *u.PushTemplate
	}

	_, err = s.db.Exec(`UPDATE accounts SET email=?, provider_tag=?, host=?, port=?,
		credential_ciphertext=?, is_active=?, sort_order=?, poll_interval_seconds=?,
		telegram_push_enabled=?, push_template=?, updated_at=? WHERE id=?`,
		current.Email, current.ProviderTag, current.Host, current.Port,
		current.CredentialCiphertext, boolToInt(current.IsActive), current.SortOrder,
		current.PollIntervalSeconds, boolToInt(current.TelegramPushEnabled),
		string(current.PushTemplate), time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, newErr(KindConflict, "store.UpdateAccount", fmt.Errorf("email already exists"))
		}
		return nil, newErr(KindTransient, "store.UpdateAccount", err)
	}
	return s.GetAccount(id)
}

// UpdateWatermark sets the account's last_uid_watermark, used by the
// fetcher after a successful poll.
func (s *Store) UpdateWatermark(accountId int64, watermark string) error {
	_, err := s.db.Exec(`UPDATE accounts SET last_uid_watermark=?, updated_at=? WHERE id=?`,
		watermark, time.Now().UTC(), accountId)
	if err != nil {
		return newErr(KindTransient, "store.UpdateWatermark", err)
	}
	return nil
}

// DeleteAccount removes the account and cascades to messages, rules
// scoped to it, and push filters, per schema's ON DELETE CASCADE.
func (s *Store) DeleteAccount(id int64) error {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return newErr(KindTransient, "store.DeleteAccount", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return newErr(KindNotFound, "store.DeleteAccount", fmt.Errorf("account %d", id))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
