package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// RecordPollStarted marks the beginning of a poll cycle for accountId.
func (s *Store) RecordPollStarted(accountId int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO poll_status (account_id, last_started_at, last_error)
		VALUES (?, ?, '')
		ON CONFLICT(account_id) DO UPDATE SET last_started_at=excluded.last_started_at`,
		accountId, now)
	if err != nil {
		return newErr(KindTransient, "store.RecordPollStarted", err)
	}
	return nil
}

// RecordPollFinished marks the end of a poll cycle. pollErr is nil on
// success, in which case last_success_at is also advanced.
func (s *Store) RecordPollFinished(accountId int64, pollErr error) error {
	now := time.Now().UTC()
	errText := ""
	if pollErr != nil {
		errText = pollErr.Error()
	}
	if pollErr == nil {
		_, err := s.db.Exec(`UPDATE poll_status SET last_finished_at=?, last_success_at=?, last_error=''
			WHERE account_id=?`, now, now, accountId)
		if err != nil {
			return newErr(KindTransient, "store.RecordPollFinished", err)
		}
		return nil
	}
	_, err := s.db.Exec(`UPDATE poll_status SET last_finished_at=?, last_error=? WHERE account_id=?`,
		now, errText, accountId)
	if err != nil {
		return newErr(KindTransient, "store.RecordPollFinished", err)
	}
	return nil
}

func (s *Store) GetPollStatus(accountId int64) (*entity.PollStatus, error) {
	row := s.db.QueryRow(`SELECT account_id, last_started_at, last_finished_at, last_success_at,
		last_error FROM poll_status WHERE account_id = ?`, accountId)
	var p entity.PollStatus
	if err := row.Scan(&p.AccountId, &p.LastStartedAt, &p.LastFinishedAt, &p.LastSuccessAt, &p.LastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &entity.PollStatus{AccountId: accountId}, nil
		}
		return nil, newErr(KindTransient, "store.GetPollStatus", err)
	}
	return &p, nil
}

// ListPollStatuses returns the health projection for every account
// that has polled at least once.
func (s *Store) ListPollStatuses() ([]*entity.PollStatus, error) {
	rows, err := s.db.Query(`SELECT account_id, last_started_at, last_finished_at, last_success_at,
		last_error FROM poll_status`)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListPollStatuses", err)
	}
	defer rows.Close()

	var out []*entity.PollStatus
	for rows.Next() {
		var p entity.PollStatus
		if err := rows.Scan(&p.AccountId, &p.LastStartedAt, &p.LastFinishedAt, &p.LastSuccessAt, &p.LastError); err != nil {
			return nil, newErr(KindTransient, "store.ListPollStatuses", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
