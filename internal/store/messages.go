package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// InsertMessageIfNew persists msg and returns its assigned id and
// whether it was actually new. A duplicate (account_id, message_id)
// pair is NOT an error: the caller (fetcher) treats it as an
// already-seen message and moves on, giving exactly-once persistence
// across restarts (spec §4.4, property 1).
func (s *Store) InsertMessageIfNew(msg *entity.Message) (id int64, inserted bool, err error) {
	res, err := s.db.Exec(`
		INSERT INTO messages (account_id, message_id, subject, sender, body_text, body_html,
			content_summary, received_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, message_id) DO NOTHING`,
		msg.AccountId, msg.MessageId, msg.Subject, msg.Sender, msg.BodyText, msg.BodyHTML,
		msg.ContentSummary, msg.ReceivedAt, boolToInt(msg.IsRead))
	if err != nil {
		return 0, false, newErr(KindTransient, "store.InsertMessageIfNew", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var existingId int64
		if err := s.db.QueryRow(`SELECT id FROM messages WHERE account_id=? AND message_id=?`,
			msg.AccountId, msg.MessageId).Scan(&existingId); err != nil {
			return 0, false, newErr(KindTransient, "store.InsertMessageIfNew", err)
		}
		return existingId, false, nil
	}
	newId, err := res.LastInsertId()
	if err != nil {
		return 0, false, newErr(KindTransient, "store.InsertMessageIfNew", err)
	}
	if len(msg.Labels) > 0 {
		if err := s.setMessageLabels(newId, msg.Labels); err != nil {
			return 0, false, err
		}
	}
	return newId, true, nil
}

func (s *Store) setMessageLabels(messageId int64, labels []string) error {
	for i, label := range labels {
		if _, err := s.db.Exec(`INSERT INTO message_labels (message_id, label, position) VALUES (?, ?, ?)
			ON CONFLICT(message_id, label) DO NOTHING`, messageId, label, i); err != nil {
			return newErr(KindTransient, "store.setMessageLabels", err)
		}
	}
	return nil
}

func (s *Store) loadLabels(messageId int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT label FROM message_labels WHERE message_id=? ORDER BY position ASC`, messageId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (s *Store) GetMessage(id int64) (*entity.Message, error) {
	row := s.db.QueryRow(`SELECT id, account_id, message_id, subject, sender, body_text, body_html,
		content_summary, received_at, is_read FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(KindNotFound, "store.GetMessage", fmt.Errorf("message %d", id))
	}
	if err != nil {
		return nil, newErr(KindTransient, "store.GetMessage", err)
	}
	labels, err := s.loadLabels(id)
	if err != nil {
		return nil, newErr(KindTransient, "store.GetMessage", err)
	}
	m.Labels = labels
	return m, nil
}

func scanMessage(row rowScanner) (*entity.Message, error) {
	var m entity.Message
	if err := row.Scan(&m.Id, &m.AccountId, &m.MessageId, &m.Subject, &m.Sender, &m.BodyText,
		&m.BodyHTML, &m.ContentSummary, &m.ReceivedAt, &m.IsRead); err != nil {
		return nil, err
	}
	return &m, nil
}

// QueryMessages applies filter and pagination (spec §4.6) and returns
// the matching page plus the total count ignoring pagination.
func (s *Store) QueryMessages(filter entity.MessageFilter, page entity.Page) ([]*entity.Message, int, error) {
	page.Normalize()

	var where []string
	var args []interface{}

	if filter.AccountId != nil {
		where = append(where, "account_id = ?")
		args = append(args, *filter.AccountId)
	}
	if filter.Keyword != "" {
		where = append(where, "(subject LIKE ? OR sender LIKE ? OR body_text LIKE ?)")
		kw := "%" + filter.Keyword + "%"
		args = append(args, kw, kw, kw)
	}
	if filter.IsRead != nil {
		where = append(where, "is_read = ?")
		args = append(args, boolToInt(*filter.IsRead))
	}
	if filter.DateFrom != nil {
		where = append(where, "received_at >= ?")
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, "received_at <= ?")
		args = append(args, *filter.DateTo)
	}
	if filter.Label != "" {
		where = append(where, "id IN (SELECT message_id FROM message_labels WHERE label = ?)")
		args = append(args, filter.Label)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM messages " + whereClause
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, newErr(KindTransient, "store.QueryMessages", err)
	}

	query := `SELECT id, account_id, message_id, subject, sender, body_text, body_html,
		content_summary, received_at, is_read FROM messages ` + whereClause +
		` ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?`
	pagedArgs := append(append([]interface{}{}, args...), page.PageSize, page.Offset())

	rows, err := s.db.Query(query, pagedArgs...)
	if err != nil {
		return nil, 0, newErr(KindTransient, "store.QueryMessages", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, newErr(KindTransient, "store.QueryMessages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, newErr(KindTransient, "store.QueryMessages", err)
	}

	for _, m := range out {
		labels, err := s.loadLabels(m.Id)
		if err != nil {
			return nil, 0, newErr(KindTransient, "store.QueryMessages", err)
		}
		m.Labels = labels
	}

	return out, total, nil
}

// MarkRead flips a message's read flag locally. Only the fetcher
// mirrors a rule-driven mark_read to the IMAP server (when
// settings.MirrorReadToServer is set); a mark-read through the API is
// not mirrored.
func (s *Store) MarkRead(id int64, read bool) error {
	res, err := s.db.Exec(`UPDATE messages SET is_read=? WHERE id=?`, boolToInt(read), id)
	if err != nil {
		return newErr(KindTransient, "store.MarkRead", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return newErr(KindNotFound, "store.MarkRead", fmt.Errorf("message %d", id))
	}
	return nil
}

// ApplyLabels overwrites a message's label set, used when a rule
// decision attaches labels at ingest time.
func (s *Store) ApplyLabels(messageId int64, labels []string) error {
	if _, err := s.db.Exec(`DELETE FROM message_labels WHERE message_id=?`, messageId); err != nil {
		return newErr(KindTransient, "store.ApplyLabels", err)
	}
	if err := s.setMessageLabels(messageId, labels); err != nil {
		return err
	}
	return nil
}

// DeleteMessagesBefore removes messages received before cutoff for
// account accountId. Returns the number of rows deleted. Retention
// cleanup uses DeleteMessagesBeforeAll instead.
func (s *Store) DeleteMessagesBefore(accountId int64, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE account_id=? AND received_at < ?`, accountId, cutoff)
	if err != nil {
		return 0, newErr(KindTransient, "store.DeleteMessagesBefore", err)
	}
	return res.RowsAffected()
}

// DeleteMessagesKeepingNewest keeps only the newest keep messages for
// accountId, deleting the rest. Used by the per-account retention cap.
func (s *Store) DeleteMessagesKeepingNewest(accountId int64, keep int) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE account_id=? AND id NOT IN (
		SELECT id FROM messages WHERE account_id=? ORDER BY received_at DESC, id DESC LIMIT ?)`,
		accountId, accountId, keep)
	if err != nil {
		return 0, newErr(KindTransient, "store.DeleteMessagesKeepingNewest", err)
	}
	return res.RowsAffected()
}

// ListMessagesBefore returns every message, across all accounts,
// received before cutoff. Used by the retention sweep to snapshot rows
// into an archive file before DeleteMessagesBeforeAll removes them.
func (s *Store) ListMessagesBefore(cutoff time.Time) ([]*entity.Message, error) {
	rows, err := s.db.Query(`SELECT id, account_id, message_id, subject, sender, body_text, body_html,
		content_summary, received_at, is_read FROM messages WHERE received_at < ? ORDER BY received_at ASC, id ASC`, cutoff)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListMessagesBefore", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListMessagesBefore", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, newErr(KindTransient, "store.ListMessagesBefore", err)
	}
	for _, m := range out {
		labels, err := s.loadLabels(m.Id)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListMessagesBefore", err)
		}
		m.Labels = labels
	}
	return out, nil
}

// DeleteMessagesBeforeAll deletes every message, across all accounts,
// received before cutoff. Used by the global retention_keep_days policy.
func (s *Store) DeleteMessagesBeforeAll(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM messages WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, newErr(KindTransient, "store.DeleteMessagesBeforeAll", err)
	}
	return res.RowsAffected()
}

// ListExcessMessages returns the messages that DeleteMessagesKeepingNewest
// would remove for accountId: every row beyond the newest keep, oldest
// first. Used to snapshot rows into an archive before deleting them.
func (s *Store) ListExcessMessages(accountId int64, keep int) ([]*entity.Message, error) {
	rows, err := s.db.Query(`SELECT id, account_id, message_id, subject, sender, body_text, body_html,
		content_summary, received_at, is_read FROM messages WHERE account_id=? AND id NOT IN (
			SELECT id FROM messages WHERE account_id=? ORDER BY received_at DESC, id DESC LIMIT ?)
		ORDER BY received_at ASC, id ASC`, accountId, accountId, keep)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListExcessMessages", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListExcessMessages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, newErr(KindTransient, "store.ListExcessMessages", err)
	}
	for _, m := range out {
		labels, err := s.loadLabels(m.Id)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListExcessMessages", err)
		}
		m.Labels = labels
	}
	return out, nil
}

// ListAllMessages returns every persisted message, ordered by id
// ascending. Used by the apply-rules maintenance operation, which must
// visit every message regardless of account or page.
func (s *Store) ListAllMessages() ([]*entity.Message, error) {
	rows, err := s.db.Query(`SELECT id, account_id, message_id, subject, sender, body_text, body_html,
		content_summary, received_at, is_read FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListAllMessages", err)
	}
	defer rows.Close()

	var out []*entity.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListAllMessages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, newErr(KindTransient, "store.ListAllMessages", err)
	}
	for _, m := range out {
		labels, err := s.loadLabels(m.Id)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListAllMessages", err)
		}
		m.Labels = labels
	}
	return out, nil
}

// CountMessagesSince returns, per account, how many messages were
// received at or after since. Used by GET /stats/overview.
func (s *Store) CountMessagesSince(since time.Time) (map[int64]int, error) {
	rows, err := s.db.Query(`SELECT account_id, COUNT(*) FROM messages WHERE received_at >= ? GROUP BY account_id`, since)
	if err != nil {
		return nil, newErr(KindTransient, "store.CountMessagesSince", err)
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var accountId int64
		var count int
		if err := rows.Scan(&accountId, &count); err != nil {
			return nil, newErr(KindTransient, "store.CountMessagesSince", err)
		}
		out[accountId] = count
	}
	return out, rows.Err()
}
