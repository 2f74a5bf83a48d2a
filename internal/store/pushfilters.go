package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/themadorg/mailaggregator/entity"
)

func (s *Store) CreatePushFilter(accountId int64, f *entity.PushFilterCreate) (*entity.PushFilter, error) {
	res, err := s.db.Exec(`INSERT INTO push_filters (account_id, field, mode, value, rule_order)
		VALUES (?, ?, ?, ?, ?)`, accountId, string(f.Field), string(f.Mode), f.Value, f.RuleOrder)
	if err != nil {
		return nil, newErr(KindTransient, "store.CreatePushFilter", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newErr(KindTransient, "store.CreatePushFilter", err)
	}
	return s.GetPushFilter(id)
}

func (s *Store) GetPushFilter(id int64) (*entity.PushFilter, error) {
	row := s.db.QueryRow(`SELECT id, account_id, field, mode, value, rule_order
		FROM push_filters WHERE id = ?`, id)
	f, err := scanPushFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(KindNotFound, "store.GetPushFilter", fmt.Errorf("push filter %d", id))
	}
	if err != nil {
		return nil, newErr(KindTransient, "store.GetPushFilter", err)
	}
	return f, nil
}

func scanPushFilter(row rowScanner) (*entity.PushFilter, error) {
	var f entity.PushFilter
	var field, mode string
	if err := row.Scan(&f.Id, &f.AccountId, &field, &mode, &f.Value, &f.RuleOrder); err != nil {
		return nil, err
	}
	f.Field = entity.PushFilterField(field)
	f.Mode = entity.PushFilterMode(mode)
	return &f, nil
}

// ListPushFilters returns an account's filters ordered by (rule_order
// ASC, id ASC), the order the delivery layer evaluates them in.
func (s *Store) ListPushFilters(accountId int64) ([]*entity.PushFilter, error) {
	rows, err := s.db.Query(`SELECT id, account_id, field, mode, value, rule_order
		FROM push_filters WHERE account_id = ? ORDER BY rule_order ASC, id ASC`, accountId)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListPushFilters", err)
	}
	defer rows.Close()

	var out []*entity.PushFilter
	for rows.Next() {
		f, err := scanPushFilter(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListPushFilters", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeletePushFilter(id int64) error {
	res, err := s.db.Exec(`DELETE FROM push_filters WHERE id = ?`, id)
	if err != nil {
		return newErr(KindTransient, "store.DeletePushFilter", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return newErr(KindNotFound, "store.DeletePushFilter", fmt.Errorf("push filter %d", id))
	}
	return nil
}
