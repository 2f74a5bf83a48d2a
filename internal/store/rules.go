package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/themadorg/mailaggregator/entity"
)

func (s *Store) CreateRule(r *entity.Rule) (*entity.Rule, error) {
	res, err := s.db.Exec(`
		INSERT INTO rules (name, rule_order, account_id, sender_pattern, subject_pattern,
			body_pattern, push_telegram, mark_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.RuleOrder, r.AccountId, r.SenderPattern, r.SubjectPattern,
		r.BodyPattern, boolToInt(r.PushTelegram), boolToInt(r.MarkRead))
	if err != nil {
		return nil, newErr(KindTransient, "store.CreateRule", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newErr(KindTransient, "store.CreateRule", err)
	}
	if len(r.AddLabels) > 0 {
		if err := s.setRuleLabels(id, r.AddLabels); err != nil {
			return nil, err
		}
	}
	return s.GetRule(id)
}

func (s *Store) setRuleLabels(ruleId int64, labels []string) error {
	for _, label := range labels {
		if _, err := s.db.Exec(`INSERT INTO rule_labels (rule_id, label) VALUES (?, ?)
			ON CONFLICT(rule_id, label) DO NOTHING`, ruleId, label); err != nil {
			return newErr(KindTransient, "store.setRuleLabels", err)
		}
	}
	return nil
}

func (s *Store) loadRuleLabels(ruleId int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT label FROM rule_labels WHERE rule_id=?`, ruleId)
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

func (s *Store) GetRule(id int64) (*entity.Rule, error) {
	row := s.db.QueryRow(`SELECT id, name, rule_order, account_id, sender_pattern, subject_pattern,
		body_pattern, push_telegram, mark_read FROM rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newErr(KindNotFound, "store.GetRule", fmt.Errorf("rule %d", id))
	}
	if err != nil {
		return nil, newErr(KindTransient, "store.GetRule", err)
	}
	labels, err := s.loadRuleLabels(id)
	if err != nil {
		return nil, newErr(KindTransient, "store.GetRule", err)
	}
	r.AddLabels = labels
	return r, nil
}

func scanRule(row rowScanner) (*entity.Rule, error) {
	var r entity.Rule
	if err := row.Scan(&r.Id, &r.Name, &r.RuleOrder, &r.AccountId, &r.SenderPattern,
		&r.SubjectPattern, &r.BodyPattern, &r.PushTelegram, &r.MarkRead); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns all rules ordered by (rule_order ASC, id ASC), the
// order the rule engine folds over them (spec §4.5).
func (s *Store) ListRules() ([]*entity.Rule, error) {
	rows, err := s.db.Query(`SELECT id, name, rule_order, account_id, sender_pattern, subject_pattern,
		body_pattern, push_telegram, mark_read FROM rules ORDER BY rule_order ASC, id ASC`)
	if err != nil {
		return nil, newErr(KindTransient, "store.ListRules", err)
	}
	defer rows.Close()

	var out []*entity.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListRules", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, newErr(KindTransient, "store.ListRules", err)
	}
	for _, r := range out {
		labels, err := s.loadRuleLabels(r.Id)
		if err != nil {
			return nil, newErr(KindTransient, "store.ListRules", err)
		}
		r.AddLabels = labels
	}
	return out, nil
}

type RuleUpdate struct {
	Name             *string
	RuleOrder        *int
	AccountIdSet     bool
	AccountId        *int64
	SenderPattern    *string
	SubjectPattern   *string
	BodyPattern      *string
	AddLabelsSet     bool
	AddLabels        []string
	PushTelegram     *bool
	MarkRead         *bool
}

func (s *Store) UpdateRule(id int64, u RuleUpdate) (*entity.Rule, error) {
	current, err := s.GetRule(id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		current.Name = *u.Name
	}
	if u.RuleOrder != nil {
		current.RuleOrder = *u.RuleOrder
	}
	if u.AccountIdSet {
		current.AccountId = u.AccountId
	}
	if u.SenderPattern != nil {
		current.SenderPattern = *u.SenderPattern
	}
	if u.SubjectPattern != nil {
		current.SubjectPattern = *u.SubjectPattern
	}
	if u.BodyPattern != nil {
		current.BodyPattern = *u.BodyPattern
	}
	if u.PushTelegram != nil {
		current.PushTelegram = *u.PushTelegram
	}
	if u.MarkRead != nil {
		current.MarkRead = *u.MarkRead
	}

	_, err = s.db.Exec(`UPDATE rules SET name=?, rule_order=?, account_id=?, sender_pattern=?,
		subject_pattern=?, body_pattern=?, push_telegram=?, mark_read=? WHERE id=?`,
		current.Name, current.RuleOrder, current.AccountId, current.SenderPattern,
		current.SubjectPattern, current.BodyPattern, boolToInt(current.PushTelegram),
		boolToInt(current.MarkRead), id)
	if err != nil {
		return nil, newErr(KindTransient, "store.UpdateRule", err)
	}

	if u.AddLabelsSet {
		if _, err := s.db.Exec(`DELETE FROM rule_labels WHERE rule_id=?`, id); err != nil {
			return nil, newErr(KindTransient, "store.UpdateRule", err)
		}
		if err := s.setRuleLabels(id, u.AddLabels); err != nil {
			return nil, err
		}
	}

	return s.GetRule(id)
}

func (s *Store) DeleteRule(id int64) error {
	res, err := s.db.Exec(`DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return newErr(KindTransient, "store.DeleteRule", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return newErr(KindNotFound, "store.DeleteRule", fmt.Errorf("rule %d", id))
	}
	return nil
}
