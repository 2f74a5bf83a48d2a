// Package rules implements the deterministic, side-effect-free rule
// engine: an ordered fold over predicates that produces a Decision
// for one message (spec §4.6).
package rules

import (
	"strings"

	"github.com/themadorg/mailaggregator/entity"
)

// Decision is the rule engine's output for one message.
type Decision struct {
	AddLabels    map[string]struct{}
	PushTelegram bool
	MarkRead     bool
}

// Labels returns the decision's label set as a slice in map iteration
// order, which is not stable between calls.
func (d Decision) Labels() []string {
	out := make([]string, 0, len(d.AddLabels))
	for l := range d.AddLabels {
		out = append(out, l)
	}
	return out
}

// Evaluate folds rules, in the order given, over message and returns
// the resulting Decision. Callers must pass rules already sorted by
// (rule_order ASC, id ASC) — store.ListRules does this.
//
// The engine never short-circuits: every candidate rule that matches
// contributes to the final decision, so later rules can override an
// earlier rule's push_telegram (spec §4.6, scenario S2).
func Evaluate(message *entity.Message, rules []*entity.Rule, accountTelegramPushEnabled bool) Decision {
	d := Decision{
		AddLabels:    make(map[string]struct{}),
		PushTelegram: accountTelegramPushEnabled,
		MarkRead:     false,
	}

	for _, r := range rules {
		if !isCandidate(r, message.AccountId) {
			continue
		}
		if !matches(r, message) {
			continue
		}
		for _, l := range r.AddLabels {
			d.AddLabels[l] = struct{}{}
		}
		d.PushTelegram = r.PushTelegram
		d.MarkRead = d.MarkRead || r.MarkRead
	}

	return d
}

func isCandidate(r *entity.Rule, messageAccountId int64) bool {
	return r.AccountId == nil || *r.AccountId == messageAccountId
}

func matches(r *entity.Rule, m *entity.Message) bool {
	return predicateMatches(r.SenderPattern, m.Sender) &&
		predicateMatches(r.SubjectPattern, m.Subject) &&
		predicateMatches(r.BodyPattern, m.BodyText)
}

// predicateMatches is a case-insensitive substring test; an empty
// pattern always matches (spec §4.6).
func predicateMatches(pattern, field string) bool {
	if pattern == "" {
		return true
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(pattern))
}
