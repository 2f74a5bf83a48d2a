package rules

import (
	"testing"

	"github.com/themadorg/mailaggregator/entity"
)

// TestRuleOrderingLaterRuleWins covers scenario S2: two rules both
// match, each contributes its labels, but the later rule's
// push_telegram wins.
func TestRuleOrderingLaterRuleWins(t *testing.T) {
	r1 := &entity.Rule{RuleOrder: 0, SubjectPattern: "alert", AddLabels: []string{"P1"}, PushTelegram: true}
	r2 := &entity.Rule{RuleOrder: 1, SubjectPattern: "alert", AddLabels: []string{"P2"}, PushTelegram: false}

	msg := &entity.Message{AccountId: 1, Subject: "Alert: disk"}

	decision := Evaluate(msg, []*entity.Rule{r1, r2}, true)

	if _, ok := decision.AddLabels["P1"]; !ok {
		t.Error("expected label P1 from first rule")
	}
	if _, ok := decision.AddLabels["P2"]; !ok {
		t.Error("expected label P2 from second rule")
	}
	if decision.PushTelegram {
		t.Error("expected push_telegram=false, the later rule's value")
	}
}

func TestAccountScopedRuleIgnoresOtherAccounts(t *testing.T) {
	otherAccount := int64(99)
	r := &entity.Rule{AccountId: &otherAccount, SubjectPattern: "alert", PushTelegram: false}
	msg := &entity.Message{AccountId: 1, Subject: "alert"}

	decision := Evaluate(msg, []*entity.Rule{r}, true)

	if !decision.PushTelegram {
		t.Error("rule scoped to a different account must not apply")
	}
}

func TestEmptyPatternAlwaysMatches(t *testing.T) {
	r := &entity.Rule{AddLabels: []string{"always"}}
	msg := &entity.Message{AccountId: 1, Subject: "anything at all"}

	decision := Evaluate(msg, []*entity.Rule{r}, true)

	if _, ok := decision.AddLabels["always"]; !ok {
		t.Error("rule with all-empty predicates must match every message")
	}
}

func TestMarkReadAccumulatesTrueAcrossRules(t *testing.T) {
	r1 := &entity.Rule{SubjectPattern: "a", MarkRead: false}
	r2 := &entity.Rule{SubjectPattern: "a", MarkRead: true}
	msg := &entity.Message{AccountId: 1, Subject: "a"}

	decision := Evaluate(msg, []*entity.Rule{r1, r2}, true)

	if !decision.MarkRead {
		t.Error("mark_read must stay true once any matching rule sets it")
	}
}

// TestEvaluateIsDeterministic covers property 2: the same ordered
// rule list and message always produce the same decision, which
// reapply-rules depends on.
func TestEvaluateIsDeterministic(t *testing.T) {
	rs := []*entity.Rule{
		{RuleOrder: 0, SenderPattern: "boss", AddLabels: []string{"important"}, PushTelegram: true},
		{RuleOrder: 1, SubjectPattern: "invoice", AddLabels: []string{"finance"}, MarkRead: true},
	}
	msg := &entity.Message{AccountId: 1, Sender: "boss@example.com", Subject: "Invoice due"}

	first := Evaluate(msg, rs, true)
	second := Evaluate(msg, rs, true)

	if len(first.AddLabels) != len(second.AddLabels) {
		t.Fatalf("label set size differs across runs: %v vs %v", first.AddLabels, second.AddLabels)
	}
	for l := range first.AddLabels {
		if _, ok := second.AddLabels[l]; !ok {
			t.Fatalf("label %q missing on second run", l)
		}
	}
	if first.PushTelegram != second.PushTelegram || first.MarkRead != second.MarkRead {
		t.Fatal("decision flags differ across runs")
	}
}

func TestCaseInsensitiveSubstringMatch(t *testing.T) {
	r := &entity.Rule{SubjectPattern: "ALERT", AddLabels: []string{"hit"}}
	msg := &entity.Message{AccountId: 1, Subject: "an alert fired"}

	decision := Evaluate(msg, []*entity.Rule{r}, false)

	if _, ok := decision.AddLabels["hit"]; !ok {
		t.Error("expected case-insensitive match to apply the rule")
	}
}
