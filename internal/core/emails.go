package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/rules"
)

func (c *Core) QueryMessages(filter entity.MessageFilter, page entity.Page) ([]*entity.Message, int, error) {
	return c.store.QueryMessages(filter, page)
}

func (c *Core) GetMessage(id int64) (*entity.Message, error) {
	return c.store.GetMessage(id)
}

func (c *Core) MarkMessageRead(id int64) error {
	return c.store.MarkRead(id, true)
}

// FetchOnce triggers an immediate poll cycle for accountId, ahead of
// its loop's own schedule.
func (c *Core) FetchOnce(ctx context.Context, accountId int64) error {
	return c.scheduler.TriggerOnce(ctx, accountId)
}

// ApplyRules replays the rule engine over every persisted message,
// reassigning labels. It does not re-trigger delivery or mark_read:
// those are ingest-time side effects the reapply operation only
// repairs labels for.
func (c *Core) ApplyRules() (*entity.ApplyRulesResult, error) {
	messages, err := c.store.ListAllMessages()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	allRules, err := c.store.ListRules()
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	accounts, err := c.store.ListAccounts(false)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	telegramByAccount := make(map[int64]bool, len(accounts))
	for _, a := range accounts {
		telegramByAccount[a.Id] = a.TelegramPushEnabled
	}

	updated := 0
	for _, m := range messages {
		decision := rules.Evaluate(m, allRules, telegramByAccount[m.AccountId])
		labels := decision.Labels()
		if !sameLabels(m.Labels, labels) {
			updated++
		}
		if err := c.store.ApplyLabels(m.Id, labels); err != nil {
			return nil, fmt.Errorf("apply labels for message %d: %w", m.Id, err)
		}
	}

	return &entity.ApplyRulesResult{Updated: updated, Total: len(messages)}, nil
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
