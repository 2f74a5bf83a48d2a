package core

import (
	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/store"
)

func (c *Core) ListRules() ([]*entity.Rule, error) {
	return c.store.ListRules()
}

func (c *Core) CreateRule(in *entity.RuleCreate) (*entity.Rule, error) {
	rule := &entity.Rule{
		Name:           in.Name,
		RuleOrder:      in.RuleOrder,
		AccountId:      in.AccountId,
		SenderPattern:  in.SenderPattern,
		SubjectPattern: in.SubjectPattern,
		BodyPattern:    in.BodyPattern,
		AddLabels:      in.AddLabels,
		PushTelegram:   in.PushTelegram,
		MarkRead:       in.MarkRead,
	}
	return c.store.CreateRule(rule)
}

func (c *Core) UpdateRule(id int64, p *entity.RulePatch) (*entity.Rule, error) {
	u := store.RuleUpdate{
		Name:           p.Name,
		RuleOrder:      p.RuleOrder,
		SenderPattern:  p.SenderPattern,
		SubjectPattern: p.SubjectPattern,
		BodyPattern:    p.BodyPattern,
		PushTelegram:   p.PushTelegram,
		MarkRead:       p.MarkRead,
	}
	if p.AccountId != nil {
		u.AccountIdSet = true
		u.AccountId = *p.AccountId
	}
	if p.AddLabels != nil {
		u.AddLabelsSet = true
		u.AddLabels = *p.AddLabels
	}
	return c.store.UpdateRule(id, u)
}

func (c *Core) DeleteRule(id int64) error {
	return c.store.DeleteRule(id)
}
