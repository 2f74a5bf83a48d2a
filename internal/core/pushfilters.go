package core

import "github.com/themadorg/mailaggregator/entity"

func (c *Core) CreatePushFilter(accountId int64, in *entity.PushFilterCreate) (*entity.PushFilter, error) {
	return c.store.CreatePushFilter(accountId, in)
}

func (c *Core) ListPushFilters(accountId int64) ([]*entity.PushFilter, error) {
	return c.store.ListPushFilters(accountId)
}

func (c *Core) DeletePushFilter(id int64) error {
	return c.store.DeletePushFilter(id)
}
