package core

import (
	"fmt"

	"github.com/themadorg/mailaggregator/entity"
	"github.com/themadorg/mailaggregator/internal/store"
)

func (c *Core) ListAccounts() ([]*entity.Account, error) {
	return c.store.ListAccounts(false)
}

func (c *Core) GetAccount(id int64) (*entity.Account, error) {
	return c.store.GetAccount(id)
}

// CreateAccount encrypts the plaintext password and persists the
// account, starting its poll loop immediately when it is created active.
func (c *Core) CreateAccount(in *entity.AccountCreate) (*entity.Account, error) {
	sealed, err := c.cipher.Encrypt([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	account := &entity.Account{
		Email:               in.Email,
		ProviderTag:         in.ProviderTag,
		Host:                in.Host,
		Port:                in.Port,
		CredentialCiphertext: sealed,
		IsActive:            true,
		SortOrder:           in.SortOrder,
		PollIntervalSeconds: in.PollIntervalSeconds,
		TelegramPushEnabled: in.TelegramPushEnabled,
		PushTemplate:        in.PushTemplate,
	}

	created, err := c.store.CreateAccount(account)
	if err != nil {
		return nil, err
	}

	c.scheduler.Spawn(created.Id)
	return created, nil
}

// UpdateAccount applies a patch, re-encrypting the credential when the
// caller supplies a new password, and spawns/stops the poll loop when
// is_active flips.
func (c *Core) UpdateAccount(id int64, p *entity.AccountPatch) (*entity.Account, error) {
	u := store.AccountUpdate{
		Email:               p.Email,
		ProviderTag:         p.ProviderTag,
		Host:                p.Host,
		Port:                p.Port,
		IsActive:            p.IsActive,
		SortOrder:           p.SortOrder,
		TelegramPushEnabled: p.TelegramPushEnabled,
		PushTemplate:        p.PushTemplate,
	}

	if p.PollIntervalSeconds != nil {
		u.PollIntervalSecondsSet = true
		u.PollIntervalSeconds = *p.PollIntervalSeconds
	}

	if p.Password != nil && *p.Password != "" {
		sealed, err := c.cipher.Encrypt([]byte(*p.Password))
		if err != nil {
			return nil, fmt.Errorf("encrypt credential: %w", err)
		}
		u.NewCredentialCiphertext = sealed
	}

	updated, err := c.store.UpdateAccount(id, u)
	if err != nil {
		return nil, err
	}

	switch {
	case updated.IsActive && !c.scheduler.Running(id):
		c.scheduler.Spawn(id)
	case !updated.IsActive && c.scheduler.Running(id):
		c.scheduler.Stop(id)
	}

	return updated, nil
}

func (c *Core) DeleteAccount(id int64) error {
	if err := c.store.DeleteAccount(id); err != nil {
		return err
	}
	c.scheduler.Stop(id)
	c.pollCache.Invalidate(id)
	return nil
}

// AccountsStatus pairs every account with its poll health, backing
// GET /accounts/status.
func (c *Core) AccountsStatus() ([]entity.AccountStatus, error) {
	accounts, err := c.store.ListAccounts(false)
	if err != nil {
		return nil, err
	}
	out := make([]entity.AccountStatus, 0, len(accounts))
	for _, a := range accounts {
		status, err := c.pollCache.Get(a.Id)
		if err != nil {
			return nil, fmt.Errorf("poll status for account %d: %w", a.Id, err)
		}
		out = append(out, entity.AccountStatus{Account: *a, PollStatus: *status})
	}
	return out, nil
}
