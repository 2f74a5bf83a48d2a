package core

import (
	"fmt"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// StatsOverview backs GET /stats/overview?days=N: per-account message
// counts received in the trailing days days.
func (c *Core) StatsOverview(days int) (*entity.StatsOverview, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	counts, err := c.store.CountMessagesSince(since)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	accounts, err := c.store.ListAccounts(false)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := entity.StatsOverview{Days: days}
	for _, a := range accounts {
		n := counts[a.Id]
		out.TotalMessages += n
		out.PerAccount = append(out.PerAccount, entity.AccountMessageCount{
			AccountId: a.Id, Email: a.Email, Count: n,
		})
	}
	return &out, nil
}

func (c *Core) Cleanup() (*entity.CleanupResult, error) {
	return c.retention.Cleanup()
}

func (c *Core) Archive() (*entity.ArchiveResult, error) {
	return c.retention.Archive()
}

func (c *Core) ReadArchive(name string) ([]byte, error) {
	return c.retention.ReadArchive(name)
}
