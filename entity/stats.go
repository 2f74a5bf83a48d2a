package entity

// StatsOverview summarizes activity over the trailing Days days,
// returned by GET /stats/overview.
type StatsOverview struct {
	Days            int                  `json:"days"`
	TotalMessages   int                  `json:"total_messages"`
	PerAccount      []AccountMessageCount `json:"per_account"`
}

type AccountMessageCount struct {
	AccountId int64  `json:"account_id"`
	Email     string `json:"email"`
	Count     int    `json:"count"`
}

// AccountStatus pairs an account with its poll health, returned by
// GET /accounts/status.
type AccountStatus struct {
	Account    Account    `json:"account"`
	PollStatus PollStatus `json:"poll_status"`
}

// CleanupResult reports how many messages a retention sweep removed.
type CleanupResult struct {
	DeletedCount int64 `json:"deleted_count"`
}

// ArchiveResult reports the archive file a retention sweep produced.
type ArchiveResult struct {
	Name         string `json:"name"`
	DeletedCount int64  `json:"deleted_count"`
}

// ApplyRulesResult is the response for POST /emails/apply-rules (spec
// §8 scenario S6).
type ApplyRulesResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}
