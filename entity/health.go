package entity

import "time"

// PollerHealth aggregates poll activity across every account for
// GET /health.
type PollerHealth struct {
	LastStartedAt  *time.Time `json:"last_started_at"`
	LastFinishedAt *time.Time `json:"last_finished_at"`
}

type HealthResponse struct {
	Poller PollerHealth `json:"poller"`
}

// AuthConfig is the response to GET /auth/config: what the web console
// needs to decide whether to show a login form.
type AuthConfig struct {
	LoginEnabled bool `json:"login_enabled"`
}

// LoginResponse is the response to POST /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}
